// Package info describes the indexes a local node serves.
package info

// Term is one indexed term with its document frequency.
type Term struct {
	Term  string
	Count uint64
}

// Field lists the terms of one indexed field.
type Field struct {
	Name  string
	Terms []Term
}

// Index summarizes one index.
type Index struct {
	Name    string
	NumDocs uint64
	Fields  []Field
}
