package rss

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
)

type xmlInfo struct {
	XMLName xml.Name       `xml:"info"`
	Indexes []xmlInfoIndex `xml:"index"`
}

type xmlInfoIndex struct {
	Name    string         `xml:"name,attr"`
	NumDocs uint64         `xml:"numDocs,attr"`
	Fields  []xmlInfoField `xml:"field"`
}

type xmlInfoField struct {
	Name  string        `xml:"name,attr"`
	Terms []xmlInfoTerm `xml:"term"`
}

type xmlInfoTerm struct {
	Count uint64 `xml:"count,attr"`
	Term  string `xml:",chardata"`
}

// EncodeInfo writes index diagnostics as an <info> document.
func EncodeInfo(w io.Writer, indexes []info.Index) error {
	doc := xmlInfo{Indexes: make([]xmlInfoIndex, 0, len(indexes))}
	for _, ix := range indexes {
		xi := xmlInfoIndex{Name: ix.Name, NumDocs: ix.NumDocs}
		for _, f := range ix.Fields {
			xf := xmlInfoField{Name: f.Name}
			for _, t := range f.Terms {
				xf.Terms = append(xf.Terms, xmlInfoTerm{Count: t.Count, Term: t.Term})
			}
			xi.Fields = append(xi.Fields, xf)
		}
		doc.Indexes = append(doc.Indexes, xi)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode info: %w", err)
	}
	return nil
}
