package rss

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

var (
	// ErrMissingRSS signals a document whose root is not <rss>.
	ErrMissingRSS = errors.New("invalid OpenSearch response: missing /rss")
	// ErrMissingChannel signals an <rss> root without <channel>.
	ErrMissingChannel = errors.New("invalid OpenSearch response: missing /rss/channel")
)

// Decode parses a result list. Items without a site get "", items without
// a usable score get 0. An unparseable totalResults counts as 0.
func Decode(r io.Reader) (*Feed, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	root := firstElement(doc)
	if root == nil || root.Data != "rss" {
		return nil, ErrMissingRSS
	}
	channel := child(root, "", "channel")
	if channel == nil {
		return nil, ErrMissingChannel
	}

	f := &Feed{
		Query:        text(child(channel, NSArchive, "query")),
		TotalResults: parseInt64(text(child(channel, NSOpenSearch, "totalResults"))),
		StartIndex:   int(parseInt64(text(child(channel, NSOpenSearch, "startIndex")))),
		ItemsPerPage: int(parseInt64(text(child(channel, NSOpenSearch, "itemsPerPage")))),
	}
	for n := channel.FirstChild; n != nil; n = n.NextSibling {
		switch {
		case is(n, NSArchive, "index"):
			f.IndexNames = append(f.IndexNames, text(n))
		case is(n, "", "item"):
			f.Items = append(f.Items, decodeItem(n))
		}
	}
	return f, nil
}

func decodeItem(n *xmlquery.Node) Item {
	var it Item
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		v := text(c)
		switch {
		case is(c, "", "title"):
			it.Title = v
		case is(c, "", "link"):
			it.Link = v
		case is(c, "", "description"):
			it.Description = v
		case is(c, "", "date"):
			it.Dates = append(it.Dates, v)
		case is(c, NSArchive, "docId"):
			it.DocID = v
		case is(c, NSArchive, "score"):
			it.Score = parseScore(v)
		case is(c, NSArchive, "site"):
			it.Site = v
		case is(c, NSArchive, "length"):
			it.Length = v
		case is(c, NSArchive, "type"):
			it.Type = v
		case is(c, NSArchive, "boost"):
			it.Boost = v
		case is(c, NSArchive, "collection"):
			it.Collection = v
		case is(c, NSArchive, "index"):
			it.Index = v
		}
	}
	return it
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func child(parent *xmlquery.Node, ns, local string) *xmlquery.Node {
	for n := parent.FirstChild; n != nil; n = n.NextSibling {
		if is(n, ns, local) {
			return n
		}
	}
	return nil
}

// is matches an element by local name; namespaced names also match when
// the remote left the namespace off.
func is(n *xmlquery.Node, ns, local string) bool {
	if n.Type != xmlquery.ElementNode || n.Data != local {
		return false
	}
	return n.NamespaceURI == ns || n.NamespaceURI == ""
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
