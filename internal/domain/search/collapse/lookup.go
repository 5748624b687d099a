package collapse

import (
	"net/url"
	"strings"
)

// GroupLookup resolves the collapsing group of a document.
// Documents without a group resolve to "".
type GroupLookup interface {
	Group(id int64) string
}

// GroupLookupFunc adapts a function to GroupLookup.
type GroupLookupFunc func(id int64) string

// Group calls f(id).
func (f GroupLookupFunc) Group(id int64) string { return f(id) }

// NoGroups puts every document in the "" group.
type NoGroups struct{}

// Group returns "".
func (NoGroups) Group(int64) string { return "" }

// Memo caches resolved groups for the lifetime of one query.
type Memo struct {
	inner GroupLookup
	seen  map[int64]string
}

// NewMemo wraps inner with a per-query cache.
func NewMemo(inner GroupLookup) *Memo {
	return &Memo{inner: inner, seen: make(map[int64]string)}
}

// Group returns the cached group or resolves it through the wrapped lookup.
func (m *Memo) Group(id int64) string {
	if g, ok := m.seen[id]; ok {
		return g
	}
	g := m.inner.Group(id)
	m.seen[id] = g
	return g
}

// HostOf derives a site from a document URL: the lower-cased host without
// port and without a leading "www.". Unparseable URLs yield "".
func HostOf(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// HostLookup resolves groups from document URLs.
type HostLookup struct {
	URL func(id int64) string
}

// Group returns the host of the document URL.
func (h HostLookup) Group(id int64) string {
	if h.URL == nil {
		return ""
	}
	return HostOf(h.URL(id))
}
