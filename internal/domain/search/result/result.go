package result

import "github.com/kailas-cloud/sitesearch/internal/domain/search/hit"

// Fields holds the descriptive item fields carried alongside a hit.
// All of them are optional and passed through untouched.
type Fields struct {
	Title       string
	Link        string
	Description string
	Length      string
	Type        string
	Boost       string
	Collection  string
	Index       string
	Dates       []string
}

// Result is a single search hit with its item fields.
type Result struct {
	hit    hit.Hit
	node   int
	fields Fields
}

// New creates a search result. node is the position of the originating
// remote node, or 0 for local hits.
func New(h hit.Hit, node int, fields Fields) Result {
	return Result{hit: h, node: node, fields: fields}
}

// Hit returns the scored, grouped hit.
func (r *Result) Hit() hit.Hit { return r.hit }

// ID returns the document identifier.
func (r *Result) ID() int64 { return r.hit.ID }

// Score returns the relevance score.
func (r *Result) Score() float64 { return r.hit.Score }

// Site returns the collapsing group.
func (r *Result) Site() string { return r.hit.Group }

// Node returns the position of the node the hit came from.
func (r *Result) Node() int { return r.node }

// Fields returns the item fields.
func (r *Result) Fields() Fields { return r.fields }

// Outranks reports whether a ranks before b: hit order first, then node position.
func Outranks(a, b *Result) bool {
	if hit.Outranks(a.hit, b.hit) {
		return true
	}
	if hit.Outranks(b.hit, a.hit) {
		return false
	}
	return a.node < b.node
}

// Doc is a stored document as a candidate source describes it.
type Doc struct {
	Site   string
	Fields Fields
}
