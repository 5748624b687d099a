package page

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

var errNoResponse = errors.New("no response")

// NodeStatus describes how one node contributed to a page.
type NodeStatus struct {
	Node    int
	Name    string
	OK      bool
	Hits    int
	Total   int64
	Elapsed time.Duration
	Err     error
}

// Page is one window of a ranked, collapsed result list.
type Page struct {
	Hits         []result.Result
	TotalResults int64
	Start        int
	PageSize     int
	Nodes        []NodeStatus
	Elapsed      time.Duration
}

// Window slices [start, start+size) out of hits, clipped to its bounds.
func Window(hits []result.Result, start, size int) []result.Result {
	if start < 0 {
		start = 0
	}
	if start >= len(hits) || size <= 0 {
		return []result.Result{}
	}
	end := start + size
	if end > len(hits) || end < start {
		end = len(hits)
	}
	return hits[start:end]
}

// Failed returns the number of nodes that did not contribute.
func (p *Page) Failed() int {
	n := 0
	for _, s := range p.Nodes {
		if !s.OK {
			n++
		}
	}
	return n
}

// Err aggregates the failures of all nodes, or nil when every node answered.
func (p *Page) Err() error {
	var errs *multierror.Error
	for _, s := range p.Nodes {
		if s.OK {
			continue
		}
		err := s.Err
		if err == nil {
			err = errNoResponse
		}
		errs = multierror.Append(errs, fmt.Errorf("node %d (%s): %w", s.Node, s.Name, err))
	}
	return errs.ErrorOrNil()
}
