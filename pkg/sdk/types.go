package sitesearch

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Hit is one merged search result.
type Hit struct {
	ID    int64
	Score float64
	Site  string
	// Node is the position of the remote that returned the hit.
	Node int

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

// NodeStatus describes how one remote contributed to a page.
type NodeStatus struct {
	Node    int
	Name    string
	OK      bool
	Hits    int
	Total   int64
	Elapsed time.Duration
	Err     error
}

// Page is one window of the merged result list.
type Page struct {
	Hits         []Hit
	TotalResults int64
	Start        int
	PageSize     int
	Nodes        []NodeStatus
	Elapsed      time.Duration
}

// Err joins the failures of the remotes that did not contribute, or returns
// nil when every remote answered.
func (p *Page) Err() error {
	var errs *multierror.Error
	for _, n := range p.Nodes {
		if n.OK {
			continue
		}
		err := n.Err
		if err == nil {
			err = ErrRemoteUnavailable
		}
		errs = multierror.Append(errs, fmt.Errorf("node %d (%s): %w", n.Node, n.Name, err))
	}
	return errs.ErrorOrNil()
}

// RemoteInfo describes a configured remote.
type RemoteInfo struct {
	Name      string
	Template  string
	Available bool
}
