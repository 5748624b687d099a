package federation

import (
	"context"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// Remote is one node of the federation.
type Remote interface {
	Name() string
	// Search returns the node's hits and its raw (pre-collapse) hit count.
	Search(ctx context.Context, p request.Params) ([]result.Result, int64, error)
}
