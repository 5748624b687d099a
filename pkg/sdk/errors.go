package sitesearch

import "github.com/kailas-cloud/sitesearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidParams     = domain.ErrInvalidParams
	ErrNoRemotes         = domain.ErrNoRemotes
	ErrRemoteUnavailable = domain.ErrRemoteUnavailable
	ErrRemoteProtocol    = domain.ErrRemoteProtocol
)
