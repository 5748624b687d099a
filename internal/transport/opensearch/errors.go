package opensearch

import (
	"fmt"

	"github.com/kailas-cloud/sitesearch/internal/domain"
)

// TransportError is a failure reaching a remote node: connection errors,
// non-200 statuses and an open circuit breaker.
type TransportError struct {
	Node   string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: HTTP %d", e.Node, e.Status)
	}
	return fmt.Sprintf("remote %s: %v", e.Node, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrRemoteUnavailable}
	}
	return []error{domain.ErrRemoteUnavailable, e.Err}
}

// ProtocolError is a remote response that is not a valid result list.
type ProtocolError struct {
	Node string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Node, e.Err)
}

func (e *ProtocolError) Unwrap() []error {
	return []error{domain.ErrRemoteProtocol, e.Err}
}
