package domain

import "errors"

var (
	// ErrInvalidParams signals query parameters that cannot be served.
	ErrInvalidParams = errors.New("invalid query parameters")
	// ErrNoRemotes signals a federation configured without any remote node.
	ErrNoRemotes = errors.New("no remote nodes configured")
	// ErrRemoteUnavailable signals a transport-level failure talking to a remote node.
	ErrRemoteUnavailable = errors.New("remote node unavailable")
	// ErrRemoteProtocol signals a remote response that is not a result list.
	ErrRemoteProtocol = errors.New("invalid remote response")
	// ErrIndexNotFound signals a request for an index the node does not serve.
	ErrIndexNotFound = errors.New("index not found")
	// ErrSourceUnavailable signals a failing local candidate source.
	ErrSourceUnavailable = errors.New("candidate source unavailable")
	// ErrNotImplemented signals a feature the configured backend lacks.
	ErrNotImplemented = errors.New("not implemented")
)
