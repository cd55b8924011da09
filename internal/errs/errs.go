// Package errs defines the sentinel error taxonomy used across the hub.
//
// Errors are wrapped with fmt.Errorf("...: %w", ...) at each layer so they
// can be matched with errors.Is. The HTTP edge and the group manager surface
// them as err.Error() text and do not branch on the sentinel.
package errs

import "errors"

var (
	// ErrBadRequest marks a missing or malformed query parameter.
	ErrBadRequest = errors.New("bad request")

	// ErrConnectFailed marks a failed upstream handshake/connect attempt.
	ErrConnectFailed = errors.New("upstream connect failed")

	// ErrUpstreamGone marks a closed or never-established upstream connection.
	ErrUpstreamGone = errors.New("upstream gone")

	// ErrRequestTimeout marks a correlated request whose reply never arrived
	// within its deadline.
	ErrRequestTimeout = errors.New("upstream request timeout")

	// ErrSubscribeFailed marks an upstream rejection of a subscribe request.
	ErrSubscribeFailed = errors.New("upstream subscribe rejected")

	// ErrParse marks an inbound frame that could not be decoded.
	ErrParse = errors.New("parse error")

	// ErrSubscriberGone marks a dead SSE subscriber (write failure or
	// cancelled request context).
	ErrSubscriberGone = errors.New("subscriber gone")

	// ErrFatal marks an invariant violation. The affected group emits an
	// error event; the hub as a whole continues running.
	ErrFatal = errors.New("fatal invariant violation")
)
