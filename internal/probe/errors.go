package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

// ErrorKind says what kind of transport failure ended a fetch.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindNetwork  ErrorKind = "network"
	KindOther    ErrorKind = "other"
	KindCanceled ErrorKind = "canceled"
)

// FetchError is returned by Executor.Fetch once the attempt budget is spent,
// or immediately for failures that are not retried.
type FetchError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s) (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the kind carried by err, KindOther when err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// classifyErr maps a transport error to its kind. The parent context is
// checked first so a caller cancellation is never mistaken for a timeout.
func classifyErr(parent context.Context, err error) ErrorKind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return KindNetwork
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindNetwork
	case errors.As(err, &urlErr):
		// remaining client.Do failures: proxy handshakes, TLS, protocol errors
		return KindNetwork
	}
	return KindOther
}
