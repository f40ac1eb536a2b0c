package carparks

import (
	"errors"
	"fmt"
)

// Query errors, surfaced directly to request handlers.
var (
	ErrNotFound   = errors.New("car park not found")
	ErrNoSnapshot = errors.New("no car park snapshot available yet")
)

// FetchErrorKind classifies upstream request failures.
type FetchErrorKind int

const (
	FetchTransport FetchErrorKind = iota
	FetchTimeout
	FetchBadStatus
	FetchWrongContentType
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchBadStatus:
		return "bad_status"
	case FetchWrongContentType:
		return "wrong_content_type"
	default:
		return "transport"
	}
}

// FetchError is returned by Client.Fetch.
type FetchError struct {
	Kind        FetchErrorKind
	StatusCode  int    // set for FetchBadStatus
	ContentType string // set for FetchWrongContentType
	Err         error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchBadStatus:
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	case FetchWrongContentType:
		return fmt.Sprintf("upstream content type %q is not XML", e.ContentType)
	case FetchTimeout:
		return fmt.Sprintf("upstream request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseErrorKind classifies feed documents that cannot be turned into records.
type ParseErrorKind int

const (
	ParseMalformed ParseErrorKind = iota
	ParseUnknownSchema
)

func (k ParseErrorKind) String() string {
	if k == ParseUnknownSchema {
		return "unknown_schema"
	}
	return "malformed"
}

// ParseError is returned by ParseFeed.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Kind == ParseUnknownSchema {
		return fmt.Sprintf("unrecognised feed layout: %v", e.Err)
	}
	return fmt.Sprintf("malformed feed XML: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Outcome labels an error from one refresh attempt for metrics and logs.
// A nil error yields "ok".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind.String()
	}
	return "error"
}
