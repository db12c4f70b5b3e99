package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies why an extraction failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindInvalidInput
	KindUpstream
	KindMalformedOutput
	KindSchemaViolation
)

const previewLength = 200

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindInvalidInput:
		return "invalid_input"
	case KindUpstream:
		return "upstream_error"
	case KindMalformedOutput:
		return "malformed_output"
	case KindSchemaViolation:
		return "schema_violation"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUpstream        = errors.New("upstream error")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrSchemaViolation = errors.New("schema violation")

	ErrMissingAPIKey = errors.New("missing LLM API key")
	ErrNoContent     = errors.New("no content returned")
)

// Error is the classified failure returned by the extraction pipeline.
type Error struct {
	Kind Kind
	// Message is a short diagnostic safe to show to the caller.
	Message string
	// Status is the upstream HTTP status, zero when no response arrived.
	Status  int
	Timeout bool
	// Preview holds the first 200 characters of unparseable model output.
	Preview string
	Schema  *SchemaError
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMalformedOutput:
		return "model output was not valid JSON. Preview: " + e.Preview
	case KindSchemaViolation:
		if e.Schema != nil {
			return "model JSON did not match expected schema: " + e.Schema.Error()
		}
	case KindUpstream:
		var b strings.Builder
		b.WriteString("upstream error: ")
		b.WriteString(e.Message)
		if e.Status != 0 {
			fmt.Fprintf(&b, " (status %d)", e.Status)
		}
		return b.String()
	}
	if e.Message != "" {
		return e.Kind.sentinel().Error() + ": " + e.Message
	}
	if e.Err != nil {
		return e.Kind.sentinel().Error() + ": " + e.Err.Error()
	}
	return e.Kind.sentinel().Error()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Schema != nil {
		errs = append(errs, e.Schema)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUpstream:
		return ErrUpstream
	case KindMalformedOutput:
		return ErrMalformedOutput
	case KindSchemaViolation:
		return ErrSchemaViolation
	default:
		return errors.New("extraction failed")
	}
}

// KindOf reports the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is an upstream failure caused by a deadline.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUpstream && e.Timeout
}

func configError(err error) *Error {
	return &Error{Kind: KindConfiguration, Message: err.Error(), Err: err}
}

func invalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func malformedOutput(text string, err error) *Error {
	return &Error{Kind: KindMalformedOutput, Preview: preview(text), Err: err}
}

func schemaViolation(se *SchemaError) *Error {
	return &Error{Kind: KindSchemaViolation, Schema: se}
}

// upstreamError classifies a transport failure. Deadline and net timeouts set
// the Timeout flag.
func upstreamError(err error) *Error {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
	msg := "request failed"
	if timeout {
		msg = "request timed out"
	}
	return &Error{Kind: KindUpstream, Message: msg, Timeout: timeout, Err: err}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > previewLength {
		r = r[:previewLength]
	}
	return string(r)
}
