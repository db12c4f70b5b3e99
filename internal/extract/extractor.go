package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetchat/internal/core"
	"budgetchat/internal/log"
)

// Parser turns free-form text into expense entries.
type Parser interface {
	Extract(ctx context.Context, text string) ([]core.ExpenseEntry, error)
}

// Extractor runs the prompt, completion, sanitize, decode and validate steps.
// It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	completer Completer
	logger    *log.Logger
	newID     func() string
	provider  string
}

var _ Parser = (*Extractor)(nil)

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for the per-call summary line.
func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l.WithComponent(log.ComponentExtract)
		}
	}
}

// WithIDGenerator replaces uuid.NewString. Tests use it for stable IDs.
func WithIDGenerator(fn func() string) Option {
	return func(e *Extractor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithProvider names the backing provider in log lines.
func WithProvider(name string) Option {
	return func(e *Extractor) {
		e.provider = name
	}
}

func NewExtractor(c Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer: c,
		logger:    log.Discard(),
		newID:     uuid.NewString,
		provider:  "chat",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract sends text to the model once and returns the validated entries in
// the order the model produced them, each with a fresh ID. An empty array is a
// valid result.
func (e *Extractor) Extract(ctx context.Context, text string) ([]core.ExpenseEntry, error) {
	start := time.Now()
	entries, err := e.extract(ctx, text)

	fields := log.NewFields().
		WithOperation(log.OpExtract).
		WithExtraction(e.provider, len(text), time.Since(start))
	if err != nil {
		fields.WithError(err)
		fields[log.FieldErrorType] = KindOf(err).String()
		var xe *Error
		if errors.As(err, &xe) && xe.Status != 0 {
			fields[log.FieldUpstreamCode] = xe.Status
		}
		e.logger.WarnContext(ctx, "Extraction failed", fields.ToSlice()...)
		return nil, err
	}
	fields[log.FieldEntryCount] = len(entries)
	e.logger.InfoContext(ctx, "Extraction completed", fields.ToSlice()...)
	return entries, nil
}

func (e *Extractor) extract(ctx context.Context, text string) ([]core.ExpenseEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidInput("text must not be blank")
	}

	raw, err := e.completer.Complete(ctx, BuildPrompt(text))
	if err != nil {
		var xe *Error
		if errors.As(err, &xe) {
			return nil, err
		}
		return nil, upstreamError(err)
	}

	clean := Sanitize(raw)
	value, err := decodeJSON(clean)
	if err != nil {
		return nil, malformedOutput(clean, err)
	}

	entries, err := ValidateItems(value)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			return nil, schemaViolation(se)
		}
		return nil, err
	}

	for i := range entries {
		entries[i].ID = e.newID()
	}
	return entries, nil
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}
