package parser

import (
	"context"
	"errors"
)

// EmailContent is the cleaned email handed to a generative extractor.
type EmailContent struct {
	Subject string
	From    string
	Body    string
}

// GenerativeExtractor extracts shipment data from emails the regex
// patterns could not fully handle. Implementations must be safe for
// concurrent use.
type GenerativeExtractor interface {
	Extract(ctx context.Context, email EmailContent) (*Result, error)
	// Available reports whether the extractor can currently serve
	// requests (configured, under its failure threshold, not cooling
	// down).
	Available() bool
}

// ErrGenerativeDisabled is returned by NoOpExtractor and by extractors
// that have been disabled after repeated failures.
var ErrGenerativeDisabled = errors.New("parser: generative extraction disabled")

// NoOpExtractor is the GenerativeExtractor used when no model is
// configured; the pipeline then runs on deterministic extraction alone.
type NoOpExtractor struct{}

func (NoOpExtractor) Extract(ctx context.Context, email EmailContent) (*Result, error) {
	return nil, ErrGenerativeDisabled
}

func (NoOpExtractor) Available() bool { return false }
