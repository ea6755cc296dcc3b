// Package parser turns shipping emails into structured shipment data.
// A cheap keyword pre-filter decides whether an email is worth parsing,
// deterministic regex extraction handles the common formats, and a
// generative extractor fills in what the patterns cannot.
package parser

import "errors"

// Extraction methods recorded on a Result.
const (
	MethodPattern    = "pattern"
	MethodGenerative = "generative"
	MethodFallback   = "fallback"
)

// ErrRateLimited is returned by a generative extractor when its rate
// limiter refused the call; callers should fall back rather than retry.
var ErrRateLimited = errors.New("parser: generative extraction rate limited")

// Result is the structured output of parsing one email. String fields are
// empty when the email did not yield them; Status is always set.
type Result struct {
	ProductName      string  `json:"product_name"`
	Merchant         string  `json:"merchant"`
	Carrier          string  `json:"carrier"`
	TrackingNumber   string  `json:"tracking_number"`
	OrderNumber      string  `json:"order_number"`
	Status           string  `json:"status"`
	ExpectedDelivery string  `json:"expected_delivery"`
	Summary          string  `json:"ai_summary"`
	TrackingURL      string  `json:"tracking_url,omitempty"`
	Confidence       float64 `json:"-"`
	Method           string  `json:"-"`
}

// HasIdentifier reports whether the result carries at least one durable
// shipment identifier.
func (r *Result) HasIdentifier() bool {
	return r.TrackingNumber != "" || r.OrderNumber != ""
}
