package parser

import (
	"regexp"
	"strings"
	"time"

	"shipment-tracking/internal/catalog"
	"shipment-tracking/internal/status"
)

// placeholders are the junk values generative models emit for fields they
// were told to leave null.
var placeholders = map[string]bool{
	"n/a":           true,
	"na":            true,
	"null":          true,
	"none":          true,
	"unknown":       true,
	"-":             true,
	"not available": true,
	"not specified": true,
}

const (
	maxFieldLen = 200

	// minSummaryLen is the shortest summary worth keeping; anything
	// below it is replaced with a synthesized one.
	minSummaryLen = 20
)

// genericProducts are phrases extractors hand back when the email never
// names what was bought.
var genericProducts = map[string]bool{
	"your order":    true,
	"order":         true,
	"your package":  true,
	"package":       true,
	"your item":     true,
	"item":          true,
	"your shipment": true,
	"shipment":      true,
	"parcel":        true,
}

var (
	numericProductRe = regexp.MustCompile(`^\d+$`)
	orderShapedRe    = regexp.MustCompile(`(?i)^(?:od|ord)[-\s]?[a-z0-9]*\d[a-z0-9]*$`)
)

// plausibleProductName rejects values that are really order numbers or
// generic placeholders rather than a product description.
func plausibleProductName(s string) bool {
	if genericProducts[strings.ToLower(s)] {
		return false
	}
	if numericProductRe.MatchString(s) {
		return false
	}
	return !orderShapedRe.MatchString(s)
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return ""
	}
	if len(s) > maxFieldLen {
		s = strings.TrimSpace(s[:maxFieldLen])
	}
	return s
}

// Normalize scrubs an extraction result in place regardless of which
// extractor produced it: placeholder values are dropped, the status is
// mapped onto the fixed enum and corrected for message age, and derived
// fields (merchant from sender, tracking URL) are filled when missing.
func Normalize(r *Result, from string, sent, now time.Time, rules status.AgeRules) {
	r.ProductName = cleanField(r.ProductName)
	if r.ProductName != "" && !plausibleProductName(r.ProductName) {
		r.ProductName = ""
	}
	r.Merchant = catalog.CanonicalMerchant(cleanField(r.Merchant))
	r.Carrier = catalog.CanonicalCarrier(cleanField(r.Carrier))
	r.OrderNumber = cleanField(r.OrderNumber)
	r.ExpectedDelivery = cleanField(r.ExpectedDelivery)
	r.Summary = cleanField(r.Summary)

	r.TrackingNumber = strings.ToUpper(strings.ReplaceAll(cleanField(r.TrackingNumber), " ", ""))
	if r.TrackingNumber == r.OrderNumber {
		r.OrderNumber = ""
	}

	code := status.Normalize(r.Status)
	code = status.InferFromAge(sent, now, code, rules)
	r.Status = string(code)

	if r.Merchant == "" {
		r.Merchant = catalog.MerchantFromAddress(from)
	}
	if r.Carrier == "" && r.TrackingNumber != "" {
		r.Carrier = inferCarrierFromNumber(r.TrackingNumber)
	}
	if r.TrackingURL == "" {
		r.TrackingURL = catalog.TrackingURL(r.Carrier, r.TrackingNumber)
	}
	if len(r.Summary) < minSummaryLen {
		r.Summary = deterministicSummary(r)
	}
}

func inferCarrierFromNumber(num string) string {
	for _, p := range catalog.NumberPatterns() {
		if p.Carrier == "" {
			continue
		}
		if m := p.Regex.FindStringSubmatch(num); m != nil && m[1] == num {
			return p.Carrier
		}
	}
	return ""
}
