package parser

import (
	"fmt"
	"regexp"
	"strings"

	"shipment-tracking/internal/catalog"
	"shipment-tracking/internal/status"
)

var (
	orderNumberRe = regexp.MustCompile(`(?i)\border\s*(?:number|no|id|#)?\s*[:#]\s*([A-Z0-9][A-Z0-9-]{3,24})`)
	// Expected-delivery capture stops at sentence punctuation; dates in
	// shipping mail are free-form ("by Tuesday, 24 June", "on 24/06").
	expectedRe = regexp.MustCompile(`(?i)\b(?:expected|estimated|arriving|arrives|delivery\s+expected)\s*(?:delivery)?\s*(?:by|on|date)?\s*[:]?\s*([A-Za-z0-9][A-Za-z0-9 ,/-]{2,30})`)
	productRe  = regexp.MustCompile(`(?i)\byour\s+(?:order|package)\s+(?:of|for|containing)\s+"?(.{3,80}?)(?:\s+(?:has|have|is|was|will)\b|["*.,\n|]|$)`)
	phoneRe    = regexp.MustCompile(`^\d{10}$`)
)

// boilerplateMarkers flag footer lines that must not feed the status
// scan; "this email was delivered to you" would otherwise read as a
// delivery confirmation.
var boilerplateMarkers = []string{
	"unsubscribe",
	"email was delivered to",
	"email preferences",
	"view in browser",
}

// exceptionPhrases mark delivery problems. They are blanked out before
// the keyword scan so "could not be delivered" never counts as
// "delivered".
var exceptionPhrases = []string{
	"could not be delivered",
	"couldn't be delivered",
	"delivery attempt failed",
	"delivery attempt was unsuccessful",
	"delivery failed",
	"failed delivery",
	"undeliverable",
	"undelivered",
	"returned to sender",
	"delivery exception",
}

// statusKeywords is scanned in precedence order, most terminal first.
// Emails routinely carry residual wording from earlier states ("shipped"
// in the footer of a delivery confirmation), so the furthest-along
// keyword found anywhere in the text wins, and exception wording only
// counts when nothing else matched.
var statusKeywords = []struct {
	code     status.Code
	keywords []string
}{
	{status.Delivered, []string{"has been delivered", "was delivered", "delivery complete", "delivered"}},
	{status.OutForDelivery, []string{"out for delivery"}},
	{status.InTransit, []string{"in transit", "on its way", "on the way", "en route"}},
	{status.Shipped, []string{"has been shipped", "has been dispatched", "has shipped", "shipped", "dispatched", "picked up by"}},
	{status.Ordered, []string{"order confirmed", "order placed", "order received", "thank you for your order"}},
}

// ExtractDeterministic runs regex extraction over a cleaned email. It
// always returns a Result (status is left empty when no phrase matches
// and normalization picks the default); use NeedsFallback to decide
// whether generative extraction should refine it.
func ExtractDeterministic(subject, from, content string) *Result {
	res := &Result{Method: MethodPattern}

	text := subject + "\n" + content

	if num, carrier, conf := findTrackingNumber(text); num != "" {
		res.TrackingNumber = num
		res.Carrier = carrier
		res.Confidence = conf
	}
	if m := orderNumberRe.FindStringSubmatch(text); m != nil {
		order := strings.TrimRight(m[1], "-")
		// A labeled order number that re-captures the tracking number
		// adds nothing.
		if order != res.TrackingNumber {
			res.OrderNumber = order
		}
	}

	if res.Carrier == "" {
		res.Carrier = catalog.DetectCarrier(text)
	}
	res.Merchant = catalog.DetectMerchant(subject + "\n" + from)
	if res.Merchant == "" {
		res.Merchant = catalog.DetectMerchant(content)
	}
	if res.Merchant == "" {
		res.Merchant = catalog.MerchantFromAddress(from)
	}

	res.Status = string(extractStatus(subject, content))

	if m := expectedRe.FindStringSubmatch(text); m != nil {
		res.ExpectedDelivery = strings.TrimSpace(strings.TrimRight(m[1], " ,-/"))
	}
	if m := productRe.FindStringSubmatch(text); m != nil {
		res.ProductName = strings.TrimSpace(m[1])
	}

	res.TrackingURL = catalog.TrackingURL(res.Carrier, res.TrackingNumber)
	res.Summary = deterministicSummary(res)
	return res
}

// findTrackingNumber returns the highest-confidence candidate across the
// ordered pattern table, with the carrier the winning shape implies.
func findTrackingNumber(text string) (string, string, float64) {
	for _, p := range catalog.NumberPatterns() {
		for _, m := range p.Regex.FindAllStringSubmatch(text, 5) {
			candidate := strings.ToUpper(m[1])
			if plausibleTrackingNumber(candidate) {
				return candidate, p.Carrier, p.Confidence
			}
		}
	}
	return "", "", 0
}

// plausibleTrackingNumber rejects captures that match a shape but cannot
// be tracking numbers: phone numbers, years, repeated filler digits.
func plausibleTrackingNumber(s string) bool {
	if phoneRe.MatchString(s) {
		return false
	}
	if len(s) < 8 {
		return false
	}
	distinct := map[rune]bool{}
	for _, r := range s {
		distinct[r] = true
	}
	return len(distinct) > 2
}

// extractStatus returns the most terminal status mentioned anywhere in
// the subject or body, or "" when no status wording was found.
func extractStatus(subject, content string) status.Code {
	text := strings.ToLower(subject + "\n" + content)

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		skip := false
		for _, marker := range boilerplateMarkers {
			if strings.Contains(line, marker) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")

	exception := false
	for _, phrase := range exceptionPhrases {
		if strings.Contains(text, phrase) {
			exception = true
			text = strings.ReplaceAll(text, phrase, " ")
		}
	}

	for _, group := range statusKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.code
			}
		}
	}
	if exception {
		return status.Exception
	}
	return ""
}

func deterministicSummary(r *Result) string {
	what := r.ProductName
	if what == "" {
		what = "Your order"
		if r.Merchant != "" {
			what = "Your " + r.Merchant + " order"
		}
	}
	label := status.Label(status.Code(r.Status))
	if r.ExpectedDelivery != "" && status.Code(r.Status) != status.Delivered {
		return fmt.Sprintf("%s: %s, expected %s.", what, strings.ToLower(label), r.ExpectedDelivery)
	}
	return fmt.Sprintf("%s: %s.", what, strings.ToLower(label))
}

// NeedsFallback reports whether generative extraction should be
// attempted: only when the deterministic pass produced neither an
// identifier nor a carrier. A result with either is stored as-is.
func NeedsFallback(r *Result) bool {
	if r == nil {
		return true
	}
	return !r.HasIdentifier() && r.Carrier == ""
}
