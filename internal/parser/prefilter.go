package parser

import "strings"

// shippingKeywords are weak signals; an email needs several of them (or
// one strong phrase) before it is worth parsing.
var shippingKeywords = []string{
	"shipped",
	"shipping",
	"dispatched",
	"delivery",
	"delivered",
	"tracking",
	"order",
	"package",
	"parcel",
	"shipment",
	"courier",
	"arriving",
	"on its way",
	"on the way",
	"consignment",
	"awb",
	"waybill",
}

// strongIndicators are phrases that essentially only appear in shipping
// notifications; a single one marks the email relevant.
var strongIndicators = []string{
	"out for delivery",
	"has been shipped",
	"has been dispatched",
	"has been delivered",
	"tracking number",
	"tracking id",
	"track your order",
	"track your package",
	"track your shipment",
	"your order is on its way",
	"arriving today",
	"delivery attempt",
	"awb number",
}

// excludeKeywords veto classification unless a strong indicator is also
// present. Promotional mail loves shipping vocabulary ("free delivery on
// orders above..."), so marketing markers outrank weak keyword hits, but
// a genuine "out for delivery" notice with a promo footer still passes.
var excludeKeywords = []string{
	"unsubscribe from these offers",
	"% off",
	"flash sale",
	"cashback offer",
	"coupon code",
	"limited time offer",
	"deal of the day",
	"free delivery on orders",
	"price drop alert",
}

// Classification is the pre-filter verdict for one email.
// MatchedKeywords lists the weak keywords that hit, for logging and
// debugging of borderline emails.
type Classification struct {
	Relevant        bool
	MatchedKeywords []string
	Strong          bool
	Excluded        bool
}

// PreFilter is the keyword gate run before any extraction. MinMatches is
// the number of weak keyword hits needed when no strong indicator is
// present.
type PreFilter struct {
	MinMatches int
}

// NewPreFilter returns a pre-filter requiring minMatches weak hits; values
// below 1 fall back to the default of 2.
func NewPreFilter(minMatches int) *PreFilter {
	if minMatches < 1 {
		minMatches = 2
	}
	return &PreFilter{MinMatches: minMatches}
}

// Classify decides whether an email looks like a shipping notification.
// Subject and sender are included in the scan: many notifications carry
// all their signal in the subject line.
func (f *PreFilter) Classify(subject, from, body string) Classification {
	text := strings.ToLower(subject + " " + from + " " + body)

	var c Classification
	for _, phrase := range strongIndicators {
		if strings.Contains(text, phrase) {
			c.Strong = true
			break
		}
	}
	for _, kw := range excludeKeywords {
		if strings.Contains(text, kw) {
			c.Excluded = true
			break
		}
	}
	for _, kw := range shippingKeywords {
		if strings.Contains(text, kw) {
			c.MatchedKeywords = append(c.MatchedKeywords, kw)
		}
	}

	if c.Excluded && !c.Strong {
		return c
	}
	c.Relevant = c.Strong || len(c.MatchedKeywords) >= f.MinMatches
	return c
}
