// Package catalog holds the carrier and merchant vocabulary used when
// extracting shipment details from email: known carrier names, tracking
// number shapes, and tracking URL templates.
package catalog

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// carriers lists the carrier names we recognize in email text, longest
// first so "blue dart" wins over "dart"-like substrings.
var carriers = []string{
	"Delhivery",
	"Blue Dart",
	"BlueDart",
	"DTDC",
	"Ecom Express",
	"Ekart",
	"XpressBees",
	"Xpressbees",
	"Shadowfax",
	"India Post",
	"Amazon Logistics",
	"FedEx",
	"DHL",
	"UPS",
	"USPS",
	"Aramex",
	"Gati",
	"Professional Couriers",
	"Trackon",
}

// merchants lists the merchant names we recognize in email text or
// sender addresses.
var merchants = []string{
	"Amazon",
	"Flipkart",
	"Myntra",
	"Ajio",
	"Nykaa",
	"Meesho",
	"Snapdeal",
	"Tata Cliq",
	"Croma",
	"Reliance Digital",
	"BigBasket",
	"Blinkit",
	"Zepto",
	"Swiggy Instamart",
	"FirstCry",
	"Lenskart",
	"Decathlon",
	"IKEA",
	"Pepperfry",
	"Urban Ladder",
	"boAt",
	"OnePlus",
	"Apple",
	"Samsung",
}

// Carriers returns the known carrier names.
func Carriers() []string { return carriers }

// Merchants returns the known merchant names.
func Merchants() []string { return merchants }

// carrierAliases maps lower-cased spellings seen in email text and model
// output to the canonical carrier name.
var carrierAliases = map[string]string{
	"delhivery":                      "Delhivery",
	"blue dart":                      "Blue Dart",
	"bluedart":                       "Blue Dart",
	"blue dart express":              "Blue Dart",
	"dtdc":                           "DTDC",
	"ecom express":                   "Ecom Express",
	"ecom":                           "Ecom Express",
	"ekart":                          "Ekart",
	"ekart logistics":                "Ekart",
	"xpressbees":                     "XpressBees",
	"xpress bees":                    "XpressBees",
	"shadowfax":                      "Shadowfax",
	"india post":                     "India Post",
	"indiapost":                      "India Post",
	"speed post":                     "India Post",
	"speedpost":                      "India Post",
	"amazon logistics":               "Amazon Logistics",
	"amazon transportation services": "Amazon Logistics",
	"ats":                            "Amazon Logistics",
	"fedex":                          "FedEx",
	"fed ex":                         "FedEx",
	"dhl":                            "DHL",
	"dhl express":                    "DHL",
	"ups":                            "UPS",
	"usps":                           "USPS",
	"aramex":                         "Aramex",
	"gati":                           "Gati",
	"professional couriers":          "Professional Couriers",
	"the professional couriers":      "Professional Couriers",
	"trackon":                        "Trackon",
}

// merchantAliases maps lower-cased spellings and sender domains to the
// canonical merchant name.
var merchantAliases = map[string]string{
	"amazon":           "Amazon",
	"amazon.in":        "Amazon",
	"amazon.com":       "Amazon",
	"flipkart":         "Flipkart",
	"flipkart.com":     "Flipkart",
	"myntra":           "Myntra",
	"ajio":             "Ajio",
	"nykaa":            "Nykaa",
	"meesho":           "Meesho",
	"snapdeal":         "Snapdeal",
	"tata cliq":        "Tata Cliq",
	"tatacliq":         "Tata Cliq",
	"croma":            "Croma",
	"reliance digital": "Reliance Digital",
	"bigbasket":        "BigBasket",
	"big basket":       "BigBasket",
	"blinkit":          "Blinkit",
	"zepto":            "Zepto",
	"swiggy instamart": "Swiggy Instamart",
	"instamart":        "Swiggy Instamart",
	"firstcry":         "FirstCry",
	"first cry":        "FirstCry",
	"lenskart":         "Lenskart",
	"decathlon":        "Decathlon",
	"ikea":             "IKEA",
	"pepperfry":        "Pepperfry",
	"urban ladder":     "Urban Ladder",
	"urbanladder":      "Urban Ladder",
	"boat":             "boAt",
	"boat-lifestyle":   "boAt",
	"oneplus":          "OnePlus",
	"one plus":         "OnePlus",
	"apple":            "Apple",
	"samsung":          "Samsung",
}

// CanonicalCarrier maps a carrier spelling onto its canonical name,
// looking up the lower-cased trimmed value; unknown names pass through
// unchanged.
func CanonicalCarrier(name string) string {
	trimmed := strings.TrimSpace(name)
	if c, ok := carrierAliases[strings.ToLower(trimmed)]; ok {
		return c
	}
	return trimmed
}

// CanonicalMerchant is CanonicalCarrier for merchant names.
func CanonicalMerchant(name string) string {
	trimmed := strings.TrimSpace(name)
	if m, ok := merchantAliases[strings.ToLower(trimmed)]; ok {
		return m
	}
	return trimmed
}

// trackingURLs maps a canonical lower-cased carrier key to a tracking page
// URL template with a single %s slot for the tracking number.
var trackingURLs = map[string]string{
	"delhivery":        "https://www.delhivery.com/track/package/%s",
	"blue dart":        "https://www.bluedart.com/tracking?trackingId=%s",
	"bluedart":         "https://www.bluedart.com/tracking?trackingId=%s",
	"dtdc":             "https://www.dtdc.in/tracking.asp?strCnno=%s",
	"ekart":            "https://ekartlogistics.com/shipmenttrack/%s",
	"ecom express":     "https://ecomexpress.in/tracking/?awb_field=%s",
	"xpressbees":       "https://www.xpressbees.com/shipment/tracking?awbNo=%s",
	"shadowfax":        "https://tracker.shadowfax.in/#/track/%s",
	"india post":       "https://www.indiapost.gov.in/_layouts/15/dop.portal.tracking/trackconsignment.aspx?tn=%s",
	"fedex":            "https://www.fedex.com/fedextrack/?trknbr=%s",
	"dhl":              "https://www.dhl.com/in-en/home/tracking/tracking-express.html?tracking-id=%s",
	"ups":              "https://www.ups.com/track?tracknum=%s",
	"usps":             "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s",
	"aramex":           "https://www.aramex.com/in/en/track/results?ShipmentNumber=%s",
	"gati":             "https://www.gati.com/track-shipment/?docket=%s",
	"amazon logistics": "https://track.amazon.in/tracking/%s",
}

// TrackingURL returns the tracking page URL for a carrier and tracking
// number, or "" when the carrier has no known template or the number is
// empty.
func TrackingURL(carrier, trackingNumber string) string {
	if trackingNumber == "" {
		return ""
	}
	tmpl, ok := trackingURLs[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		return ""
	}
	return fmt.Sprintf(tmpl, trackingNumber)
}

// DetectCarrier returns the canonical name of the first known carrier
// named in the text, or "".
func DetectCarrier(text string) string {
	lower := strings.ToLower(text)
	for _, c := range carriers {
		if strings.Contains(lower, strings.ToLower(c)) {
			return CanonicalCarrier(c)
		}
	}
	return ""
}

// DetectMerchant returns the canonical name of the first known merchant
// named in the text, or "".
func DetectMerchant(text string) string {
	lower := strings.ToLower(text)
	for _, m := range merchants {
		if strings.Contains(lower, strings.ToLower(m)) {
			return CanonicalMerchant(m)
		}
	}
	return ""
}

// MerchantFromAddress derives a merchant name from a From header. It
// prefers a known merchant named in the display name or domain, then falls
// back to the capitalized second-level domain ("orders@shop.example.com"
// becomes "Example"). Returns "" when nothing usable is present.
func MerchantFromAddress(from string) string {
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		// Headers in the wild are often bare addresses or junk; fall
		// back to substring matching on the raw value.
		if m := DetectMerchant(from); m != "" {
			return m
		}
		return ""
	}

	if m := DetectMerchant(addr.Name); m != "" {
		return m
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(addr.Address[at+1:])
	if m := DetectMerchant(domain); m != "" {
		return m
	}

	// Use the registrable label: the second-to-last for example.com,
	// third-to-last for example.co.in style domains.
	labels := strings.Split(domain, ".")
	for i := len(labels) - 2; i >= 0; i-- {
		l := labels[i]
		switch l {
		case "co", "com", "net", "org", "in", "mail", "email", "smtp", "info":
			continue
		}
		if len(l) < 2 {
			continue
		}
		return strings.ToUpper(l[:1]) + l[1:]
	}
	return ""
}

// NumberPattern is one tracking-number shape: a compiled regex, the
// carrier it implies (may be empty for generic shapes), and a confidence
// score used to pick the best candidate when several patterns match.
type NumberPattern struct {
	Regex      *regexp.Regexp
	Carrier    string
	Confidence float64
	Label      string
}

// numberPatterns is ordered from most to least specific. Labeled patterns
// (an explicit "AWB:" or "tracking number:" prefix) come first, then
// carrier-specific structural shapes, and the bare 13-16 digit fallback
// last. The first group of each regex is the candidate number.
var numberPatterns = []NumberPattern{
	{
		Regex:      regexp.MustCompile(`(?i)\bAWB(?:\s*(?:no|number|#))?\s*[:#]?\s*([A-Z0-9]{9,20})\b`),
		Confidence: 0.95,
		Label:      "labeled AWB",
	},
	{
		Regex:      regexp.MustCompile(`(?i)\btracking\s*(?:number|no|id|#)\s*[:#]?\s*([A-Z0-9]{8,25})\b`),
		Confidence: 0.95,
		Label:      "labeled tracking number",
	},
	{
		Regex:      regexp.MustCompile(`(?i)\bconsignment\s*(?:number|no)?\s*[:#]?\s*([A-Z0-9]{9,20})\b`),
		Confidence: 0.9,
		Label:      "labeled consignment",
	},
	{
		Regex:      regexp.MustCompile(`\b(1Z[A-Z0-9]{16})\b`),
		Carrier:    "UPS",
		Confidence: 0.9,
		Label:      "UPS 1Z",
	},
	{
		Regex:      regexp.MustCompile(`\b(9[234]\d{20})\b`),
		Carrier:    "USPS",
		Confidence: 0.85,
		Label:      "USPS 22-digit",
	},
	{
		Regex:      regexp.MustCompile(`\b([A-Z]{2}\d{9}IN)\b`),
		Carrier:    "India Post",
		Confidence: 0.85,
		Label:      "India Post registered",
	},
	{
		Regex:      regexp.MustCompile(`\b(TBA\d{12})\b`),
		Carrier:    "Amazon Logistics",
		Confidence: 0.85,
		Label:      "Amazon Logistics TBA",
	},
	{
		Regex:      regexp.MustCompile(`\b([A-Z]{2}\d{9})\b`),
		Carrier:    "Blue Dart",
		Confidence: 0.6,
		Label:      "two letters plus nine digits",
	},
	{
		Regex:      regexp.MustCompile(`\b(\d{13,16})\b`),
		Confidence: 0.4,
		Label:      "bare 13-16 digits",
	},
}

// NumberPatterns returns the ordered tracking-number patterns.
func NumberPatterns() []NumberPattern { return numberPatterns }
