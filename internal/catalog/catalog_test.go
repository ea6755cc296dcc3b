package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCarrier(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Your package was handed to Delhivery for delivery", "Delhivery"},
		{"shipped via blue dart express", "Blue Dart"},
		{"FEDEX tracking update", "FedEx"},
		{"your order has been confirmed", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectCarrier(tt.text), tt.text)
	}
}

func TestCanonicalCarrier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bluedart", "Blue Dart"},
		{"Blue Dart", "Blue Dart"},
		{"usps", "USPS"},
		{"FEDEX", "FedEx"},
		{"  speed post  ", "India Post"},
		{"Acme Couriers", "Acme Couriers"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalCarrier(tt.in), tt.in)
	}
}

func TestCanonicalMerchant(t *testing.T) {
	assert.Equal(t, "Amazon", CanonicalMerchant("amazon.in"))
	assert.Equal(t, "boAt", CanonicalMerchant("BOAT"))
	assert.Equal(t, "Tata Cliq", CanonicalMerchant("tatacliq"))
	assert.Equal(t, "Corner Shop", CanonicalMerchant("Corner Shop"))
}

func TestDetectCarrierReturnsCanonicalName(t *testing.T) {
	assert.Equal(t, "Blue Dart", DetectCarrier("handed over to BlueDart"))
	assert.Equal(t, "XpressBees", DetectCarrier("via xpressbees surface"))
}

func TestDetectMerchant(t *testing.T) {
	assert.Equal(t, "Flipkart", DetectMerchant("Your Flipkart order is on its way"))
	assert.Equal(t, "Amazon", DetectMerchant("amazon.in order update"))
	assert.Equal(t, "", DetectMerchant("your package is moving"))
}

func TestMerchantFromAddress(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{"known merchant in display name", `"Myntra Orders" <no-reply@myntra.com>`, "Myntra"},
		{"known merchant in domain", "order-update@amazon.in", "Amazon"},
		{"unknown domain capitalized", "orders@shop.bigshark.com", "Bigshark"},
		{"country code domain", "noreply@chumbak.co.in", "Chumbak"},
		{"bare known merchant text", "Flipkart <>", "Flipkart"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MerchantFromAddress(tt.from))
		})
	}
}

func TestTrackingURL(t *testing.T) {
	assert.Equal(t,
		"https://www.delhivery.com/track/package/1234567890123",
		TrackingURL("Delhivery", "1234567890123"))
	assert.Equal(t,
		"https://www.ups.com/track?tracknum=1Z999AA10123456784",
		TrackingURL("UPS", "1Z999AA10123456784"))
	assert.Equal(t, "", TrackingURL("Unknown Couriers", "123"))
	assert.Equal(t, "", TrackingURL("UPS", ""))
}

func TestNumberPatternOrder(t *testing.T) {
	patterns := NumberPatterns()
	assert.Equal(t, "labeled AWB", patterns[0].Label, "labeled patterns must come first")
	assert.Equal(t, "bare 13-16 digits", patterns[len(patterns)-1].Label,
		"the generic digit run must be the last resort")

	for i := 1; i < len(patterns); i++ {
		assert.LessOrEqual(t, patterns[i].Confidence, patterns[i-1].Confidence,
			"pattern order must match confidence order")
	}
}

func TestNumberPatternMatches(t *testing.T) {
	tests := []struct {
		label string
		text  string
		want  string
	}{
		{"labeled AWB", "AWB No: 1490312845126", "1490312845126"},
		{"labeled tracking number", "Tracking Number: SF123456789012", "SF123456789012"},
		{"UPS 1Z", "scan event for 1Z999AA10123456784 at hub", "1Z999AA10123456784"},
		{"India Post registered", "consignment RX123456789IN booked", "RX123456789IN"},
		{"Amazon Logistics TBA", "package TBA123456789012 arriving today", "TBA123456789012"},
		{"bare 13-16 digits", "your shipment 12345678901234 is moving", "12345678901234"},
	}

	byLabel := map[string]NumberPattern{}
	for _, p := range NumberPatterns() {
		byLabel[p.Label] = p
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			p, ok := byLabel[tt.label]
			assert.True(t, ok)
			m := p.Regex.FindStringSubmatch(tt.text)
			assert.NotNil(t, m, "pattern should match %q", tt.text)
			assert.Equal(t, tt.want, m[1])
		})
	}
}
