package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shipment-tracking/internal/status"
)

func TestNormalizeScrubsPlaceholders(t *testing.T) {
	now := time.Now()
	r := &Result{
		ProductName:      "N/A",
		Merchant:         "null",
		Carrier:          "unknown",
		TrackingNumber:   "  se 123456789 ",
		OrderNumber:      "-",
		Status:           "shipped",
		ExpectedDelivery: "not specified",
	}
	Normalize(r, "orders@nykaa.com", now.Add(-time.Hour), now, status.DefaultAgeRules())

	assert.Equal(t, "", r.ProductName)
	assert.Equal(t, "SE123456789", r.TrackingNumber)
	assert.Equal(t, "", r.OrderNumber)
	assert.Equal(t, "", r.ExpectedDelivery)
	assert.Equal(t, string(status.Shipped), r.Status)
	assert.Equal(t, "Nykaa", r.Merchant, "merchant falls back to the sender address")
}

func TestNormalizeAppliesAgeInference(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "shipped", TrackingNumber: "AWB123456789"}
	Normalize(r, "", now.Add(-20*24*time.Hour), now, status.DefaultAgeRules())
	assert.Equal(t, string(status.Delivered), r.Status)
}

func TestNormalizeDefaultsUnknownStatus(t *testing.T) {
	now := time.Now()
	for _, raw := range []string{"somewhere in a warehouse", ""} {
		r := &Result{Status: raw}
		Normalize(r, "", now, now, status.DefaultAgeRules())
		assert.Equal(t, string(status.InTransit), r.Status, "raw status %q", raw)
	}
}

func TestNormalizeRejectsImplausibleProductNames(t *testing.T) {
	now := time.Now()
	rejected := []string{
		"1234567890",
		"OD123456789",
		"ORD-4521",
		"ord 98765",
		"your order",
		"Package",
		"item",
	}
	for _, name := range rejected {
		r := &Result{Status: "shipped", ProductName: name}
		Normalize(r, "", now, now, status.DefaultAgeRules())
		assert.Equal(t, "", r.ProductName, "%q should be dropped", name)
	}

	kept := []string{
		"Sony WH-1000XM5 Headphones",
		"2-pack USB-C cables",
		"Ordinary Moisturizer 100ml",
	}
	for _, name := range kept {
		r := &Result{Status: "shipped", ProductName: name}
		Normalize(r, "", now, now, status.DefaultAgeRules())
		assert.Equal(t, name, r.ProductName, "%q should survive", name)
	}
}

func TestNormalizeCanonicalizesCarrierAndMerchant(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "shipped", Carrier: "bluedart", Merchant: "amazon.in"}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, "Blue Dart", r.Carrier)
	assert.Equal(t, "Amazon", r.Merchant)

	r = &Result{Status: "shipped", Carrier: "Acme Couriers"}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, "Acme Couriers", r.Carrier, "unknown carriers pass through")
}

func TestNormalizeInfersCarrierAndURL(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "in transit", TrackingNumber: "1Z999AA10123456784"}
	Normalize(r, "", now, now, status.DefaultAgeRules())

	assert.Equal(t, "UPS", r.Carrier)
	assert.Equal(t, "https://www.ups.com/track?tracknum=1Z999AA10123456784", r.TrackingURL)
}

func TestNormalizeDropsOrderNumberDuplicatingTracking(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "shipped", TrackingNumber: "OD123456789", OrderNumber: "OD123456789"}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, "", r.OrderNumber)
}

func TestNormalizeSynthesizesSummary(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "out for delivery", Merchant: "Croma"}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, "Your Croma order: out for delivery.", r.Summary)
}

func TestNormalizeReplacesTooShortSummary(t *testing.T) {
	now := time.Now()
	r := &Result{Status: "shipped", Merchant: "Croma", Summary: "Ok."}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, "Your Croma order: shipped.", r.Summary)

	long := "Your Croma order left the warehouse this morning."
	r = &Result{Status: "shipped", Merchant: "Croma", Summary: long}
	Normalize(r, "", now, now, status.DefaultAgeRules())
	assert.Equal(t, long, r.Summary, "an adequate summary is kept")
}
