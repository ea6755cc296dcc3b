package status

import (
	"strings"
	"time"
)

// Code is a shipment delivery status. Codes are ordered by delivery
// progress; use Rank to compare them rather than comparing strings.
type Code string

const (
	Ordered        Code = "ORDERED"
	Shipped        Code = "SHIPPED"
	InTransit      Code = "IN_TRANSIT"
	OutForDelivery Code = "OUT_FOR_DELIVERY"
	Delivered      Code = "DELIVERED"
	Exception      Code = "EXCEPTION"
)

// ranks assigns a progress rank to each status. EXCEPTION shares the
// IN_TRANSIT rank: a delivery problem neither retracts recorded progress
// nor counts as forward progress.
var ranks = map[Code]int{
	Ordered:        1,
	Shipped:        2,
	InTransit:      3,
	Exception:      3,
	OutForDelivery: 4,
	Delivered:      5,
}

// Rank returns the progress rank for a status code. Unknown codes rank 0.
// This is the only place status ordering is defined; every comparison in
// the merge engine and the age inferencer goes through it.
func Rank(c Code) int {
	return ranks[c]
}

// AtLeast reports whether a has progressed at least as far as b.
func AtLeast(a, b Code) bool {
	return Rank(a) >= Rank(b)
}

// Valid reports whether c is one of the known status codes.
func Valid(c Code) bool {
	_, ok := ranks[c]
	return ok
}

// Label returns the human-readable display label for a status.
func Label(c Code) string {
	switch c {
	case Ordered:
		return "Order Confirmed"
	case Shipped:
		return "Shipped"
	case InTransit:
		return "In Transit"
	case OutForDelivery:
		return "Out for Delivery"
	case Delivered:
		return "Delivered"
	case Exception:
		return "Delivery Issue"
	}
	return "In Transit"
}

// vocabulary maps free-text status wording onto the fixed enum. Keys are
// lower-cased; lookups trim and lower-case the input.
var vocabulary = map[string]Code{
	"ordered":                 Ordered,
	"confirmed":               Ordered,
	"order confirmed":         Ordered,
	"order placed":            Ordered,
	"processing":              Ordered,
	"shipped":                 Shipped,
	"dispatched":              Shipped,
	"picked up":               Shipped,
	"label created":           Shipped,
	"in transit":              InTransit,
	"in_transit":              InTransit,
	"in-transit":              InTransit,
	"on the way":              InTransit,
	"on its way":              InTransit,
	"en route":                InTransit,
	"out for delivery":        OutForDelivery,
	"out_for_delivery":        OutForDelivery,
	"delivered":               Delivered,
	"delivery complete":       Delivered,
	"exception":               Exception,
	"failed":                  Exception,
	"failed delivery":         Exception,
	"undelivered":             Exception,
	"delivery attempt failed": Exception,
	"returned":                Exception,
}

// FromText maps free-text status wording onto a status code.
func FromText(s string) (Code, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := vocabulary[key]; ok {
		return c, true
	}
	// Accept enum spellings in any casing.
	c := Code(strings.ToUpper(key))
	if Valid(c) {
		return c, true
	}
	return "", false
}

// Normalize maps free-text status wording onto a status code, defaulting
// unrecognized values to IN_TRANSIT. Never defaults to DELIVERED: claiming
// a delivery that did not happen is the one error users notice.
func Normalize(s string) Code {
	if c, ok := FromText(s); ok {
		return c
	}
	return InTransit
}

// AgeRules carries the elapsed-time thresholds for age-based status
// inference. The defaults are heuristics, not ground truth; they are
// exposed through configuration.
type AgeRules struct {
	// DeliveredAfter promotes SHIPPED/IN_TRANSIT/OUT_FOR_DELIVERY to
	// DELIVERED once a message is this old.
	DeliveredAfter time.Duration
	// InTransitAfter promotes SHIPPED to IN_TRANSIT once a message is
	// this old.
	InTransitAfter time.Duration
}

// DefaultAgeRules returns the default inference thresholds.
func DefaultAgeRules() AgeRules {
	return AgeRules{
		DeliveredAfter: 14 * 24 * time.Hour,
		InTransitAfter: 7 * 24 * time.Hour,
	}
}

// InferFromAge corrects a stale status using the age of the message it came
// from. Delivery-confirmation emails are frequently never sent, so a weeks-old
// shipment that still reads SHIPPED has almost certainly arrived. Pure and
// idempotent: safe to re-run against persisted records on a schedule.
// ORDERED and EXCEPTION are never auto-promoted; those resolve only through a
// new message or a user action.
func InferFromAge(sent, now time.Time, cur Code, rules AgeRules) Code {
	if sent.IsZero() || !now.After(sent) {
		return cur
	}
	age := now.Sub(sent)

	switch cur {
	case Shipped, InTransit, OutForDelivery:
		if age > rules.DeliveredAfter {
			return Delivered
		}
	}
	if cur == Shipped && age > rules.InTransitAfter {
		return InTransit
	}
	return cur
}
