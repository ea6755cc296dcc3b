package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	f := NewPreFilter(2)

	tests := []struct {
		name    string
		subject string
		from    string
		body    string
		want    bool
	}{
		{
			name:    "strong indicator alone",
			subject: "Out for delivery",
			body:    "Your item will arrive today.",
			want:    true,
		},
		{
			name:    "two weak keywords",
			subject: "Your order update",
			body:    "The package will reach you soon.",
			want:    true,
		},
		{
			name:    "single weak keyword",
			subject: "Your order",
			body:    "Thanks for signing up!",
			want:    false,
		},
		{
			name:    "promotional mail vetoed despite keywords",
			subject: "Flash sale! Free delivery on orders above Rs 499",
			body:    "Your package of savings has shipped! Use coupon code SAVE20.",
			want:    false,
		},
		{
			name:    "strong indicator overrides promo footer",
			subject: "Your order is out for delivery",
			body:    "Arriving before 8 pm. PS: flash sale this weekend, 70% off!",
			want:    true,
		},
		{
			name:    "signal in subject only",
			subject: "Shipped: your Flipkart order with tracking number FMPC12345678",
			body:    "",
			want:    true,
		},
		{
			name: "plain conversation",
			body: "Lunch tomorrow?",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.Classify(tt.subject, tt.from, tt.body)
			assert.Equal(t, tt.want, c.Relevant)
		})
	}
}

func TestClassifyExcludedShortCircuits(t *testing.T) {
	f := NewPreFilter(2)
	c := f.Classify("50% off everything", "", "deal of the day: your order ships free")
	assert.True(t, c.Excluded)
	assert.False(t, c.Relevant)
}

func TestClassifyStrongBeatsExclude(t *testing.T) {
	f := NewPreFilter(2)
	c := f.Classify("Out for delivery", "", "Arriving today. Flash sale inside!")
	assert.True(t, c.Strong)
	assert.True(t, c.Excluded)
	assert.True(t, c.Relevant, "a genuine notification with a promo footer still passes")
}

func TestClassifyReportsMatchedKeywords(t *testing.T) {
	f := NewPreFilter(2)
	c := f.Classify("Your order update", "", "The package will reach you soon.")
	assert.True(t, c.Relevant)
	assert.ElementsMatch(t, []string{"order", "package"}, c.MatchedKeywords)
}

func TestNewPreFilterDefault(t *testing.T) {
	assert.Equal(t, 2, NewPreFilter(0).MinMatches)
	assert.Equal(t, 3, NewPreFilter(3).MinMatches)
}
