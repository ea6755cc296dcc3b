package parser

import (
	"html"
	"regexp"
	"strings"
)

// DefaultMaxContentChars caps cleaned content length. Shipping emails put
// their signal in the first screenful; the rest is footer and legal text,
// and generative extraction is billed by the token.
const DefaultMaxContentChars = 4000

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headRe    = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	// Table cells become " | " separators so label/value pairs laid out
	// in table rows ("Tracking Number" | "AWB123...") stay adjacent.
	cellRe  = regexp.MustCompile(`(?i)</t[dh]>`)
	breakRe = regexp.MustCompile(`(?i)<(?:br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	blankRe = regexp.MustCompile(`\n{3,}`)
)

// CleanContent flattens raw email HTML into plain text suitable for both
// regex extraction and a generative prompt, truncated to maxChars (or
// DefaultMaxContentChars when maxChars <= 0). Plain-text input passes
// through mostly untouched apart from whitespace normalization.
func CleanContent(raw string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContentChars
	}

	s := scriptRe.ReplaceAllString(raw, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = headRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = cellRe.ReplaceAllString(s, " | ")
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if len(s) > maxChars {
		s = s[:maxChars]
		// Avoid ending mid-word; a clipped token can masquerade as a
		// tracking number.
		if i := strings.LastIndexAny(s, " \n"); i > maxChars/2 {
			s = s[:i]
		}
	}
	return s
}
