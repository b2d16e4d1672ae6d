package extract

import (
	"net/url"
	"strings"
)

// NormalizePhone canonicalizes a phone number to digits only. A leading
// country prefix of "1" on an 11-digit number is stripped. Numbers outside
// 8-13 digits are rejected as noise.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 8 || len(digits) > 13 {
		return ""
	}
	return digits
}

// NormalizeURL canonicalizes a URL to lower-cased scheme://host/path,
// dropping query string and fragment. A www-prefixed address without a
// scheme gets http. Unparseable input is dropped.
func NormalizeURL(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?)")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	normalized := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.ToLower(strings.TrimRight(u.Path, "/"))
	return normalized
}

// NormalizeFinancialID strips separators from a financial identifier and
// requires a minimum structural length so arbitrary short digit runs are
// rejected. Payment handles and routing codes are lower/upper-cased
// respectively; digit identifiers keep digits only.
func NormalizeFinancialID(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		handle := strings.ToLower(raw)
		if len(handle) < 6 {
			return ""
		}
		return handle
	}
	// routing codes stay alphanumeric
	if routingPattern.MatchString(strings.ToUpper(raw)) {
		return strings.ToUpper(raw)
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 20 {
		return ""
	}
	return digits
}
