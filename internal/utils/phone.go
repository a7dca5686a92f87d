package utils

import "strings"

// NormalizePhone converts a phone number into international form using
// countryCode (e.g. "+45") for national numbers:
//
//	"12345678"     -> "+4512345678"
//	"012345678"    -> "+4512345678"
//	"004512345678" -> "+4512345678"
//	"+4512345678"  -> "+4512345678"
//
// Whitespace and every character other than digits and '+' are dropped
// first. An input without digits yields "".
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.Trim(s, "+") == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	case strings.HasPrefix(s, "0"):
		return countryCode + s[1:]
	}
	return countryCode + s
}
