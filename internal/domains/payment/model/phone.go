package model

import (
	"regexp"
	"strings"
)

var msisdnPattern = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhoneNumber converts the phone formats payers actually type into
// the canonical 2547XXXXXXXX / 2541XXXXXXXX form the gateway requires.
// Accepted inputs: "0712 345 678", "+254712345678", "254712345678" and the
// same shapes for 01xx numbers.
func NormalizePhoneNumber(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '-' {
			return -1
		}
		return r
	}, raw)

	phone = strings.TrimPrefix(phone, "+")

	if strings.HasPrefix(phone, "07") || strings.HasPrefix(phone, "01") {
		phone = "254" + phone[1:]
	}

	if !msisdnPattern.MatchString(phone) {
		return "", NewInvalidPhoneError(raw)
	}
	return phone, nil
}
