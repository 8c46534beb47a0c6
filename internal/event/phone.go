package event

import "strings"

// NormalizePhone canonicalizes a phone string to +<digits> form.
//
//	0555123456        -> +966555123456  (with default cc +966)
//	+966 55 512 3456  -> +966555123456
//	966555123456      -> +966555123456
//	00966555123456    -> +966555123456
//
// Total and idempotent: never fails, and applying it twice equals
// applying it once.
func NormalizePhone(raw, defaultCC string) string {
	p := keepDigitsAndPlus(strings.TrimSpace(raw))
	if p == "" || p == "+" {
		return ""
	}

	if strings.HasPrefix(p, "00") {
		p = "+" + p[2:]
	}

	if strings.HasPrefix(p, "+") {
		return "+" + digitsOnly(p[1:])
	}

	ccDigits := digitsOnly(defaultCC)
	if ccDigits != "" && strings.HasPrefix(p, ccDigits) {
		return "+" + p
	}

	if strings.HasPrefix(p, "0") {
		p = p[1:]
	}

	if !strings.HasPrefix(defaultCC, "+") {
		defaultCC = "+" + ccDigits
	}
	return defaultCC + p
}

func keepDigitsAndPlus(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
