package geo

// Placeholder is shown until an address resolves, and forever if it never does
const Placeholder = "🏳"

// regionalIndicatorA is REGIONAL INDICATOR SYMBOL LETTER A
const regionalIndicatorA = 0x1F1E6

// Flag converts an ISO 3166-1 alpha-2 country code into its flag emoji: two
// regional indicator symbols, each offset from the corresponding letter.
// Lower-case input is accepted. Anything other than two ASCII letters fails.
func Flag(code string) (string, bool) {
	if len(code) != 2 {
		return "", false
	}
	runes := make([]rune, 0, 2)
	for i := 0; i < 2; i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return "", false
		}
		runes = append(runes, rune(regionalIndicatorA+int(c-'A')))
	}
	return string(runes), true
}

// CountryCode reverses Flag
func CountryCode(flag string) (string, bool) {
	runes := []rune(flag)
	if len(runes) != 2 {
		return "", false
	}
	code := make([]byte, 0, 2)
	for _, r := range runes {
		off := int(r) - regionalIndicatorA
		if off < 0 || off > 25 {
			return "", false
		}
		code = append(code, byte('A'+off))
	}
	return string(code), true
}
