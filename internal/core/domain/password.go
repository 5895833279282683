package domain

// passwordSpecials are the special characters accepted in passwords.
const passwordSpecials = "@$!%*#?&"

// ValidPassword enforces the password policy: at least 8 characters drawn
// from letters, digits and passwordSpecials, with at least one of each.
func ValidPassword(p string) bool {
	if len(p) < 8 {
		return false
	}
	var letter, digit, special bool
	for _, r := range p {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case isPasswordSpecial(r):
			special = true
		default:
			return false
		}
	}
	return letter && digit && special
}

func isPasswordSpecial(r rune) bool {
	for _, s := range passwordSpecials {
		if r == s {
			return true
		}
	}
	return false
}
