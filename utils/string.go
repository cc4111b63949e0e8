package utils

// MaxNameLength is the longest nickname or session name accepted.
const MaxNameLength = 8

// IsAlphanumeric reports whether s consists only of ASCII letters and digits.
// The empty string is not alphanumeric.
func IsAlphanumeric(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9') {
			return false
		}
	}

	return true
}

// IsValidName reports whether s can be used as a nickname or session name:
// 1 to MaxNameLength alphanumeric characters. Such names can never contain
// any of the wire separators.
//
// Parameters:
//   - s: The candidate name
//
// Returns:
//   - true if s is acceptable
func IsValidName(s string) bool {
	return len(s) >= 1 && len(s) <= MaxNameLength && IsAlphanumeric(s)
}
