// Package ustr provides an immutable short byte-string type used for
// process names and other small kernel labels.
package ustr

// Ustr is an immutable byte string.
type Ustr []byte

// Eq compares two Ustr values for equality.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// String renders the Ustr as a Go string, for logging.
func (us Ustr) String() string {
	return string(us)
}

// MkUstr builds a Ustr from a Go string.
func MkUstr(s string) Ustr {
	return Ustr(s)
}
