package commissioning

import "fmt"

// Dihedral group D5 tables of the Verhoeff check digit scheme.
var (
	verhoeffD = [10][10]uint8{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP   = [10]uint8{1, 5, 7, 6, 2, 8, 3, 0, 9, 4}
	verhoeffInv = [10]uint8{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}
)

// verhoeffCompute returns the check digit for a string of decimal digits.
func verhoeffCompute(digits string) (byte, error) {
	var c uint8
	for i := len(digits) - 1; i >= 0; i-- {
		ch := digits[i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%w: non-digit %q", ErrInvalidPayload, ch)
		}
		p := ch - '0'
		for range len(digits) - i {
			p = verhoeffP[p]
		}
		c = verhoeffD[c][p]
	}
	return '0' + verhoeffInv[c], nil
}

// verhoeffValidate reports whether the last digit of s checks the rest.
func verhoeffValidate(s string) bool {
	if len(s) < 2 {
		return false
	}
	want, err := verhoeffCompute(s[:len(s)-1])
	return err == nil && want == s[len(s)-1]
}
