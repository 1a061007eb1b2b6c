package drive

import "fmt"

// Normalized share expiry day counts. 0 means forever. Providers translate
// these to their own enumerations; anything else is rejected at the boundary.
var validExpiryDays = map[int]bool{0: true, 1: true, 7: true, 30: true, 365: true}

// ValidateExpiry checks that days is one of the normalized expiry values.
func ValidateExpiry(days int) error {
	if !validExpiryDays[days] {
		return fmt.Errorf("drive: invalid expired_type %d (want one of 0, 1, 7, 30, 365)", days)
	}

	return nil
}
