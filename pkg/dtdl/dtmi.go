package dtdl

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidDTMI rejects identifiers that do not follow the DTMI grammar.
var ErrInvalidDTMI = errors.New("invalid DTMI")

// DTMI length caps. Interface identifiers are capped tighter than other
// element identifiers.
const (
	MaxInterfaceDTMILength = 128
	MaxElementDTMILength   = 2048
)

var dtmiRe = regexp.MustCompile(`^dtmi:[A-Za-z][A-Za-z0-9_]*(:[A-Za-z_][A-Za-z0-9_]*)*(;[1-9]\d{0,8}(\.[1-9]\d{0,5})?)?$`)

// ValidateDTMI checks the identifier against the DTMI grammar and the
// applicable length cap.
func ValidateDTMI(dtmi string, isInterface bool) error {
	limit := MaxElementDTMILength
	if isInterface {
		limit = MaxInterfaceDTMILength
	}
	if len(dtmi) > limit {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidDTMI, truncate(dtmi, 64), limit)
	}
	if !dtmiRe.MatchString(dtmi) {
		return fmt.Errorf("%w: %q", ErrInvalidDTMI, truncate(dtmi, 64))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
