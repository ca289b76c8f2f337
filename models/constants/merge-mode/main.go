package mergeMode

import (
	"errors"
	"strings"

	"gohan/variantstore/models/constants"
)

const (
	// Files are merged without looking at overlapping variants
	BASIC constants.MergeMode = "BASIC"
	// Overlapping variants are reconciled into secondary alternates
	ADVANCED constants.MergeMode = "ADVANCED"
)

func CastToMergeMode(text string) (constants.MergeMode, error) {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "", "BASIC":
		return BASIC, nil
	case "ADVANCED":
		return ADVANCED, nil
	default:
		return BASIC, errors.New("unable to parse merge mode")
	}
}

// IgnoreOverlapping tells whether overlapping variants are left untouched
func IgnoreOverlapping(mode constants.MergeMode) bool {
	return mode != ADVANCED
}
