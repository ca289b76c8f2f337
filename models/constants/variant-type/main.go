package variantType

import (
	"strings"

	"gohan/variantstore/models/constants"
)

const (
	SNV           constants.VariantType = "SNV"
	MNV           constants.VariantType = "MNV"
	INDEL         constants.VariantType = "INDEL"
	SV            constants.VariantType = "SV"
	INSERTION     constants.VariantType = "INSERTION"
	DELETION      constants.VariantType = "DELETION"
	CNV           constants.VariantType = "CNV"
	DUPLICATION   constants.VariantType = "DUPLICATION"
	INVERSION     constants.VariantType = "INVERSION"
	TRANSLOCATION constants.VariantType = "TRANSLOCATION"
	BREAKEND      constants.VariantType = "BREAKEND"
	SYMBOLIC      constants.VariantType = "SYMBOLIC"
	NO_VARIATION  constants.VariantType = "NO_VARIATION"
	MIXED         constants.VariantType = "MIXED"
)

// SvThreshold is the allele length from which a variant is considered structural
const SvThreshold = 50

// Types of variants that are never loaded
var Skipped = map[constants.VariantType]bool{
	NO_VARIATION:  true,
	SYMBOLIC:      true,
	TRANSLOCATION: true,
}

func IsSkipped(t constants.VariantType) bool {
	return Skipped[t]
}

// IsPositional is false for types whose end can not be derived from the alleles
func IsPositional(t constants.VariantType) bool {
	return t != SYMBOLIC && t != CNV && t != BREAKEND && t != TRANSLOCATION
}

// Infer guesses the type of a variant from its alleles
func Infer(reference string, alternate string) constants.VariantType {
	switch {
	case alternate == "" && reference == "":
		return NO_VARIATION
	case alternate == "." || alternate == "<NON_REF>" || alternate == "<*>":
		return NO_VARIATION
	case strings.HasPrefix(alternate, "<CN") || alternate == "<CNV>":
		return CNV
	case alternate == "<DUP>" || strings.HasPrefix(alternate, "<DUP:"):
		return DUPLICATION
	case alternate == "<INV>":
		return INVERSION
	case alternate == "<DEL>" || strings.HasPrefix(alternate, "<DEL:"):
		return DELETION
	case alternate == "<INS>" || strings.HasPrefix(alternate, "<INS:"):
		return INSERTION
	case strings.HasPrefix(alternate, "<"):
		return SYMBOLIC
	case strings.ContainsAny(alternate, "[]"):
		return BREAKEND
	}

	refLen, altLen := len(reference), len(alternate)
	switch {
	case refLen == altLen && refLen == 1:
		return SNV
	case refLen == altLen:
		return MNV
	case refLen > SvThreshold || altLen > SvThreshold:
		return SV
	default:
		return INDEL
	}
}
