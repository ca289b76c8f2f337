package variant

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"gohan/variantstore/codecs/allele"
	"gohan/variantstore/models"
	vt "gohan/variantstore/models/constants/variant-type"
)

const (
	idSeparator = ":"
	// leads every hashed allele key
	hashMarker = "#"
)

// BuildId returns the document key of a variant. Keys sort by chromosome
// then position. Alleles longer than the structural variant threshold are
// replaced by their SHA-1 digest, as are alleles holding characters that
// would make the key ambiguous.
func BuildId(chromosome string, start int, reference string, alternate string) string {
	var sb strings.Builder
	sb.WriteString(PositionPrefix(chromosome, start))
	sb.WriteString(idSeparator)
	sb.WriteString(alleleKey(reference))
	sb.WriteString(idSeparator)
	sb.WriteString(alleleKey(alternate))
	return sb.String()
}

func BuildVariantId(v *models.Variant) string {
	return BuildId(v.Chromosome, v.Start, v.Reference, v.Alternate)
}

// ChromosomeKey is the chromosome part of the id, also used as a scan prefix
func ChromosomeKey(chromosome string) string {
	if len(chromosome) < 2 {
		return " " + chromosome
	}
	return chromosome
}

// ChromosomePrefix is the id prefix shared by every variant of a chromosome
func ChromosomePrefix(chromosome string) string {
	return ChromosomeKey(chromosome) + idSeparator
}

// PositionPrefix is the id prefix of the variants of a chromosome starting
// at start. Ids greater or equal to it start at start or after.
func PositionPrefix(chromosome string, start int) string {
	return ChromosomePrefix(chromosome) + fmt.Sprintf("%010d", start)
}

func alleleKey(a string) string {
	if len(a) > vt.SvThreshold || !plainKey(a) {
		sum := sha1.Sum([]byte(a))
		return hashMarker + hex.EncodeToString(sum[:])
	}
	return allele.Encode(a)
}

// plainKey tells whether a can appear in a key without being hashed: it must
// not hold the separator, the hash marker, or anything outside ASCII, which
// is where allele codes live.
func plainKey(a string) bool {
	for i := 0; i < len(a); i++ {
		if a[i] >= utf8.RuneSelf || a[i] == idSeparator[0] || a[i] == hashMarker[0] {
			return false
		}
	}
	return true
}
