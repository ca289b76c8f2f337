package allele

import (
	"strings"
)

/*
	Reversible compression of nucleotide alleles : every 3 then 2
	base ACGT window is replaced by a single rune taken from the
	Latin Extended-A block, which never appears in a raw allele.
*/

const (
	bases = "ACGT"
	// first rune of the code range, the table spans 80 runes from there
	codeBase = '\u0100'
	// alleles holding any of these are symbolic and left untouched
	symbolic = "<>[].|-"
)

var (
	encodeTable = map[string]rune{}
	decodeTable = map[rune]string{}
)

func init() {
	var windows []string
	for _, a := range bases {
		for _, b := range bases {
			for _, c := range bases {
				windows = append(windows, string([]rune{a, b, c}))
			}
		}
	}
	for _, a := range bases {
		for _, b := range bases {
			windows = append(windows, string([]rune{a, b}))
		}
	}

	for i, w := range windows {
		code := codeBase + rune(i)
		encodeTable[w] = code
		decodeTable[code] = w
	}
}

// IsCode tells whether r belongs to the code range
func IsCode(r rune) bool {
	_, ok := decodeTable[r]
	return ok
}

func isSymbolic(allele string) bool {
	return strings.ContainsAny(allele, symbolic)
}

func isBase(c byte) bool {
	return c == 'A' || c == 'C' || c == 'G' || c == 'T'
}

// Encode compresses the ACGT runs of an allele. Symbolic alleles, and
// alleles out of the {A,C,G,T,N,*,,} alphabet, are returned as is.
func Encode(allele string) string {
	if len(allele) < 2 || isSymbolic(allele) || !Encodable(allele) {
		return allele
	}
	var sb strings.Builder
	sb.Grow(len(allele))
	for i := 0; i < len(allele); {
		if i+3 <= len(allele) && isBase(allele[i]) && isBase(allele[i+1]) && isBase(allele[i+2]) {
			sb.WriteRune(encodeTable[allele[i:i+3]])
			i += 3
			continue
		}
		if i+2 <= len(allele) && isBase(allele[i]) && isBase(allele[i+1]) {
			sb.WriteRune(encodeTable[allele[i:i+2]])
			i += 2
			continue
		}
		sb.WriteByte(allele[i])
		i++
	}
	return sb.String()
}

// Decode reverts Encode
func Decode(code string) string {
	if code == "" || isSymbolic(code) {
		return code
	}
	var sb strings.Builder
	sb.Grow(len(code) * 2)
	for _, r := range code {
		if w, ok := decodeTable[r]; ok {
			sb.WriteString(w)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Encodable tells whether the allele only holds characters Encode can round trip
func Encodable(allele string) bool {
	for i := 0; i < len(allele); i++ {
		switch allele[i] {
		case 'A', 'C', 'G', 'T', 'N', '*', ',':
		default:
			return false
		}
	}
	return true
}
