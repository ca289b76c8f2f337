package genotype

import (
	"sort"
	"strconv"
	"strings"

	"gohan/variantstore/models/constants"
	"gohan/variantstore/models/indexes"
)

/*
	Per-sample genotype compression : the most common genotype of a
	set of samples is kept implicit, the others are listed with the
	indexes of the samples holding them.
*/

const (
	// stands for a missing allele "." which may not be a legal key in the store
	missingToken = "-1"
	// prefix of genotypes that could not be parsed and are stored literally
	literalMarker = "!"
)

type Block = indexes.GenotypeBlock

type Codec struct {
	// when not empty, this genotype is always the implicit one
	FixedDefault string
}

func NewCodec(fixedDefault string) *Codec {
	return &Codec{FixedDefault: fixedDefault}
}

// Encode compresses the genotypes of `samples`, indexes in the block
// refer to positions in `samples`. When samples is nil the sorted keys
// of gts are used.
func (c *Codec) Encode(samples []string, gts map[string]string) *Block {
	if samples == nil {
		samples = make([]string, 0, len(gts))
		for s := range gts {
			samples = append(samples, s)
		}
		sort.Strings(samples)
	}
	values := make([]string, len(samples))
	for i, s := range samples {
		gt, ok := gts[s]
		if !ok {
			gt = constants.MissingGenotype
		}
		values[i] = gt
	}
	return c.EncodeIndexed(values)
}

// EncodeIndexed compresses a genotype list where the position is the sample index
func (c *Codec) EncodeIndexed(values []string) *Block {
	var order []string
	groups := map[string][]int{}
	for i, gt := range values {
		key := EncodeGenotype(gt)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	def := ""
	if c.FixedDefault != "" {
		def = EncodeGenotype(c.FixedDefault)
	} else {
		best := -1
		for _, key := range order {
			if len(groups[key]) > best {
				best = len(groups[key])
				def = key
			}
		}
		if def == "" {
			def = EncodeGenotype(constants.UnknownGenotype)
		}
	}

	block := &Block{Default: def, Exceptions: map[string][]int{}}
	for key, idx := range groups {
		if key == def {
			continue
		}
		block.Exceptions[key] = idx
	}
	return block
}

// Decode rebuilds the per-sample genotype map of a block
func (c *Codec) Decode(samples []string, block *Block) map[string]string {
	values := c.DecodeIndexed(len(samples), block)
	gts := make(map[string]string, len(samples))
	for i, s := range samples {
		gts[s] = values[i]
	}
	return gts
}

func (c *Codec) DecodeIndexed(size int, block *Block) []string {
	values := make([]string, size)
	def := DecodeGenotype(block.Default)
	for i := range values {
		values[i] = def
	}
	for key, idx := range block.Exceptions {
		gt := DecodeGenotype(key)
		for _, i := range idx {
			if i >= 0 && i < size {
				values[i] = gt
			}
		}
	}
	return values
}

// EncodeIds compresses genotypes keyed by sample id, indexes in the block
// are the sample ids themselves
func (c *Codec) EncodeIds(gts map[int]string) *Block {
	ids := make([]int, 0, len(gts))
	for id := range gts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = gts[id]
	}
	block := c.EncodeIndexed(values)
	for key, idx := range block.Exceptions {
		translated := make([]int, len(idx))
		for i, pos := range idx {
			translated[i] = ids[pos]
		}
		block.Exceptions[key] = translated
	}
	return block
}

// DecodeIds expands a block over the sample ids in scope
func (c *Codec) DecodeIds(scope []int, block *Block) map[int]string {
	gts := make(map[int]string, len(scope))
	def := DecodeGenotype(block.Default)
	for _, id := range scope {
		gts[id] = def
	}
	for key, idx := range block.Exceptions {
		gt := DecodeGenotype(key)
		for _, id := range idx {
			if _, ok := gts[id]; ok {
				gts[id] = gt
			}
		}
	}
	return gts
}

// Genotype is a parsed GT value
type Genotype struct {
	Alleles []int
	Phased  bool
}

// Parse reads a VCF GT value. Missing alleles are -1.
func Parse(gt string) (*Genotype, bool) {
	if gt == "" {
		return nil, false
	}
	g := &Genotype{Phased: strings.Contains(gt, "|")}
	for _, a := range strings.FieldsFunc(gt, func(r rune) bool { return r == '/' || r == '|' }) {
		if a == "." {
			g.Alleles = append(g.Alleles, -1)
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return nil, false
		}
		g.Alleles = append(g.Alleles, n)
	}
	if len(g.Alleles) == 0 || countSeparators(gt) != len(g.Alleles)-1 {
		return nil, false
	}
	if strings.Contains(gt, "/") && g.Phased {
		// mixed separators are kept as they are
		return nil, false
	}
	return g, true
}

func countSeparators(gt string) int {
	return strings.Count(gt, "/") + strings.Count(gt, "|")
}

func (g *Genotype) format(missing string) string {
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	parts := make([]string, len(g.Alleles))
	for i, a := range g.Alleles {
		if a < 0 {
			parts[i] = missing
		} else {
			parts[i] = strconv.Itoa(a)
		}
	}
	return strings.Join(parts, sep)
}

func (g *Genotype) String() string {
	return g.format(".")
}

// EncodeGenotype turns a GT value into a safe key for the store
func EncodeGenotype(gt string) string {
	if gt == constants.UnknownGenotype {
		return gt
	}
	g, ok := Parse(gt)
	if !ok {
		return literalMarker + gt
	}
	encoded := g.format(missingToken)
	if g.String() != gt {
		// not in canonical form, e.g. "00/1"
		return literalMarker + gt
	}
	return encoded
}

func DecodeGenotype(key string) string {
	if strings.HasPrefix(key, literalMarker) {
		return key[len(literalMarker):]
	}
	if !strings.Contains(key, missingToken) {
		return key
	}
	sep := "/"
	if strings.Contains(key, "|") {
		sep = "|"
	}
	parts := strings.Split(key, sep)
	for i, p := range parts {
		if p == missingToken {
			parts[i] = "."
		}
	}
	return strings.Join(parts, sep)
}

// Remap rewrites the allele indexes of a genotype. Alleles without a
// mapping become missing. Unparseable genotypes are returned unchanged.
func Remap(gt string, mapping map[int]int) string {
	g, ok := Parse(gt)
	if !ok {
		return gt
	}
	for i, a := range g.Alleles {
		if a <= 0 {
			continue
		}
		if to, found := mapping[a]; found {
			g.Alleles[i] = to
		} else {
			g.Alleles[i] = -1
		}
	}
	return g.String()
}

// IsValid tells whether the genotype can be parsed
func IsValid(gt string) bool {
	_, ok := Parse(gt)
	return ok
}
