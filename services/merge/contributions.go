package merge

import (
	"fmt"
	"strings"

	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models/indexes"
)

type contributionKind int

const (
	// the file called the variant itself
	called contributionKind = iota
	// a file being merged called an overlapping variant
	overlapping
	// an indexed file called an overlapping variant, copied into new documents
	indexedFill
)

// contribution is what one file adds to one canonical document
type contribution struct {
	kind contributionKind
	file indexes.FileDocument
	// alleles of the source call, the first one is the call itself; genotype
	// allele i refers to alleles[i-1]
	alleles []indexes.AlternateDocument
	// sample id -> genotype
	gts map[int]string
	ids []string
}

func (c *contribution) fileId() int {
	if c.file.FileId < 0 {
		return -c.file.FileId
	}
	return c.file.FileId
}

// target is one canonical document and everything the batch adds to it
type target struct {
	id       string
	coord    indexes.AlternateDocument
	contribs []*contribution
}

func (t *target) hasCalls() bool {
	for _, c := range t.contribs {
		if c.kind == called {
			return true
		}
	}
	return false
}

func stageCoordinate(d *indexes.StageDocument) indexes.AlternateDocument {
	return indexes.AlternateDocument{
		Chromosome: d.Chromosome,
		Start:      d.Start,
		End:        d.End,
		Reference:  d.Reference,
		Alternate:  d.Alternate,
		Type:       d.Type,
	}
}

func canonicalCoordinate(d *indexes.VariantDocument) indexes.AlternateDocument {
	return indexes.AlternateDocument{
		Chromosome: d.Chromosome,
		Start:      d.Start,
		End:        d.End,
		Reference:  d.Reference,
		Alternate:  d.Alternate,
		Type:       d.Type,
	}
}

func sameAllele(a indexes.AlternateDocument, b indexes.AlternateDocument) bool {
	return a.Chromosome == b.Chromosome && a.Start == b.Start &&
		a.Reference == b.Reference && a.Alternate == b.Alternate
}

// describe is used as the call of an overlapping contribution when the
// source record kept none
func describe(a indexes.AlternateDocument) string {
	return fmt.Sprintf("%d:%s:%s:0", a.Start, a.Reference, a.Alternate)
}

// fromRecord decodes the single record of a file at a stage document
func (m *run) fromRecord(d *indexes.StageDocument, fileId int, raw []byte, kind contributionKind) (*contribution, error) {
	rec, err := variant.UnmarshalRecord(raw)
	if err != nil {
		return nil, err
	}
	coord := stageCoordinate(d)
	coord.End, coord.Type = rec.End, rec.Type
	c := &contribution{
		kind:    kind,
		alleles: append([]indexes.AlternateDocument{coord}, rec.Alternates...),
		gts:     map[int]string{},
		ids:     rec.Ids,
	}

	samples := m.resolver.FileSamples(m.studyId, fileId)
	for i, gt := range m.stageCodec.RecordGenotypes(rec, len(samples)) {
		c.gts[samples[i]] = gt
	}

	if kind == called {
		c.file = indexes.FileDocument{
			FileId:      fileId,
			Call:        rec.Call,
			Attributes:  rec.Attributes,
			ExtraFields: rec.ExtraFields,
		}
		if m.opts.IncludeSrc {
			c.file.Src = rec.Src
		}
		return c, nil
	}
	call := rec.Call
	if call == "" {
		call = describe(coord)
	}
	c.file = indexes.FileDocument{FileId: -fileId, Call: call, Attributes: rec.Attributes}
	return c, nil
}

// fromCanonical copies what an indexed file holds in a canonical document
func (m *run) fromCanonical(d *indexes.VariantDocument, fileId int) *contribution {
	study := d.Study(m.studyId)
	if study == nil {
		return nil
	}
	fd := study.File(fileId)
	if fd == nil {
		return nil
	}
	coord := canonicalCoordinate(d)
	samples := m.resolver.FileSamples(m.studyId, fileId)
	call := fd.Call
	if call == "" {
		call = describe(coord)
	}
	return &contribution{
		kind:    indexedFill,
		file:    indexes.FileDocument{FileId: -fileId, Call: call, Attributes: fd.Attributes},
		alleles: append([]indexes.AlternateDocument{coord}, study.Alternates...),
		gts:     m.gts.DecodeIds(samples, &study.Genotypes),
	}
}

// loadedGenotypes lists the distinct genotypes called by the files
func loadedGenotypes(targets []*target) []string {
	set := map[string]bool{}
	for _, t := range targets {
		for _, c := range t.contribs {
			if c.kind != called {
				continue
			}
			for _, gt := range c.gts {
				if genotype.IsValid(gt) && !strings.Contains(gt, "?") {
					set[gt] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for gt := range set {
		out = append(out, gt)
	}
	return out
}
