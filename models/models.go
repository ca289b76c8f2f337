package models

import (
	"fmt"

	"gohan/variantstore/models/constants"
	vt "gohan/variantstore/models/constants/variant-type"
)

var VcfHeaders = []string{"chrom", "pos", "id", "ref", "alt", "qual", "filter", "info", "format"}

// Variant is a single normalized call as handed to the load pipeline,
// or as rebuilt from a canonical document.
type Variant struct {
	Chromosome string                `json:"chromosome"`
	Start      int                   `json:"start"`
	End        int                   `json:"end"`
	Reference  string                `json:"reference"`
	Alternate  string                `json:"alternate"`
	Type       constants.VariantType `json:"type"`
	Ids        []string              `json:"ids,omitempty"`
	Studies    []*StudyEntry         `json:"studies,omitempty"`
}

type StudyEntry struct {
	StudyId             int                   `json:"studyId"`
	Files               []*FileEntry          `json:"files,omitempty"`
	SecondaryAlternates []AlternateCoordinate `json:"secondaryAlternates,omitempty"`
	Format              []string              `json:"format,omitempty"`
	Samples             []string              `json:"samples,omitempty"`
	SamplesData         [][]string            `json:"samplesData,omitempty"`
}

type FileEntry struct {
	FileId     int               `json:"fileId"`
	Call       string            `json:"call,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Src        string            `json:"src,omitempty"`
}

type AlternateCoordinate struct {
	Chromosome string                `json:"chromosome"`
	Start      int                   `json:"start"`
	End        int                   `json:"end"`
	Reference  string                `json:"reference"`
	Alternate  string                `json:"alternate"`
	Type       constants.VariantType `json:"type"`
}

func (v *Variant) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", v.Chromosome, v.Start, v.Reference, v.Alternate)
}

// Normalize fills the derived fields (type and end) when a reader left them empty
func (v *Variant) Normalize() {
	if v.Type == "" {
		v.Type = vt.Infer(v.Reference, v.Alternate)
	}
	if v.End == 0 {
		v.End = InferEnd(v.Start, v.Reference, v.Alternate, v.Type)
	}
}

func InferEnd(start int, reference string, alternate string, t constants.VariantType) int {
	if !vt.IsPositional(t) {
		return start
	}
	if len(reference) == 0 {
		// insertion between start-1 and start
		return start - 1
	}
	return start + len(reference) - 1
}

// Overlaps compares two variants by their genomic span. Insertions are
// considered to occupy the position they are anchored to.
func (v *Variant) Overlaps(o *Variant) bool {
	return Overlap(v.Chromosome, v.Start, v.End, o.Chromosome, o.Start, o.End)
}

func Overlap(chrA string, startA int, endA int, chrB string, startB int, endB int) bool {
	if chrA != chrB {
		return false
	}
	if endA < startA {
		endA = startA
	}
	if endB < startB {
		endB = startB
	}
	return startA <= endB && startB <= endA
}

func (v *Variant) Coordinate() AlternateCoordinate {
	return AlternateCoordinate{
		Chromosome: v.Chromosome,
		Start:      v.Start,
		End:        v.End,
		Reference:  v.Reference,
		Alternate:  v.Alternate,
		Type:       v.Type,
	}
}

// Study returns the entry for the given study, nil if the variant was not seen in it
func (v *Variant) Study(studyId int) *StudyEntry {
	for _, s := range v.Studies {
		if s.StudyId == studyId {
			return s
		}
	}
	return nil
}

func (s *StudyEntry) formatIndex(key string) int {
	for i, f := range s.Format {
		if f == key {
			return i
		}
	}
	return -1
}

// Genotypes returns the GT value of every sample, keyed by sample name
func (s *StudyEntry) Genotypes() map[string]string {
	gts := make(map[string]string, len(s.Samples))
	idx := s.formatIndex("GT")
	for i, sample := range s.Samples {
		gt := constants.MissingGenotype
		if idx >= 0 && i < len(s.SamplesData) && idx < len(s.SamplesData[i]) {
			gt = s.SamplesData[i][idx]
		}
		gts[sample] = gt
	}
	return gts
}

// ExtraFields returns every non GT format field as a list aligned with Samples
func (s *StudyEntry) ExtraFields() map[string][]string {
	extra := map[string][]string{}
	for fi, key := range s.Format {
		if key == "GT" {
			continue
		}
		values := make([]string, len(s.Samples))
		for i := range s.Samples {
			if i < len(s.SamplesData) && fi < len(s.SamplesData[i]) {
				values[i] = s.SamplesData[i][fi]
			}
		}
		extra[key] = values
	}
	return extra
}
