package variant

import (
	"bytes"

	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/models"
	"gohan/variantstore/models/indexes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// StageCodec converts the file scoped part of a variant into a staging record.
// Genotype indexes refer to positions in the sample list of the file.
type StageCodec struct {
	Genotypes  *genotype.Codec
	IncludeSrc bool
}

func NewStageCodec(includeSrc bool) *StageCodec {
	// the modal genotype of a single file is resolved again at merge time
	return &StageCodec{Genotypes: genotype.NewCodec(""), IncludeSrc: includeSrc}
}

// NewStageDocument returns an empty staging document for the variant
func NewStageDocument(studyId int, v *models.Variant) *indexes.StageDocument {
	return &indexes.StageDocument{
		Id:         BuildVariantId(v),
		StudyId:    studyId,
		Chromosome: v.Chromosome,
		Start:      v.Start,
		End:        v.End,
		Reference:  v.Reference,
		Alternate:  v.Alternate,
		Type:       string(v.Type),
		Files:      map[int][][]byte{},
	}
}

// ToRecord builds the record of the file `fileId` for one variant line
func (c *StageCodec) ToRecord(v *models.Variant, studyId int, fileId int) (*indexes.StageRecord, error) {
	entry := v.Study(studyId)
	if entry == nil {
		return nil, errors.Errorf("variant %s has no entry for study %d", v, studyId)
	}
	rec := &indexes.StageRecord{
		Type: string(v.Type),
		End:  v.End,
		Ids:  v.Ids,
	}
	for _, f := range entry.Files {
		if f.FileId != fileId {
			continue
		}
		rec.Call = f.Call
		rec.Attributes = EscapeAttributes(f.Attributes)
		if c.IncludeSrc {
			src, err := Compress(f.Src)
			if err != nil {
				return nil, err
			}
			rec.Src = src
		}
	}
	for _, alt := range entry.SecondaryAlternates {
		rec.Alternates = append(rec.Alternates, AlternateToDocument(alt))
	}

	gts := entry.Genotypes()
	values := make([]string, len(entry.Samples))
	for i, s := range entry.Samples {
		values[i] = gts[s]
	}
	rec.Genotypes = *c.Genotypes.EncodeIndexed(values)
	rec.ExtraFields = EscapeExtraFields(entry.ExtraFields())
	return rec, nil
}

// RecordGenotypes expands the genotypes of a record for a file with `size` samples
func (c *StageCodec) RecordGenotypes(rec *indexes.StageRecord, size int) []string {
	return c.Genotypes.DecodeIndexed(size, &rec.Genotypes)
}

// MarshalRecord encodes a record. Map keys are sorted so that equal records
// have equal bytes, which the stage relies on to detect replays.
func MarshalRecord(rec *indexes.StageRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(rec); err != nil {
		return nil, errors.Wrap(err, "encoding stage record")
	}
	return buf.Bytes(), nil
}

func UnmarshalRecord(data []byte) (*indexes.StageRecord, error) {
	rec := &indexes.StageRecord{}
	if err := msgpack.Unmarshal(data, rec); err != nil {
		return nil, errors.Wrap(err, "decoding stage record")
	}
	return rec, nil
}
