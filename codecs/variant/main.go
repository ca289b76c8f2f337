package variant

import (
	"sort"
	"time"

	"gohan/variantstore/codecs"
	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/models"
	"gohan/variantstore/models/constants"
	"gohan/variantstore/models/indexes"

	"github.com/pkg/errors"
)

// SampleResolver maps the sample names of a study to their numeric ids
type SampleResolver interface {
	SampleId(studyId int, name string) (int, bool)
	SampleName(studyId int, sampleId int) (string, bool)
	FileSamples(studyId int, fileId int) []int
}

// StudyResolver resolves samples from a set of study configurations
type StudyResolver map[int]*models.StudyConfiguration

func NewStudyResolver(studies ...*models.StudyConfiguration) StudyResolver {
	r := StudyResolver{}
	for _, sc := range studies {
		r[sc.StudyId] = sc
	}
	return r
}

func (r StudyResolver) SampleId(studyId int, name string) (int, bool) {
	sc, ok := r[studyId]
	if !ok {
		return 0, false
	}
	id, ok := sc.SampleIds[name]
	return id, ok
}

func (r StudyResolver) SampleName(studyId int, sampleId int) (string, bool) {
	sc, ok := r[studyId]
	if !ok {
		return "", false
	}
	for name, id := range sc.SampleIds {
		if id == sampleId {
			return name, true
		}
	}
	return "", false
}

func (r StudyResolver) FileSamples(studyId int, fileId int) []int {
	sc, ok := r[studyId]
	if !ok {
		return nil
	}
	return sc.SamplesInFiles[fileId]
}

// Codec converts variants into canonical documents and back
type Codec struct {
	Samples    SampleResolver
	Genotypes  *genotype.Codec
	IncludeSrc bool
}

var _ codecs.Codec[*models.Variant, *indexes.VariantDocument] = (*Codec)(nil)

func NewCodec(samples SampleResolver, gts *genotype.Codec, includeSrc bool) *Codec {
	if gts == nil {
		gts = genotype.NewCodec("")
	}
	return &Codec{Samples: samples, Genotypes: gts, IncludeSrc: includeSrc}
}

func (c *Codec) ToDocument(v *models.Variant) (*indexes.VariantDocument, error) {
	if v == nil {
		return nil, errors.New("nil variant")
	}
	now := time.Now()
	doc := &indexes.VariantDocument{
		Id:          BuildVariantId(v),
		Chromosome:  v.Chromosome,
		Start:       v.Start,
		End:         v.End,
		Reference:   v.Reference,
		Alternate:   v.Alternate,
		Type:        string(v.Type),
		Ids:         v.Ids,
		CreatedTime: now,
		UpdatedTime: now,
	}
	for _, entry := range v.Studies {
		study, err := c.studyToDocument(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", v)
		}
		doc.Studies = append(doc.Studies, *study)
	}
	return doc, nil
}

func (c *Codec) studyToDocument(entry *models.StudyEntry) (*indexes.StudyDocument, error) {
	study := &indexes.StudyDocument{StudyId: entry.StudyId}

	gts := map[int]string{}
	for name, gt := range entry.Genotypes() {
		id, ok := c.Samples.SampleId(entry.StudyId, name)
		if !ok {
			return nil, errors.Errorf("unknown sample %q in study %d", name, entry.StudyId)
		}
		gts[id] = gt
	}
	study.Genotypes = *c.Genotypes.EncodeIds(gts)

	extra := entry.ExtraFields()
	for i, f := range entry.Files {
		fd, err := c.fileToDocument(f)
		if err != nil {
			return nil, err
		}
		// format fields other than GT follow the sample order of the first file
		if i == 0 && len(extra) > 0 {
			fd.ExtraFields = EscapeExtraFields(extra)
		}
		study.Files = append(study.Files, *fd)
	}
	for _, alt := range entry.SecondaryAlternates {
		study.Alternates = append(study.Alternates, AlternateToDocument(alt))
	}
	return study, nil
}

func (c *Codec) fileToDocument(f *models.FileEntry) (*indexes.FileDocument, error) {
	fd := &indexes.FileDocument{
		FileId:     f.FileId,
		Call:       f.Call,
		Attributes: EscapeAttributes(f.Attributes),
	}
	if c.IncludeSrc {
		src, err := Compress(f.Src)
		if err != nil {
			return nil, err
		}
		fd.Src = src
	}
	return fd, nil
}

func (c *Codec) FromDocument(doc *indexes.VariantDocument) (*models.Variant, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	v := &models.Variant{
		Chromosome: doc.Chromosome,
		Start:      doc.Start,
		End:        doc.End,
		Reference:  doc.Reference,
		Alternate:  doc.Alternate,
		Type:       constants.VariantType(doc.Type),
		Ids:        doc.Ids,
	}
	for i := range doc.Studies {
		entry, err := c.studyFromDocument(&doc.Studies[i])
		if err != nil {
			return nil, errors.Wrapf(err, "document %s", doc.Id)
		}
		v.Studies = append(v.Studies, entry)
	}
	return v, nil
}

// Scope returns the sample ids covered by the genotypes of a study document
func (c *Codec) Scope(study *indexes.StudyDocument) []int {
	return StudyScope(c.Samples, study)
}

func StudyScope(samples SampleResolver, study *indexes.StudyDocument) []int {
	seen := map[int]bool{}
	var scope []int
	for _, f := range study.Files {
		fid := f.FileId
		if fid < 0 {
			fid = -fid
		}
		for _, s := range samples.FileSamples(study.StudyId, fid) {
			if !seen[s] {
				seen[s] = true
				scope = append(scope, s)
			}
		}
	}
	sort.Ints(scope)
	return scope
}

func (c *Codec) studyFromDocument(study *indexes.StudyDocument) (*models.StudyEntry, error) {
	entry := &models.StudyEntry{StudyId: study.StudyId}

	scope := c.Scope(study)
	gts := c.Genotypes.DecodeIds(scope, &study.Genotypes)

	// extra format fields, keyed by sample id
	extraKeys := map[string]bool{}
	extraValues := map[string]map[int]string{}
	for _, f := range study.Files {
		if f.FileId < 0 {
			continue
		}
		fileSamples := c.Samples.FileSamples(study.StudyId, f.FileId)
		for key, values := range f.ExtraFields {
			name := UnescapeKey(key)
			extraKeys[name] = true
			if extraValues[name] == nil {
				extraValues[name] = map[int]string{}
			}
			for i, value := range values {
				if i < len(fileSamples) {
					extraValues[name][fileSamples[i]] = value
				}
			}
		}
	}
	entry.Format = []string{"GT"}
	for key := range extraKeys {
		entry.Format = append(entry.Format, key)
	}
	sort.Strings(entry.Format[1:])

	for _, id := range scope {
		name, ok := c.Samples.SampleName(study.StudyId, id)
		if !ok {
			return nil, errors.Errorf("unknown sample id %d in study %d", id, study.StudyId)
		}
		entry.Samples = append(entry.Samples, name)
		data := make([]string, len(entry.Format))
		data[0] = gts[id]
		for i, key := range entry.Format[1:] {
			data[i+1] = extraValues[key][id]
		}
		entry.SamplesData = append(entry.SamplesData, data)
	}

	for _, f := range study.Files {
		src, err := Decompress(f.Src)
		if err != nil {
			return nil, err
		}
		entry.Files = append(entry.Files, &models.FileEntry{
			FileId:     f.FileId,
			Call:       f.Call,
			Attributes: UnescapeAttributes(f.Attributes),
			Src:        src,
		})
	}
	for _, alt := range study.Alternates {
		entry.SecondaryAlternates = append(entry.SecondaryAlternates, AlternateFromDocument(alt))
	}
	return entry, nil
}

func AlternateToDocument(alt models.AlternateCoordinate) indexes.AlternateDocument {
	return indexes.AlternateDocument{
		Chromosome: alt.Chromosome,
		Start:      alt.Start,
		End:        alt.End,
		Reference:  alt.Reference,
		Alternate:  alt.Alternate,
		Type:       string(alt.Type),
	}
}

func AlternateFromDocument(alt indexes.AlternateDocument) models.AlternateCoordinate {
	return models.AlternateCoordinate{
		Chromosome: alt.Chromosome,
		Start:      alt.Start,
		End:        alt.End,
		Reference:  alt.Reference,
		Alternate:  alt.Alternate,
		Type:       constants.VariantType(alt.Type),
	}
}
