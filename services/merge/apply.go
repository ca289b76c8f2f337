package merge

import (
	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"
)

// upsert wraps the repository upsert of a target, recording what the
// committed attempt did
type upsert struct {
	repositories.VariantUpsert
	overlapped bool
}

func (m *run) newUpsert(t *target) *upsert {
	u := &upsert{}
	u.Id = t.id
	u.Apply = func(existing *indexes.VariantDocument) (*indexes.VariantDocument, error) {
		u.overlapped = false
		doc, overlapped := m.apply(t, existing)
		u.overlapped = overlapped
		return doc, nil
	}
	return u
}

// apply folds the contributions of t into the stored document. A file
// already present, called or overlapping, is never added twice. Returns
// nil when there is nothing to write. The document counts as overlapped
// when it was already in the study and only got overlapping calls, or
// got new secondary alternates.
func (m *run) apply(t *target, existing *indexes.VariantDocument) (*indexes.VariantDocument, bool) {
	doc := existing
	if doc == nil {
		doc = &indexes.VariantDocument{
			Id:         t.id,
			Chromosome: t.coord.Chromosome,
			Start:      t.coord.Start,
			End:        t.coord.End,
			Reference:  t.coord.Reference,
			Alternate:  t.coord.Alternate,
			Type:       t.coord.Type,
		}
	}
	study := doc.Study(m.studyId)
	known := study != nil

	var pending []*contribution
	calls, overlaps := 0, 0
	for _, c := range t.contribs {
		if known && study.HasFile(c.fileId()) {
			continue
		}
		// copies of indexed files only complete documents new to the study
		if c.kind == indexedFill && known {
			continue
		}
		switch c.kind {
		case called:
			calls++
		case overlapping:
			overlaps++
		}
		pending = append(pending, c)
	}
	if calls == 0 && (!known || overlaps == 0) {
		// overlapping calls alone never create a document
		return nil, false
	}

	if !known {
		doc.Studies = append(doc.Studies, indexes.StudyDocument{StudyId: m.studyId})
		study = &doc.Studies[len(doc.Studies)-1]
	}
	alternates := len(study.Alternates)
	gts := m.gts.DecodeIds(variant.StudyScope(m.resolver, study), &study.Genotypes)

	for _, c := range pending {
		if m.renormalize {
			mapping := map[int]int{}
			for i, a := range c.alleles {
				mapping[i+1] = allelePosition(t.coord, &study.Alternates, a)
			}
			for s, gt := range c.gts {
				gts[s] = genotype.Remap(gt, mapping)
			}
		} else {
			if len(study.Alternates) == 0 && c.kind == called {
				study.Alternates = append(study.Alternates, c.alleles[1:]...)
			}
			for s, gt := range c.gts {
				gts[s] = gt
			}
		}
		study.Files = append(study.Files, c.file)
		doc.Ids = unionStrings(doc.Ids, c.ids)
	}
	study.Genotypes = *m.gts.EncodeIds(gts)
	grown := m.renormalize && len(study.Alternates) > alternates
	return doc, known && (calls == 0 || grown)
}

// allelePosition returns the allele index of a in the allele list of the
// document, appending it to the secondary alternates when missing
func allelePosition(main indexes.AlternateDocument, alternates *[]indexes.AlternateDocument, a indexes.AlternateDocument) int {
	if sameAllele(main, a) {
		return 1
	}
	for i, alt := range *alternates {
		if sameAllele(alt, a) {
			return i + 2
		}
	}
	*alternates = append(*alternates, a)
	return len(*alternates) + 1
}

func unionStrings(a []string, b []string) []string {
	for _, v := range b {
		found := false
		for _, w := range a {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			a = append(a, v)
		}
	}
	return a
}
