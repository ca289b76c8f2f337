package merge

import (
	"context"
	"io"

	"gohan/variantstore/models/constants"
	vt "gohan/variantstore/models/constants/variant-type"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"
)

// region is a run of stage documents, sorted by position, where each
// document overlaps at least one of the previous ones
type region []*indexes.StageDocument

// regionReader pages through the stage and never splits a region across
// two calls to next
type regionReader struct {
	store repositories.StageRepository
	query repositories.StageQuery
	// every document is a region of its own
	single   bool
	pageSize int

	after     string
	buf       []*indexes.StageDocument
	exhausted bool
}

func newRegionReader(store repositories.StageRepository, q repositories.StageQuery, single bool, pageSize int) *regionReader {
	if pageSize < 1 {
		pageSize = 1
	}
	return &regionReader{store: store, query: q, single: single, pageSize: pageSize}
}

func (r *regionReader) peek(ctx context.Context) (*indexes.StageDocument, error) {
	if len(r.buf) == 0 && !r.exhausted {
		page, err := r.store.ReadStage(ctx, r.query, r.after, r.pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) < r.pageSize {
			r.exhausted = true
		}
		if len(page) > 0 {
			r.after = page[len(page)-1].Id
			r.buf = page
		}
	}
	if len(r.buf) == 0 {
		return nil, nil
	}
	return r.buf[0], nil
}

func (r *regionReader) pop() *indexes.StageDocument {
	d := r.buf[0]
	r.buf = r.buf[1:]
	return d
}

// next returns the following region, io.EOF once the stage is exhausted
func (r *regionReader) next(ctx context.Context) (region, error) {
	first, err := r.peek(ctx)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, io.EOF
	}
	r.pop()
	reg := region{first}
	if r.single || isStructural(constants.VariantType(first.Type)) {
		return reg, nil
	}

	end := spanEnd(first.Start, first.End)
	for {
		n, err := r.peek(ctx)
		if err != nil {
			return nil, err
		}
		if n == nil || n.Chromosome != first.Chromosome || n.Start > end || isStructural(constants.VariantType(n.Type)) {
			return reg, nil
		}
		reg = append(reg, r.pop())
		if e := spanEnd(n.Start, n.End); e > end {
			end = e
		}
	}
}

// read fills a pipeline batch with up to size regions
func (r *regionReader) read(ctx context.Context, size int) ([]region, error) {
	var out []region
	for len(out) < size {
		reg, err := r.next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, reg)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// structural variants are merged alone, they would glue whole chromosomes together
func isStructural(t constants.VariantType) bool {
	switch t {
	case vt.SV, vt.CNV, vt.DUPLICATION, vt.INVERSION, vt.INSERTION, vt.DELETION, vt.BREAKEND, vt.SYMBOLIC, vt.TRANSLOCATION:
		return true
	}
	return false
}

// spanEnd is the last position occupied, an insertion occupies its start
func spanEnd(start int, end int) int {
	if end < start {
		return start
	}
	return end
}
