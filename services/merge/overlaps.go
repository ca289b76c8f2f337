package merge

import (
	"sort"

	"gohan/variantstore/models/indexes"

	"github.com/biogo/store/interval"
)

// locus is anything with a position that can take part in a merge, either
// a stage document or a canonical document of a previous load
type locus struct {
	uid       uintptr
	id        string
	start     int
	end       int
	stage     *indexes.StageDocument
	canonical *indexes.VariantDocument
}

func (l *locus) Overlap(b interval.IntRange) bool {
	return l.start <= b.End-1 && b.Start <= l.end
}

func (l *locus) ID() uintptr { return l.uid }

// Range is half open, [start, end+1)
func (l *locus) Range() interval.IntRange {
	return interval.IntRange{Start: l.start, End: l.end + 1}
}

// overlaps indexes the stage and canonical documents of one chromosome of a batch
type overlaps struct {
	tree interval.IntTree
	next uintptr
}

func newStageLocus(d *indexes.StageDocument) *locus {
	return &locus{id: d.Id, start: d.Start, end: spanEnd(d.Start, d.End), stage: d}
}

func newCanonicalLocus(d *indexes.VariantDocument) *locus {
	return &locus{id: d.Id, start: d.Start, end: spanEnd(d.Start, d.End), canonical: d}
}

func (o *overlaps) insert(l *locus) error {
	o.next++
	l.uid = o.next
	return o.tree.Insert(l, true)
}

// seal must be called once every locus is inserted
func (o *overlaps) seal() {
	o.tree.AdjustRanges()
}

// get returns the loci overlapping l, l excluded, sorted by position then id
func (o *overlaps) get(l *locus) []*locus {
	if o.tree.Len() == 0 {
		return nil
	}
	var out []*locus
	for _, hit := range o.tree.Get(l) {
		h := hit.(*locus)
		if h.uid == l.uid || h.id == l.id {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].start != out[j].start {
			return out[i].start < out[j].start
		}
		return out[i].id < out[j].id
	})
	return out
}
