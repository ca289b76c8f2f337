package models

import (
	"fmt"
	"sort"
	"sync"
)

// WriteResult accumulates the counters of a stage or merge run
type WriteResult struct {
	NewDocuments        int64    `json:"newDocuments"`
	UpdatedObjects      int64    `json:"updatedObjects"`
	SkippedVariants     int64    `json:"skippedVariants"`
	NonInsertedVariants int64    `json:"nonInsertedVariants"`
	OverlappedVariants  int64    `json:"overlappedVariants"`
	// variants merged by a previous run of a resumed merge
	AlreadyLoaded       int64    `json:"alreadyLoadedVariants,omitempty"`
	Genotypes           []string `json:"genotypes,omitempty"`

	mux sync.Mutex
}

func NewWriteResult() *WriteResult {
	return &WriteResult{}
}

// Merge adds the counters of o to w. Safe for concurrent use.
func (w *WriteResult) Merge(o *WriteResult) *WriteResult {
	if o == nil {
		return w
	}
	o.mux.Lock()
	newDocuments, updated := o.NewDocuments, o.UpdatedObjects
	skipped, nonInserted, overlapped := o.SkippedVariants, o.NonInsertedVariants, o.OverlappedVariants
	alreadyLoaded := o.AlreadyLoaded
	gts := append([]string(nil), o.Genotypes...)
	o.mux.Unlock()

	w.mux.Lock()
	defer w.mux.Unlock()
	w.NewDocuments += newDocuments
	w.UpdatedObjects += updated
	w.SkippedVariants += skipped
	w.NonInsertedVariants += nonInserted
	w.OverlappedVariants += overlapped
	w.AlreadyLoaded += alreadyLoaded
	w.Genotypes = unionSorted(w.Genotypes, gts)
	return w
}

func (w *WriteResult) AddGenotypes(gts ...string) {
	w.mux.Lock()
	defer w.mux.Unlock()
	w.Genotypes = unionSorted(w.Genotypes, gts)
}

func (w *WriteResult) String() string {
	w.mux.Lock()
	defer w.mux.Unlock()
	return fmt.Sprintf("{newDocuments: %d, updatedObjects: %d, skippedVariants: %d, nonInsertedVariants: %d, overlappedVariants: %d}",
		w.NewDocuments, w.UpdatedObjects, w.SkippedVariants, w.NonInsertedVariants, w.OverlappedVariants)
}

func unionSorted(a []string, b []string) []string {
	if len(b) == 0 {
		return a
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
