package merge

import (
	"context"
	"sort"
	"time"

	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models"
	"gohan/variantstore/models/constants"
	mm "gohan/variantstore/models/constants/merge-mode"
	st "gohan/variantstore/models/constants/study-type"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"
	"gohan/variantstore/services/metrics"
	"gohan/variantstore/services/pipeline"
	"gohan/variantstore/services/studies"

	"github.com/sirupsen/logrus"
)

/*
	Folds the staged records of a set of files into the canonical
	documents. The stage is read in position order, one region of
	overlapping variants at a time, and every region ends up as a set of
	read-modify-write upserts that can be replayed safely.
*/

type Merger struct {
	store   repositories.Store
	studies *studies.Manager
	opts    models.LoadOptions
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewMerger(store repositories.Store, manager *studies.Manager, opts models.LoadOptions, logger logrus.FieldLogger, m *metrics.Metrics) *Merger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Merger{
		store:   store,
		studies: manager,
		opts:    opts,
		logger:  logger.WithField("component", "merge"),
		metrics: m,
	}
}

// run holds the state of one Merge call
type run struct {
	*Merger
	studyId    int
	fileIds    []int
	indexed    []int
	resolver   variant.StudyResolver
	gts        *genotype.Codec
	stageCodec *variant.StageCodec

	// secondary alternates are unioned and genotypes remapped
	renormalize bool
	// overlapping calls and indexed files are looked up
	checkOverlaps bool
	result        *models.WriteResult
}

type batch struct {
	upserts []*upsert
	// stage documents folded by this batch
	docs []*indexes.StageDocument
}

// Merge folds the staged records of fileIds, limited to one chromosome
// when not empty. indexedFiles are the files already merged in the study
// for that chromosome.
func (m *Merger) Merge(ctx context.Context, studyId int, fileIds []int, chromosome string, indexedFiles []int) (*models.WriteResult, error) {
	sc, err := m.studies.GetStudyConfiguration(ctx, studyId)
	if err != nil {
		return nil, err
	}
	attrs, err := sc.GetAttributes()
	if err != nil {
		return nil, gerrors.Wrap(gerrors.FatalPrecondition, "merge", err)
	}
	resolver, err := m.studies.Samples().Resolver(ctx, studyId)
	if err != nil {
		return nil, err
	}

	mode := m.mergeMode(attrs)
	r := &run{
		Merger:      m,
		studyId:     studyId,
		fileIds:     append([]int(nil), fileIds...),
		indexed:     append([]int(nil), indexedFiles...),
		resolver:    resolver,
		gts:         genotype.NewCodec(m.defaultGenotype(attrs)),
		stageCodec:  variant.NewStageCodec(m.opts.IncludeSrc),
		renormalize: !mm.IgnoreOverlapping(mode),
		result:      models.NewWriteResult(),
	}
	sort.Ints(r.fileIds)
	r.checkOverlaps = r.renormalize && (len(fileIds) > 1 || len(indexedFiles) > 0)

	logger := m.logger.WithFields(logrus.Fields{"study": studyId, "files": r.fileIds, "chromosome": chromosome, "mode": mode})
	logger.Infof("merging with %d indexed files", len(indexedFiles))
	start := time.Now()

	reader := newRegionReader(m.store, repositories.StageQuery{
		StudyId:    studyId,
		Chromosome: chromosome,
		FileIds:    r.fileIds,
	}, !r.renormalize, m.opts.BatchSize())

	cfg := pipeline.DefaultConfig()
	cfg.BatchSize = m.opts.BatchSize()
	cfg.NumTasks = m.opts.Threads()
	cfg.Capacity = cfg.NumTasks + 1
	if m.opts.QueuePutTimeout > 0 {
		cfg.ReadQueuePutTimeout = m.opts.QueuePutTimeout
		cfg.WriteQueuePutTimeout = m.opts.QueuePutTimeout
	}
	var runner *pipeline.Runner[region, *batch]
	if m.opts.MergeParallelWrite {
		runner = pipeline.New[region, *batch](cfg, reader.read, pipeline.Then[region, *batch](r.prepare, r.write), nil, logger)
	} else {
		runner = pipeline.New[region, *batch](cfg, reader.read, r.prepare, r.write, logger)
	}
	if err := runner.Run(ctx); err != nil {
		return r.result, err
	}

	logger.WithField("took", time.Since(start).String()).Infof("merge done %s", r.result)
	return r.result, nil
}

func (m *Merger) mergeMode(attrs models.StudyAttributes) constants.MergeMode {
	if m.opts.MergeMode == "" && attrs.MergeMode != "" {
		if mode, err := mm.CastToMergeMode(attrs.MergeMode); err == nil {
			return mode
		}
	}
	return m.opts.GetMergeMode()
}

// defaultGenotype is the genotype left implicit in canonical documents,
// empty meaning the most common one of each document
func (m *Merger) defaultGenotype(attrs models.StudyAttributes) string {
	if m.opts.DefaultGenotype != "" {
		return m.opts.DefaultGenotype
	}
	if attrs.DefaultGenotype != "" {
		return attrs.DefaultGenotype
	}
	studyType := m.opts.GetStudyType()
	if studyType == st.Unknown {
		studyType = st.CastToStudyType(attrs.StudyType)
	}
	if !st.CompressGenotypes(studyType) {
		return constants.UnknownGenotype
	}
	return ""
}

// prepare turns a batch of regions into upserts
func (r *run) prepare(ctx context.Context, regions []region) ([]*batch, error) {
	out := &batch{}
	var nonInserted, alreadyLoaded int64

	var live []region
	for _, reg := range regions {
		if r.merged(reg) {
			alreadyLoaded += int64(len(reg))
			nonInserted += r.mergedDuplicates(reg)
			continue
		}
		live = append(live, reg)
		out.docs = append(out.docs, reg...)
	}

	var canonical map[string][]*indexes.VariantDocument
	if r.checkOverlaps && len(live) > 0 {
		var err error
		if canonical, err = r.findCanonical(ctx, live); err != nil {
			return nil, gerrors.Wrap(gerrors.Transient, "merge", err)
		}
	}

	var targets []*target
	for _, reg := range live {
		regionTargets, dups, err := r.plan(reg, canonical[reg[0].Chromosome])
		if err != nil {
			return nil, gerrors.Wrap(gerrors.Codec, "merge", err)
		}
		nonInserted += dups
		targets = append(targets, regionTargets...)
	}
	for _, t := range targets {
		out.upserts = append(out.upserts, r.newUpsert(t))
	}

	r.result.Merge(&models.WriteResult{NonInsertedVariants: nonInserted, AlreadyLoaded: alreadyLoaded})
	r.metrics.Merged(0, 0, 0, nonInserted)
	r.result.AddGenotypes(loadedGenotypes(targets)...)
	if len(out.upserts) == 0 && len(out.docs) == 0 {
		return nil, nil
	}
	return []*batch{out}, nil
}

// merged is true when a previous run already folded the region for any of the files
func (r *run) merged(reg region) bool {
	for _, d := range reg {
		for _, f := range r.fileIds {
			if d.IsMerged(f) {
				return true
			}
		}
	}
	return false
}

// mergedDuplicates counts the duplicated records of a region folded by a
// previous run, so that a resumed merge reports the same totals
func (r *run) mergedDuplicates(reg region) int64 {
	var n int64
	for _, d := range reg {
		for _, f := range r.fileIds {
			count := len(d.Files[f])
			if merged, ok := d.Merged[f]; ok {
				count = merged
			}
			if count > 1 {
				n += int64(count)
			}
		}
	}
	return n
}

// findCanonical returns, per chromosome, the documents of the study overlapping the regions
func (r *run) findCanonical(ctx context.Context, regions []region) (map[string][]*indexes.VariantDocument, error) {
	type span struct{ start, end int }
	spans := map[string]*span{}
	var chromosomes []string
	for _, reg := range regions {
		for _, d := range reg {
			s, ok := spans[d.Chromosome]
			if !ok {
				s = &span{start: d.Start, end: spanEnd(d.Start, d.End)}
				spans[d.Chromosome] = s
				chromosomes = append(chromosomes, d.Chromosome)
			}
			if d.Start < s.start {
				s.start = d.Start
			}
			if e := spanEnd(d.Start, d.End); e > s.end {
				s.end = e
			}
		}
	}

	out := map[string][]*indexes.VariantDocument{}
	for _, chr := range chromosomes {
		s := spans[chr]
		err := r.store.FindVariants(ctx, repositories.VariantQuery{
			StudyId:    r.studyId,
			Chromosome: chr,
			Start:      s.start,
			End:        s.end,
		}, func(doc *indexes.VariantDocument) error {
			out[chr] = append(out[chr], doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// plan lists the documents a region writes and what each file adds to
// them. Returns the number of duplicated records left out.
func (r *run) plan(reg region, canonical []*indexes.VariantDocument) ([]*target, int64, error) {
	var nonInserted int64
	var index overlaps
	loci := make([]*locus, len(reg))
	for i, d := range reg {
		loci[i] = newStageLocus(d)
		if r.checkOverlaps {
			if err := index.insert(loci[i]); err != nil {
				return nil, 0, err
			}
		}
	}

	staged := map[string]bool{}
	for _, d := range reg {
		staged[d.Id] = true
	}
	var others []*locus
	if r.checkOverlaps {
		for _, doc := range canonical {
			l := newCanonicalLocus(doc)
			if !r.touches(l, loci) {
				continue
			}
			if err := index.insert(l); err != nil {
				return nil, 0, err
			}
			if !staged[doc.Id] {
				others = append(others, l)
			}
		}
		index.seal()
	}

	var targets []*target
	for _, l := range loci {
		d := l.stage
		t := &target{id: d.Id, coord: stageCoordinate(d)}
		var near []*locus
		if r.checkOverlaps {
			near = index.get(l)
		}
		for _, f := range r.fileIds {
			records := d.Files[f]
			switch {
			case len(records) == 1:
				c, err := r.fromRecord(d, f, records[0], called)
				if err != nil {
					return nil, 0, err
				}
				t.contribs = append(t.contribs, c)
				continue
			case len(records) > 1:
				nonInserted += int64(len(records))
			}
			if c, err := r.overlappingCall(near, f); err != nil {
				return nil, 0, err
			} else if c != nil {
				t.contribs = append(t.contribs, c)
			}
		}
		if t.hasCalls() {
			for _, g := range r.indexed {
				if c := r.indexedCall(near, g); c != nil {
					t.contribs = append(t.contribs, c)
				}
			}
		}
		if len(t.contribs) > 0 {
			targets = append(targets, t)
		}
	}

	// documents of previous loads the files did not call, but overlapped
	for _, l := range others {
		t := &target{id: l.id, coord: canonicalCoordinate(l.canonical)}
		near := index.get(l)
		for _, f := range r.fileIds {
			c, err := r.overlappingCall(near, f)
			if err != nil {
				return nil, 0, err
			}
			if c != nil {
				t.contribs = append(t.contribs, c)
			}
		}
		if len(t.contribs) > 0 {
			targets = append(targets, t)
		}
	}
	return targets, nonInserted, nil
}

func (r *run) touches(l *locus, loci []*locus) bool {
	for _, s := range loci {
		if models.Overlap("", l.start, l.end, "", s.start, s.end) {
			return true
		}
	}
	return false
}

// overlappingCall is the first staged call of the file among the
// overlapping loci, duplicated calls excluded
func (r *run) overlappingCall(near []*locus, fileId int) (*contribution, error) {
	for _, n := range near {
		if n.stage == nil {
			continue
		}
		if records := n.stage.Files[fileId]; len(records) == 1 {
			return r.fromRecord(n.stage, fileId, records[0], overlapping)
		}
	}
	return nil, nil
}

func (r *run) indexedCall(near []*locus, fileId int) *contribution {
	for _, n := range near {
		if n.canonical == nil {
			continue
		}
		if c := r.fromCanonical(n.canonical, fileId); c != nil {
			return c
		}
	}
	return nil
}

// write commits a batch, then marks its stage documents as merged when
// the stage is cleaned while loading
func (r *run) write(ctx context.Context, batches []*batch) error {
	for _, b := range batches {
		upserts := make([]*repositories.VariantUpsert, len(b.upserts))
		for i, u := range b.upserts {
			upserts[i] = &u.VariantUpsert
		}
		res, err := r.store.UpsertVariants(ctx, upserts)
		if err != nil {
			return gerrors.Wrap(gerrors.Transient, "merge", err)
		}
		var overlapped int64
		for _, u := range b.upserts {
			if u.overlapped {
				overlapped++
			}
		}
		r.result.Merge(&models.WriteResult{
			NewDocuments:       int64(res.Created),
			UpdatedObjects:     int64(res.Updated),
			OverlappedVariants: overlapped,
		})
		r.metrics.Merged(res.Created, res.Updated, overlapped, 0)

		if r.opts.StageCleanWhileLoad && len(b.docs) > 0 {
			if err := r.store.MarkStageMerged(ctx, r.studyId, r.fileIds, b.docs); err != nil {
				return gerrors.Wrap(gerrors.Transient, "merge", err)
			}
		}
	}
	return nil
}
