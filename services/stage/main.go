package stage

import (
	"context"
	"strconv"
	"sync"

	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models"
	vt "gohan/variantstore/models/constants/variant-type"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/repositories"
	"gohan/variantstore/services/metrics"
	"gohan/variantstore/services/pipeline"
	"gohan/variantstore/utils"

	"github.com/sirupsen/logrus"
)

// Loader copies the variants of one file into the stage collection, one
// record per variant under the id of the file
type Loader struct {
	store   repositories.StageRepository
	opts    models.LoadOptions
	codec   *variant.StageCodec
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// Result is the outcome of a stage run
type Result struct {
	*models.WriteResult
	// stage documents created, the others already held some file
	Created int
	// counts over every variant read, skipped ones included
	Metadata models.FileMetadata
}

func NewLoader(store repositories.StageRepository, opts models.LoadOptions, logger logrus.FieldLogger, m *metrics.Metrics) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{
		store:   store,
		opts:    opts,
		codec:   variant.NewStageCodec(opts.IncludeSrc),
		logger:  logger.WithField("component", "stage"),
		metrics: m,
	}
}

// Stage reads the whole file. When resuming, records already staged are
// not appended again.
func (l *Loader) Stage(ctx context.Context, studyId int, fileId int, reader utils.VariantReader) (*Result, error) {
	logger := l.logger.WithFields(logrus.Fields{"study": studyId, "file": fileId})
	result := &Result{
		WriteResult: models.NewWriteResult(),
		Metadata: models.FileMetadata{
			VariantTypeCounts: map[string]int{},
			ChromosomeCounts:  map[string]int{},
		},
	}
	var mux sync.Mutex
	study := strconv.Itoa(studyId)

	read := func(_ context.Context, size int) ([]*models.Variant, error) {
		return reader.Read(size)
	}

	convert := func(_ context.Context, batch []*models.Variant) ([]*structs.StageQueueStructure, error) {
		out := make([]*structs.StageQueueStructure, 0, len(batch))
		types := map[string]int{}
		chromosomes := map[string]int{}
		var skipped int64
		for _, v := range batch {
			v.Normalize()
			types[string(v.Type)]++
			chromosomes[v.Chromosome]++
			if vt.IsSkipped(v.Type) {
				skipped++
				l.metrics.Skipped(string(v.Type))
				continue
			}
			bindFile(v, studyId, fileId)
			rec, err := l.codec.ToRecord(v, studyId, fileId)
			if err != nil {
				return nil, gerrors.Wrap(gerrors.Codec, "stage", err)
			}
			raw, err := variant.MarshalRecord(rec)
			if err != nil {
				return nil, gerrors.Wrap(gerrors.Codec, "stage", err)
			}
			out = append(out, &structs.StageQueueStructure{
				Document: variant.NewStageDocument(studyId, v),
				Record:   raw,
			})
		}

		mux.Lock()
		result.Metadata.NumVariants += int64(len(batch))
		for t, n := range types {
			result.Metadata.VariantTypeCounts[t] += n
		}
		for chr, n := range chromosomes {
			result.Metadata.ChromosomeCounts[chr] += n
		}
		result.SkippedVariants += skipped
		mux.Unlock()
		return out, nil
	}

	write := func(ctx context.Context, batch []*structs.StageQueueStructure) error {
		created, err := l.store.AppendStage(ctx, studyId, fileId, batch, l.opts.StageResume)
		if err != nil {
			return gerrors.Wrap(gerrors.Transient, "stage", err)
		}
		mux.Lock()
		result.Created += created
		mux.Unlock()
		l.metrics.Staged(study, len(batch))
		return nil
	}

	cfg := pipeline.DefaultConfig()
	cfg.BatchSize = l.opts.BatchSize()
	cfg.NumTasks = l.opts.Threads()
	cfg.Capacity = cfg.NumTasks + 1
	if l.opts.QueuePutTimeout > 0 {
		cfg.ReadQueuePutTimeout = l.opts.QueuePutTimeout
		cfg.WriteQueuePutTimeout = l.opts.QueuePutTimeout
	}

	var runner *pipeline.Runner[*models.Variant, *structs.StageQueueStructure]
	if l.opts.StageParallelWrite {
		runner = pipeline.New[*models.Variant, *structs.StageQueueStructure](cfg, read, pipeline.Then[*models.Variant, *structs.StageQueueStructure](convert, write), nil, logger)
	} else {
		runner = pipeline.New[*models.Variant, *structs.StageQueueStructure](cfg, read, convert, write, logger)
	}

	logger.Infof("staging file with %d samples", len(reader.Samples()))
	if err := runner.Run(ctx); err != nil {
		return result, err
	}
	stats := runner.Stats()
	logger.WithField("batches", stats.Batches).Infof("stage done, %d variants read, %d skipped, %d stage documents created",
		result.Metadata.NumVariants, result.SkippedVariants, result.Created)
	return result, nil
}

// Clean removes what the files left in the stage, limited to the given
// chromosomes when any
func (l *Loader) Clean(ctx context.Context, studyId int, fileIds []int, chromosomes []string) (int64, error) {
	n, err := l.store.CleanStage(ctx, studyId, fileIds, chromosomes)
	if err != nil {
		return n, gerrors.Wrap(gerrors.Transient, "clean stage", err)
	}
	l.logger.WithFields(logrus.Fields{"study": studyId, "files": fileIds}).Debugf("%d stage documents cleaned", n)
	return n, nil
}

// bindFile attaches the study and file ids to the single study entry a reader produces
func bindFile(v *models.Variant, studyId int, fileId int) {
	if len(v.Studies) == 0 {
		v.Studies = []*models.StudyEntry{{StudyId: studyId}}
	}
	entry := v.Studies[0]
	entry.StudyId = studyId
	if len(entry.Files) == 0 {
		entry.Files = []*models.FileEntry{{}}
	}
	entry.Files[0].FileId = fileId
}
