package storage

import (
	"context"
	"path/filepath"
	"time"

	"gohan/variantstore/models"
	bs "gohan/variantstore/models/constants/batch-status"
	op "gohan/variantstore/models/constants/operation"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/repositories"
	"gohan/variantstore/services/batches"
	"gohan/variantstore/services/metrics"
	"gohan/variantstore/services/stage"
	"gohan/variantstore/services/studies"
	"gohan/variantstore/utils"

	"github.com/sirupsen/logrus"
)

/*
	Drives a load from the source file to the canonical documents:
	register, stage, merge, and the post-load bookkeeping. Each phase is
	registered as a batch operation of the study, so a failed load can be
	resumed and concurrent loads of other files are kept in order.
*/

type (
	StorageEngine struct {
		store   repositories.Store
		studies *studies.Manager
		logger  logrus.FieldLogger
		metrics *metrics.Metrics
	}

	LoadResult struct {
		StudyId int `json:"studyId"`
		FileId  int `json:"fileId"`
		// a previous run already completed the phase
		StageSkipped bool                `json:"stageSkipped"`
		MergeSkipped bool                `json:"mergeSkipped"`
		Stage        *models.WriteResult `json:"stage,omitempty"`
		Merge        *models.WriteResult `json:"merge,omitempty"`
		// consistency problems found once the load completed
		Warnings []string `json:"warnings,omitempty"`
	}
)

func NewStorageEngine(store repositories.Store, manager *studies.Manager, logger logrus.FieldLogger, m *metrics.Metrics) *StorageEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StorageEngine{
		store:   store,
		studies: manager,
		logger:  logger.WithField("component", "storage"),
		metrics: m,
	}
}

func (s *StorageEngine) Studies() *studies.Manager {
	return s.studies
}

// CountVariants counts the canonical documents matching q
func (s *StorageEngine) CountVariants(ctx context.Context, q repositories.VariantQuery) (int64, error) {
	return s.store.CountVariants(ctx, q)
}

// LoadReader stages and merges the variants of reader, registered as fileName
func (s *StorageEngine) LoadReader(ctx context.Context, studyId int, fileName string, path string, reader utils.VariantReader, opts models.LoadOptions) (*LoadResult, error) {
	res, err := s.registerAndStage(ctx, studyId, fileName, path, reader, opts)
	if err != nil || !opts.Merge {
		return res, err
	}
	return res, s.mergeGroup(ctx, studyId, []*LoadResult{res}, opts)
}

// LoadFiles stages every file at paths, then merges them in groups of
// merge.batch.size files. The Merge result of a file is the one of its group.
func (s *StorageEngine) LoadFiles(ctx context.Context, studyId int, paths []string, opts models.LoadOptions) ([]*LoadResult, error) {
	results := make([]*LoadResult, 0, len(paths))
	for _, path := range paths {
		res, err := s.stageFile(ctx, studyId, path, opts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	if !opts.Merge {
		return results, nil
	}

	size := opts.MergeBatchSize
	if size < 1 {
		size = 1
	}
	for from := 0; from < len(results); from += size {
		to := from + size
		if to > len(results) {
			to = len(results)
		}
		if err := s.mergeGroup(ctx, studyId, results[from:to], opts); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *StorageEngine) stageFile(ctx context.Context, studyId int, path string, opts models.LoadOptions) (*LoadResult, error) {
	reader, err := utils.OpenVariantReader(path, opts.IncludeSrc)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.FatalPrecondition, "load", err)
	}
	defer reader.Close()
	return s.registerAndStage(ctx, studyId, filepath.Base(path), path, reader, opts)
}

func (s *StorageEngine) registerAndStage(ctx context.Context, studyId int, fileName string, path string, reader utils.VariantReader, opts models.LoadOptions) (*LoadResult, error) {
	fileId, err := s.studies.RegisterFile(ctx, studyId, fileName, path, reader.Samples())
	if err != nil {
		return nil, err
	}
	res := &LoadResult{StudyId: studyId, FileId: fileId}

	if opts.Stage {
		staged, skipped, err := s.Stage(ctx, studyId, fileId, reader, opts)
		res.StageSkipped = skipped
		if staged != nil {
			res.Stage = staged.WriteResult
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// mergeGroup merges the files of group together and reports on each of them
func (s *StorageEngine) mergeGroup(ctx context.Context, studyId int, group []*LoadResult, opts models.LoadOptions) error {
	fileIds := make([]int, len(group))
	for i, res := range group {
		fileIds[i] = res.FileId
	}
	merged, err := s.Merge(ctx, studyId, fileIds, opts)
	if merged != nil {
		for _, res := range group {
			res.Merge = merged.WriteResult
			res.MergeSkipped = merged.Skipped
			res.Warnings = merged.Warnings
		}
	}
	return err
}

// Stage copies the variants of a registered file into the stage. Returns
// skipped=true when the file was staged by a previous run.
func (s *StorageEngine) Stage(ctx context.Context, studyId int, fileId int, reader utils.VariantReader, opts models.LoadOptions) (*stage.Result, bool, error) {
	start := time.Now()
	logger := s.logger.WithFields(logrus.Fields{"study": studyId, "files": []int{fileId}, "operation": op.STAGE})

	resume, skip, err := s.securePreStage(ctx, studyId, fileId, opts)
	if err != nil {
		s.metrics.Operation(string(op.STAGE), "rejected", start)
		return nil, false, err
	}
	if skip {
		logger.Info("file already staged, skipping")
		s.metrics.Operation(string(op.STAGE), "skipped", start)
		return nil, true, nil
	}

	// a resumed stage must not duplicate the records written before the failure
	stageOpts := opts
	stageOpts.StageResume = opts.StageResume || resume
	loader := stage.NewLoader(s.store, stageOpts, s.logger, s.metrics)

	var result *stage.Result
	err = s.withStatusHook(ctx, studyId, op.STAGE, []int{fileId}, func(ctx context.Context) error {
		var err error
		result, err = loader.Stage(ctx, studyId, fileId, reader)
		return err
	})
	if err != nil {
		s.metrics.Operation(string(op.STAGE), "error", start)
		return result, false, err
	}

	if err := s.postStage(ctx, studyId, fileId, result); err != nil {
		s.metrics.Operation(string(op.STAGE), "error", start)
		return result, false, err
	}
	if err := s.securePostStage(ctx, studyId, fileId, logger); err != nil {
		s.metrics.Operation(string(op.STAGE), "error", start)
		return result, false, err
	}
	s.metrics.Operation(string(op.STAGE), "done", start)
	logger.WithField("took", time.Since(start).String()).Infof("stage done %s", result.WriteResult)
	return result, false, nil
}

// securePreStage registers the STAGE operation. A stage already DONE is
// moved to READY and skipped, as is a READY one.
func (s *StorageEngine) securePreStage(ctx context.Context, studyId int, fileId int, opts models.LoadOptions) (resume bool, skip bool, err error) {
	_, err = s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		resume, skip = false, false
		if _, ok := sc.FileMetadata[fileId]; !ok {
			return gerrors.Fatal("pre stage", "file %d is not registered in study %d", fileId, studyId)
		}
		operation, err := batches.AddBatchOperation(sc, op.STAGE, []int{fileId}, opts.StageResume)
		if err != nil {
			return err
		}
		switch operation.CurrentStatus() {
		case bs.DONE:
			skip = true
			return operation.AddStatus(bs.READY)
		case bs.READY:
			skip = true
			return nil
		}
		resume = operation.IsResume()
		return nil
	})
	return resume, skip, err
}

// postStage stores the file metadata and marks the operation DONE
func (s *StorageEngine) postStage(ctx context.Context, studyId int, fileId int, result *stage.Result) error {
	_, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		meta := sc.FileMetadata[fileId]
		if meta == nil {
			meta = &models.FileMetadata{}
			sc.FileMetadata[fileId] = meta
		}
		meta.Staged = true
		meta.NumVariants = result.Metadata.NumVariants
		meta.VariantTypeCounts = result.Metadata.VariantTypeCounts
		meta.ChromosomeCounts = result.Metadata.ChromosomeCounts

		_, err := batches.SetStatus(sc, bs.DONE, op.STAGE, []int{fileId})
		return err
	})
	return err
}

// securePostStage moves a DONE stage to READY once the staged metadata is
// consistent. A stage left DONE is made READY by the next securePreStage.
func (s *StorageEngine) securePostStage(ctx context.Context, studyId int, fileId int, logger logrus.FieldLogger) error {
	_, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		meta := sc.FileMetadata[fileId]
		if meta == nil || !meta.Staged {
			return gerrors.Fatal("post stage", "file %d of study %d has no staged metadata", fileId, studyId)
		}
		var perChromosome int64
		for _, n := range meta.ChromosomeCounts {
			perChromosome += int64(n)
		}
		if perChromosome != meta.NumVariants {
			logger.Warnf("file %d: %d variants read but %d counted per chromosome", fileId, meta.NumVariants, perChromosome)
		}
		current, err := batches.SetStatus(sc, bs.READY, op.STAGE, []int{fileId})
		if err != nil {
			return err
		}
		if current != bs.DONE {
			logger.Warnf("stage of file %d was %s, not %s, when made %s", fileId, current, bs.DONE, bs.READY)
		}
		return nil
	})
	return err
}

// Clean removes the staged data of the files
func (s *StorageEngine) Clean(ctx context.Context, studyId int, fileIds []int) (int64, error) {
	return stage.NewLoader(s.store, models.DefaultLoadOptions(), s.logger, s.metrics).Clean(ctx, studyId, fileIds, nil)
}
