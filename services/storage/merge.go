package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"gohan/variantstore/models"
	bs "gohan/variantstore/models/constants/batch-status"
	op "gohan/variantstore/models/constants/operation"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/services/batches"
	"gohan/variantstore/services/merge"
	"gohan/variantstore/services/stage"
	"gohan/variantstore/services/studies"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// MergeResult is the outcome of a merge of one set of files
type MergeResult struct {
	*models.WriteResult
	// the MERGE operation was DONE already, only the post-load work ran
	Skipped  bool
	Warnings []string
}

// mergePlan is what preMerge read from the study under the lock
type mergePlan struct {
	skip bool
	// chromosome -> files indexed before, "" when the files are not split by chromosome
	partitions map[string][]int
}

// Merge folds the staged files into the canonical documents. Every file
// must be staged and none of them indexed.
func (s *StorageEngine) Merge(ctx context.Context, studyId int, fileIds []int, opts models.LoadOptions) (*MergeResult, error) {
	start := time.Now()
	fileIds = append([]int(nil), fileIds...)
	sort.Ints(fileIds)
	logger := s.logger.WithFields(logrus.Fields{"study": studyId, "files": fileIds, "operation": op.MERGE})
	res := &MergeResult{WriteResult: models.NewWriteResult()}

	plan, err := s.preMerge(ctx, studyId, fileIds, opts)
	if err != nil {
		s.metrics.Operation(string(op.MERGE), "rejected", start)
		return nil, err
	}

	if plan.skip {
		logger.Info("merge skip, operation already DONE")
		res.Skipped = true
	} else {
		err = s.withStatusHook(ctx, studyId, op.MERGE, fileIds, func(ctx context.Context) error {
			return s.mergePartitions(ctx, studyId, fileIds, plan.partitions, opts, res.WriteResult)
		})
		if err != nil {
			s.metrics.Operation(string(op.MERGE), "error", start)
			return res, err
		}
		if _, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
			_, err := batches.SetStatus(sc, bs.DONE, op.MERGE, fileIds)
			return err
		}); err != nil {
			s.metrics.Operation(string(op.MERGE), "error", start)
			return res, err
		}
	}

	// the stage is only dropped once the merge is DONE
	if _, err := stage.NewLoader(s.store, opts, s.logger, s.metrics).Clean(ctx, studyId, fileIds, nil); err != nil {
		s.metrics.Operation(string(op.MERGE), "error", start)
		return res, err
	}

	if err := s.securePostLoad(ctx, studyId, fileIds, opts, res.WriteResult); err != nil {
		s.metrics.Operation(string(op.MERGE), "error", start)
		return res, err
	}

	if len(fileIds) == 1 && !opts.PostLoadCheckSkip && !res.Skipped {
		for _, w := range s.checkLoadedVariants(ctx, studyId, fileIds[0], res.WriteResult) {
			logger.Warn(w.Error())
			res.Warnings = append(res.Warnings, w.Error())
		}
	}

	s.metrics.Operation(string(op.MERGE), "done", start)
	logger.WithField("took", time.Since(start).String()).Infof("load done %s", res.WriteResult)
	return res, nil
}

// preMerge checks the files can be merged and registers the MERGE operation
func (s *StorageEngine) preMerge(ctx context.Context, studyId int, fileIds []int, opts models.LoadOptions) (*mergePlan, error) {
	const action = "pre merge"
	plan := &mergePlan{}
	_, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		for _, f := range fileIds {
			meta, ok := sc.FileMetadata[f]
			if !ok {
				return gerrors.Fatal(action, "file %d is not registered in study %d", f, studyId)
			}
			if sc.IsIndexed(f) {
				return gerrors.Fatal(action, "file %s (%d) is already indexed in study %d", sc.FileName(f), f, studyId)
			}
			if !meta.Staged {
				return gerrors.Fatal(action, "file %s (%d) is not staged", sc.FileName(f), f)
			}
			if _, err := batches.CheckCanLoadSampleBatch(sc, f); err != nil {
				return err
			}
		}

		partitions, err := partition(sc, fileIds)
		if err != nil {
			return err
		}

		operation, err := batches.AddBatchOperation(sc, op.MERGE, fileIds, opts.MergeResume)
		if err != nil {
			return err
		}
		plan.skip = operation.CurrentStatus() == bs.DONE
		plan.partitions = partitions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// partition splits the merge by chromosome when each file covers a single
// one, and returns the indexed files to look at for each part
func partition(sc *models.StudyConfiguration, fileIds []int) (map[string][]int, error) {
	split := 0
	byChromosome := map[string]bool{}
	for _, f := range fileIds {
		if chr, ok := singleChromosome(sc.FileMetadata[f]); ok {
			split++
			byChromosome[chr] = true
		}
	}
	if split > 0 && split < len(fileIds) {
		return nil, gerrors.Fatal("pre merge", "Impossible to merge files split and not split by chromosome at the same time!")
	}

	out := map[string][]int{}
	if split == 0 {
		out[""] = append([]int(nil), sc.IndexedFiles...)
		return out, nil
	}
	for chr := range byChromosome {
		var indexed []int
		for _, g := range sc.IndexedFiles {
			if covers(sc.FileMetadata[g], chr) {
				indexed = append(indexed, g)
			}
		}
		out[chr] = indexed
	}
	return out, nil
}

func singleChromosome(meta *models.FileMetadata) (string, bool) {
	if meta == nil || len(meta.ChromosomeCounts) != 1 {
		return "", false
	}
	for chr := range meta.ChromosomeCounts {
		return chr, true
	}
	return "", false
}

// covers is true when the file may hold variants of chr, files without
// metadata are assumed to cover everything
func covers(meta *models.FileMetadata, chr string) bool {
	if meta == nil || len(meta.ChromosomeCounts) == 0 {
		return true
	}
	_, ok := meta.ChromosomeCounts[chr]
	return ok
}

// mergePartitions runs one merge per partition, concurrently
func (s *StorageEngine) mergePartitions(ctx context.Context, studyId int, fileIds []int, partitions map[string][]int, opts models.LoadOptions, result *models.WriteResult) error {
	merger := merge.NewMerger(s.store, s.studies, opts, s.logger, s.metrics)
	chromosomes := make([]string, 0, len(partitions))
	for chr := range partitions {
		chromosomes = append(chromosomes, chr)
	}
	sort.Strings(chromosomes)
	if len(chromosomes) == 1 {
		res, err := merger.Merge(ctx, studyId, fileIds, chromosomes[0], partitions[chromosomes[0]])
		result.Merge(res)
		return err
	}

	pool, err := ants.NewPool(opts.Threads())
	if err != nil {
		return gerrors.Wrap(gerrors.Transient, "merge", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mux  sync.Mutex
		errs *multierror.Error
	)
	for _, chr := range chromosomes {
		chr, indexed := chr, partitions[chr]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			res, err := merger.Merge(ctx, studyId, fileIds, chr, indexed)
			result.Merge(res)
			if err != nil {
				mux.Lock()
				errs = multierror.Append(errs, err)
				mux.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mux.Lock()
			errs = multierror.Append(errs, gerrors.Wrap(gerrors.Transient, "merge", err))
			mux.Unlock()
		}
	}
	wg.Wait()
	if errs != nil {
		// the kind of the first failure drives the status of the operation
		return gerrors.Wrap(gerrors.KindOf(errs.Errors[0]), "merge", errs.ErrorOrNil())
	}
	return nil
}

// securePostLoad moves the MERGE operation to READY, marks the files as
// indexed and keeps the study attributes the load relied on
func (s *StorageEngine) securePostLoad(ctx context.Context, studyId int, fileIds []int, opts models.LoadOptions, result *models.WriteResult) error {
	_, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		previous, err := batches.SetStatus(sc, bs.READY, op.MERGE, fileIds)
		if err != nil {
			return err
		}
		if previous != bs.DONE {
			s.logger.WithFields(logrus.Fields{"study": studyId, "files": fileIds}).
				Warnf("unexpected status %s for the merge, expected %s", previous, bs.DONE)
		}
		sc.MarkIndexed(fileIds...)
		if err := studies.AddLoadedGenotypes(sc, result.Genotypes); err != nil {
			return gerrors.Wrap(gerrors.FatalPrecondition, "post load", err)
		}
		keepAttribute(sc, models.AttrMergeMode, string(opts.GetMergeMode()))
		keepAttribute(sc, models.AttrDefaultGenotype, opts.DefaultGenotype)
		keepAttribute(sc, models.AttrStudyType, string(opts.GetStudyType()))
		return nil
	})
	return err
}

// keepAttribute sets the attribute unless the study has one already
func keepAttribute(sc *models.StudyConfiguration, key string, value string) {
	if value == "" {
		return
	}
	if current, ok := sc.Attributes[key]; ok && current != "" {
		return
	}
	sc.Attributes[key] = value
}
