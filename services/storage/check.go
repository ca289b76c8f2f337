package storage

import (
	"context"

	"gohan/variantstore/models"
	"gohan/variantstore/models/constants"
	vt "gohan/variantstore/models/constants/variant-type"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/repositories"

	"github.com/sirupsen/logrus"
)

// checkLoadedVariants compares the documents holding the file with what
// the file metadata says should be there. Problems are returned as
// consistency warnings, the load stays READY.
func (s *StorageEngine) checkLoadedVariants(ctx context.Context, studyId int, fileId int, result *models.WriteResult) []error {
	const action = "check loaded variants"
	var warnings []error

	sc, err := s.studies.GetStudyConfiguration(ctx, studyId)
	if err != nil {
		return append(warnings, gerrors.Wrap(gerrors.ConsistencyWarning, action, err))
	}
	meta := sc.FileMetadata[fileId]
	if meta == nil {
		return append(warnings, gerrors.Consistency(action, "no metadata for file %d", fileId))
	}

	var skipped, counted int64
	for t, n := range meta.VariantTypeCounts {
		counted += int64(n)
		if vt.IsSkipped(constants.VariantType(t)) {
			skipped += int64(n)
		}
	}
	if counted != meta.NumVariants {
		warnings = append(warnings, gerrors.Consistency(action,
			"file %d: variant types add up to %d variants, the file had %d", fileId, counted, meta.NumVariants))
	}

	expected := meta.NumVariants - skipped - result.NonInsertedVariants
	loaded, err := s.store.CountVariants(ctx, repositories.VariantQuery{StudyId: studyId, FileIds: []int{fileId}})
	if err != nil {
		return append(warnings, gerrors.Wrap(gerrors.ConsistencyWarning, action, err))
	}
	overlapping, err := s.store.CountVariants(ctx, repositories.VariantQuery{StudyId: studyId, FileIds: []int{-fileId}})
	if err != nil {
		return append(warnings, gerrors.Wrap(gerrors.ConsistencyWarning, action, err))
	}

	s.logger.WithFields(logrus.Fields{
		"study":       studyId,
		"file":        fileId,
		"expected":    expected,
		"loaded":      loaded,
		"overlapping": overlapping,
		"overlapped":  result.OverlappedVariants,
		"skipped":     skipped,
		"nonInserted": result.NonInsertedVariants,
	}).Info("loaded variants")

	if loaded != expected {
		warnings = append(warnings, gerrors.Consistency(action,
			"Wrong number of loaded variants. Expected %d and got %d", expected, loaded))
	}
	return warnings
}
