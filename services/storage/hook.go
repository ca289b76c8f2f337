package storage

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gohan/variantstore/models"
	"gohan/variantstore/models/constants"
	bs "gohan/variantstore/models/constants/batch-status"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/services/batches"

	"github.com/sirupsen/logrus"
)

// statusUpdateTimeout bounds the ERROR update made after a failure, the
// context of the operation may be gone by then
const statusUpdateTimeout = 30 * time.Second

// withStatusHook runs fn and moves the operation to ERROR when fn fails,
// panics, or the process is asked to stop
func (s *StorageEngine) withStatusHook(ctx context.Context, studyId int, name constants.OperationName, fileIds []int, fn func(ctx context.Context) error) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = gerrors.New(gerrors.Unknown, string(name), "panic: %v", r)
		}
		if err == nil && ctx.Err() != nil {
			err = gerrors.Wrap(gerrors.Transient, string(name), ctx.Err())
		}
		if err != nil {
			s.markError(studyId, name, fileIds, err)
		}
	}()
	return fn(ctx)
}

func (s *StorageEngine) markError(studyId int, name constants.OperationName, fileIds []int, cause error) {
	logger := s.logger.WithFields(logrus.Fields{"study": studyId, "files": fileIds, "operation": name})
	logger.WithError(cause).Error("operation failed")

	ctx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	_, err := s.studies.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		b := sc.FindBatch(name, fileIds)
		if b == nil || b.CurrentStatus() != bs.RUNNING {
			return nil
		}
		_, err := batches.SetStatus(sc, bs.ERROR, name, fileIds)
		return err
	})
	if err != nil {
		logger.WithError(err).Error("unable to set the operation status to ERROR")
	}
}
