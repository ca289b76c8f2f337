package batches

import (
	"gohan/variantstore/models"
	"gohan/variantstore/models/constants"
	bs "gohan/variantstore/models/constants/batch-status"
	op "gohan/variantstore/models/constants/operation"
	gerrors "gohan/variantstore/models/errors"
)

/*
	Rules deciding whether a STAGE or MERGE operation may start on a
	study. Every function works on a configuration obtained inside
	LockAndUpdate, so the checks and the new status are written at once.
*/

// AddBatchOperation registers the operation `name` over fileIds, or resumes
// the existing one. An operation already DONE or READY is returned
// untouched, the caller decides what to skip.
func AddBatchOperation(sc *models.StudyConfiguration, name constants.OperationName, fileIds []int, resume bool) (*models.BatchFileOperation, error) {
	const action = "add batch operation"

	// nothing is started for a completed operation, so nothing can conflict
	if done := sc.FindBatch(name, fileIds); done != nil {
		if status := done.CurrentStatus(); status == bs.READY || status == bs.DONE {
			return done, nil
		}
	}

	var operation *models.BatchFileOperation
	for i := len(sc.Batches) - 1; i >= 0; i-- {
		b := sc.Batches[i]
		if b.Operation == name && models.SameFiles(b.FileIds, fileIds) {
			if operation == nil {
				operation = b
			}
			continue
		}
		status := b.CurrentStatus()
		if status == bs.READY {
			continue
		}
		switch {
		case name == op.MERGE && b.Operation == op.STAGE && b.Touches(fileIds):
			return nil, gerrors.Fatal(action, "can not merge files %v, the stage of files %v is %s", fileIds, b.FileIds, status)
		case b.Operation == name && b.Touches(fileIds):
			return nil, gerrors.Fatal(action, "files %v are part of the operation %s over files %v in status %s",
				fileIds, b.Operation, b.FileIds, status)
		case status != bs.RUNNING || resume:
			continue
		case name == op.MERGE:
			// no merge while anything else is running in the study
			return nil, operationInProgress(b)
		case b.Operation == op.MERGE:
			return nil, operationInProgress(b)
		}
	}

	if operation == nil {
		operation = models.NewBatchFileOperation(name, fileIds)
		if err := operation.AddStatus(bs.RUNNING); err != nil {
			return nil, err
		}
		sc.Batches = append(sc.Batches, operation)
		return operation, nil
	}

	switch operation.CurrentStatus() {
	case bs.READY, bs.DONE:
		return operation, nil
	case bs.RUNNING, bs.ERROR:
		if !resume {
			return nil, gerrors.Fatal(action, "operation %s over files %v is in status %s, relaunch with resume to continue",
				name, fileIds, operation.CurrentStatus())
		}
	}
	if err := operation.AddStatus(bs.RUNNING); err != nil {
		return nil, gerrors.Wrap(gerrors.FatalPrecondition, action, err)
	}
	return operation, nil
}

func operationInProgress(b *models.BatchFileOperation) error {
	return gerrors.Fatal("add batch operation", "operation %s over files %v in progress, status %s",
		b.Operation, b.FileIds, b.CurrentStatus())
}

// SetStatus moves the operation to `status` and returns the status it had
func SetStatus(sc *models.StudyConfiguration, status constants.BatchStatus, name constants.OperationName, fileIds []int) (constants.BatchStatus, error) {
	b := sc.FindBatch(name, fileIds)
	if b == nil {
		return bs.NONE, gerrors.Fatal("set status", "no operation %s over files %v in study %d", name, fileIds, sc.StudyId)
	}
	previous := b.CurrentStatus()
	if err := b.AddStatus(status); err != nil {
		return previous, err
	}
	return previous, nil
}

// CheckCanLoadSampleBatch tells whether the samples of the file start a new
// batch of samples. A file whose samples were all indexed already has to
// repeat exactly the samples of the last indexed file.
func CheckCanLoadSampleBatch(sc *models.StudyConfiguration, fileId int) (bool, error) {
	const action = "check sample batch"

	sampleIds := sc.SamplesInFiles[fileId]
	if len(sampleIds) == 0 {
		return true, nil
	}
	indexed := sc.IndexedSamples()
	all, some := true, false
	for _, s := range sampleIds {
		if indexed[s] {
			some = true
		} else {
			all = false
		}
	}

	switch {
	case all:
		if len(sc.IndexedFiles) == 0 {
			return true, nil
		}
		last := sc.SamplesInFiles[sc.IndexedFiles[len(sc.IndexedFiles)-1]]
		if equalInts(last, sampleIds) {
			return false, nil
		}
		if containsAll(last, sampleIds) {
			return false, gerrors.Fatal(action, "Unable to load this batch. Wrong samples order")
		}
		return false, gerrors.Fatal(action, "Unable to load this batch. Another sample batch has been loaded already.")
	case some:
		return false, gerrors.Fatal(action, "There was some already indexed samples, but not all of them. Unable to load file %d", fileId)
	}
	return true, nil
}

func equalInts(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsAll(set []int, values []int) bool {
	in := make(map[int]bool, len(set))
	for _, v := range set {
		in[v] = true
	}
	for _, v := range values {
		if !in[v] {
			return false
		}
	}
	return true
}
