package batches

import (
	"testing"

	"gohan/variantstore/models"
	bs "gohan/variantstore/models/constants/batch-status"
	op "gohan/variantstore/models/constants/operation"
	gerrors "gohan/variantstore/models/errors"

	"github.com/ahmetb/go-linq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStudy() *models.StudyConfiguration {
	sc := models.NewStudyConfiguration(1, "study")
	batch1 := []string{"s1", "s2", "s3", "s4"}
	batch2 := []string{"s5", "s6", "s7", "s8"}
	mixed := []string{"s1", "s3", "s5", "s7"}
	register := func(name string, samples []string) {
		fileId := sc.NextFileId()
		sc.FileIds[name] = fileId
		var ids []int
		for _, s := range samples {
			id, ok := sc.SampleIds[s]
			if !ok {
				id = sc.NextSampleId()
				sc.SampleIds[s] = id
			}
			ids = append(ids, id)
		}
		sc.SamplesInFiles[fileId] = ids
	}
	register("file1.vcf", batch1)
	register("file2.vcf", batch1)
	register("file3.vcf", batch2)
	register("file4.vcf", batch2)
	register("file5.vcf", mixed)
	return sc
}

func TestCheckCanLoadSampleBatch(t *testing.T) {
	sc := newStudy()
	for _, step := range []struct {
		fileId   int
		newBatch bool
	}{{1, true}, {2, false}, {3, true}, {4, false}} {
		newBatch, err := CheckCanLoadSampleBatch(sc, step.fileId)
		require.NoError(t, err, "file %d", step.fileId)
		assert.Equal(t, step.newBatch, newBatch, "file %d", step.fileId)
		sc.MarkIndexed(step.fileId)
	}
}

func TestCheckCanLoadSampleBatchReverse(t *testing.T) {
	sc := newStudy()
	for _, step := range []struct {
		fileId   int
		newBatch bool
	}{{4, true}, {3, false}, {2, true}, {1, false}} {
		newBatch, err := CheckCanLoadSampleBatch(sc, step.fileId)
		require.NoError(t, err, "file %d", step.fileId)
		assert.Equal(t, step.newBatch, newBatch, "file %d", step.fileId)
		sc.MarkIndexed(step.fileId)
	}
}

func TestCheckCanLoadSampleBatchAnotherBatch(t *testing.T) {
	sc := newStudy()
	sc.MarkIndexed(1, 3, 4)
	_, err := CheckCanLoadSampleBatch(sc, 2)
	require.Error(t, err)
	assert.True(t, gerrors.IsFatal(err))
	assert.Contains(t, err.Error(), "Another sample batch has been loaded already.")
}

func TestCheckCanLoadSampleBatchSomeSamples(t *testing.T) {
	sc := newStudy()
	sc.MarkIndexed(1, 2)
	_, err := CheckCanLoadSampleBatch(sc, 5)
	require.Error(t, err)
	assert.True(t, gerrors.IsFatal(err))
	assert.False(t, gerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "There was some already indexed samples, but not all of them.")
}

func TestCheckCanLoadSampleBatchWrongOrder(t *testing.T) {
	sc := newStudy()
	sc.MarkIndexed(1)
	reordered := sc.NextFileId()
	sc.FileIds["reordered.vcf"] = reordered
	sc.SamplesInFiles[reordered] = []int{1, 0, 2, 3}

	_, err := CheckCanLoadSampleBatch(sc, reordered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Wrong samples order")
}

func TestAddBatchOperationLifecycle(t *testing.T) {
	sc := newStudy()

	stage, err := AddBatchOperation(sc, op.STAGE, []int{1}, false)
	require.NoError(t, err)
	assert.Equal(t, bs.RUNNING, stage.CurrentStatus())

	// the same stage without resume is refused, and with resume taken over
	_, err = AddBatchOperation(sc, op.STAGE, []int{1}, false)
	assert.True(t, gerrors.IsFatal(err))
	again, err := AddBatchOperation(sc, op.STAGE, []int{1}, true)
	require.NoError(t, err)
	assert.Same(t, stage, again)
	assert.True(t, again.IsResume())

	// merge while the stage is not ready
	_, err = AddBatchOperation(sc, op.MERGE, []int{1}, true)
	assert.True(t, gerrors.IsFatal(err))

	previous, err := SetStatus(sc, bs.DONE, op.STAGE, []int{1})
	require.NoError(t, err)
	assert.Equal(t, bs.RUNNING, previous)
	_, err = SetStatus(sc, bs.READY, op.STAGE, []int{1})
	require.NoError(t, err)

	merge, err := AddBatchOperation(sc, op.MERGE, []int{1}, false)
	require.NoError(t, err)
	assert.Equal(t, bs.RUNNING, merge.CurrentStatus())

	_, err = SetStatus(sc, bs.ERROR, op.MERGE, []int{1})
	require.NoError(t, err)
	_, err = AddBatchOperation(sc, op.MERGE, []int{1}, false)
	assert.True(t, gerrors.IsFatal(err))
	resumed, err := AddBatchOperation(sc, op.MERGE, []int{1}, true)
	require.NoError(t, err)
	assert.Equal(t, bs.RUNNING, resumed.CurrentStatus())

	_, err = SetStatus(sc, bs.DONE, op.MERGE, []int{1})
	require.NoError(t, err)
	done, err := AddBatchOperation(sc, op.MERGE, []int{1}, false)
	require.NoError(t, err)
	assert.Equal(t, bs.DONE, done.CurrentStatus())

	// operations are never removed
	assert.Len(t, sc.Batches, 2)
	statuses := []string{}
	linq.From(resumed.Status).SelectT(func(s models.BatchFileOperationStep) string {
		return string(s.Status)
	}).ToSlice(&statuses)
	assert.Equal(t, []string{"RUNNING", "ERROR", "RUNNING", "DONE"}, statuses)
}

func TestMergeIsRejectedWhileStageRuns(t *testing.T) {
	sc := newStudy()
	_, err := AddBatchOperation(sc, op.STAGE, []int{3}, false)
	require.NoError(t, err)

	_, err = AddBatchOperation(sc, op.MERGE, []int{1}, false)
	require.Error(t, err)
	assert.True(t, gerrors.IsFatal(err))
	assert.Len(t, sc.Batches, 1)
}

func TestConcurrentStagesOfDifferentFiles(t *testing.T) {
	sc := newStudy()
	_, err := AddBatchOperation(sc, op.STAGE, []int{1}, false)
	require.NoError(t, err)
	_, err = AddBatchOperation(sc, op.STAGE, []int{2}, false)
	require.NoError(t, err)

	// but not a stage over a file already in another stage
	_, err = AddBatchOperation(sc, op.STAGE, []int{1, 2}, false)
	assert.True(t, gerrors.IsFatal(err))
}

func TestStageIsRejectedWhileMergeRuns(t *testing.T) {
	sc := newStudy()
	_, err := AddBatchOperation(sc, op.MERGE, []int{1}, false)
	require.NoError(t, err)
	_, err = AddBatchOperation(sc, op.STAGE, []int{3}, false)
	assert.True(t, gerrors.IsFatal(err))
}

func TestSetStatusRejectsIllegalTransitions(t *testing.T) {
	sc := newStudy()
	_, err := SetStatus(sc, bs.DONE, op.MERGE, []int{1})
	assert.Error(t, err)

	_, err = AddBatchOperation(sc, op.MERGE, []int{1}, false)
	require.NoError(t, err)
	_, err = SetStatus(sc, bs.READY, op.MERGE, []int{1})
	assert.Error(t, err)
}
