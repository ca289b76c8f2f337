package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gohan/variantstore/models"
	"gohan/variantstore/models/ingest"
	"gohan/variantstore/repositories/badger"
	"gohan/variantstore/services/storage"
	"gohan/variantstore/services/studies"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vcf = "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts1\ts2\n" +
	"1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\n" +
	"1\t200\t.\tG\tT\t.\tPASS\t.\tGT\t1/1\t0/1\n"

func newIngestion(t *testing.T) (*IngestionService, int) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	manager := studies.NewManager(store, nil)
	sc, err := manager.CreateStudy(context.Background(), "ingestion")
	require.NoError(t, err)

	cfg := &models.Config{Load: models.DefaultLoadOptions()}
	cfg.Api.FileProcessingConcurrencyLevel = 2
	return NewIngestionService(storage.NewStorageEngine(store, manager, nil, nil), cfg, nil), sc.StudyId
}

func writeFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubmitLoadsTheFile(t *testing.T) {
	iz, studyId := newIngestion(t)
	request, err := iz.Submit(studyId, writeFile(t, "sample.vcf", vcf), map[string]any{"load.threads": 1})
	require.NoError(t, err)
	assert.Equal(t, ingest.Queued, request.State)
	assert.Equal(t, "sample.vcf", request.Filename)

	iz.Wait()
	done, ok := iz.GetRequest(request.Id.String())
	require.True(t, ok)
	assert.Equal(t, ingest.Done, done.State, done.Message)
	assert.Equal(t, 1, done.FileId)
	require.NotNil(t, done.Result)
	assert.EqualValues(t, 2, done.Result.NewDocuments)
	assert.Len(t, iz.GetRequests(), 1)
}

func TestSubmitFailureIsRecorded(t *testing.T) {
	iz, studyId := newIngestion(t)
	request, err := iz.Submit(studyId, filepath.Join(t.TempDir(), "missing.vcf"), nil)
	require.NoError(t, err)

	iz.Wait()
	failed, ok := iz.GetRequest(request.Id.String())
	require.True(t, ok)
	assert.Equal(t, ingest.Error, failed.State)
	assert.Contains(t, failed.Message, "missing.vcf")
}

func TestSubmitRejectsUnknownOptions(t *testing.T) {
	iz, studyId := newIngestion(t)
	_, err := iz.Submit(studyId, writeFile(t, "sample.vcf", vcf), map[string]any{"no.such.option": true})
	assert.Error(t, err)
	assert.Empty(t, iz.GetRequests())
}

func TestFilenameAlreadyRunning(t *testing.T) {
	iz, studyId := newIngestion(t)
	running := &ingest.LoadRequest{Id: uuid.New(), StudyId: studyId, Filename: "sample.vcf", State: ingest.Running}
	iz.IngestRequestMapMux.Lock()
	iz.IngestRequestMap[running.Id.String()] = running
	iz.IngestRequestMapMux.Unlock()

	assert.True(t, iz.FilenameAlreadyRunning(studyId, "sample.vcf"))
	assert.False(t, iz.FilenameAlreadyRunning(studyId+1, "sample.vcf"))

	_, err := iz.Submit(studyId, writeFile(t, "sample.vcf", vcf), nil)
	assert.Error(t, err)
}

func TestSubmitBatchMergesTheFilesTogether(t *testing.T) {
	iz, studyId := newIngestion(t)
	other := "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts3\n" +
		"1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t1/1\n" +
		"1\t300\t.\tC\tG\t.\tPASS\t.\tGT\t0/1\n"
	paths := []string{writeFile(t, "a.vcf", vcf), writeFile(t, "b.vcf", other)}

	requests, err := iz.SubmitBatch(studyId, paths, map[string]any{"merge.batch.size": 2})
	require.NoError(t, err)
	require.Len(t, requests, 2)

	iz.Wait()
	for _, r := range requests {
		done, ok := iz.GetRequest(r.Id.String())
		require.True(t, ok)
		assert.Equal(t, ingest.Done, done.State, done.Message)
		require.NotNil(t, done.Result)
		assert.EqualValues(t, 3, done.Result.NewDocuments, "both files are counted by the same merge")
	}
}

func TestSubmitBatchRejectsTheSameFileTwice(t *testing.T) {
	iz, studyId := newIngestion(t)
	path := writeFile(t, "sample.vcf", vcf)
	_, err := iz.SubmitBatch(studyId, []string{path, path}, nil)
	assert.Error(t, err)
	_, err = iz.SubmitBatch(studyId, nil, nil)
	assert.Error(t, err)
	assert.Empty(t, iz.GetRequests())
}
