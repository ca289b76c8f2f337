package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func stageEntry(chr string, start int, ref string, alt string, record string) *structs.StageQueueStructure {
	return &structs.StageQueueStructure{
		Document: &indexes.StageDocument{
			Id:         variant.BuildId(chr, start, ref, alt),
			Chromosome: chr,
			Start:      start,
			End:        start,
			Reference:  ref,
			Alternate:  alt,
		},
		Record: []byte(record),
	}
}

func TestOpenOnDisk(t *testing.T) {
	store, err := Open(t.TempDir(), false, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestStudyVersioning(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetStudy(ctx, 1)
	assert.True(t, errors.Is(err, gerrors.ErrNotFound))

	sc := models.NewStudyConfiguration(1, "study")
	sc.Version = 10
	require.NoError(t, store.PutStudy(ctx, sc, 0))

	// creating twice is a conflict
	assert.True(t, errors.Is(store.PutStudy(ctx, sc, 0), gerrors.ErrVersionConflict))

	sc.Version = 11
	require.NoError(t, store.PutStudy(ctx, sc, 10))
	assert.True(t, errors.Is(store.PutStudy(ctx, sc, 10), gerrors.ErrVersionConflict))

	byName, err := store.GetStudyByName(ctx, "study")
	require.NoError(t, err)
	assert.Equal(t, int64(11), byName.Version)

	studies, err := store.ListStudies(ctx)
	require.NoError(t, err)
	assert.Len(t, studies, 1)
}

func TestAppendStageAddToSet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	entries := []*structs.StageQueueStructure{
		stageEntry("1", 100, "A", "C", "r1"),
		stageEntry("1", 200, "A", "G", "r2"),
	}

	created, err := store.AppendStage(ctx, 1, 1, entries, false)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// replay with set semantics does not duplicate records
	created, err = store.AppendStage(ctx, 1, 1, entries, true)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	// a second file appends to the same documents
	_, err = store.AppendStage(ctx, 1, 2, entries[:1], false)
	require.NoError(t, err)

	docs, err := store.ReadStage(ctx, repositories.StageQuery{StudyId: 1}, "", 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, [][]byte{[]byte("r1")}, docs[0].Files[1])
	assert.Equal(t, []int{1, 2}, docs[0].FileIds)
	assert.Equal(t, []int{1}, docs[1].FileIds)

	// without set semantics the duplicate is kept
	_, err = store.AppendStage(ctx, 1, 1, entries[:1], false)
	require.NoError(t, err)
	docs, err = store.ReadStage(ctx, repositories.StageQuery{StudyId: 1, FileIds: []int{1}}, "", 1)
	require.NoError(t, err)
	assert.Len(t, docs[0].Files[1], 2)
}

func TestReadStagePaging(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	var entries []*structs.StageQueueStructure
	for i := 1; i <= 25; i++ {
		entries = append(entries, stageEntry("2", i*10, "A", "T", fmt.Sprint(i)))
	}
	entries = append(entries, stageEntry("3", 5, "A", "T", "other"))
	_, err := store.AppendStage(ctx, 1, 1, entries, false)
	require.NoError(t, err)

	var starts []int
	after := ""
	for {
		docs, err := store.ReadStage(ctx, repositories.StageQuery{StudyId: 1, Chromosome: "2"}, after, 10)
		require.NoError(t, err)
		for _, d := range docs {
			starts = append(starts, d.Start)
		}
		if len(docs) < 10 {
			break
		}
		after = docs[len(docs)-1].Id
	}
	assert.Len(t, starts, 25)
	assert.IsIncreasing(t, starts)

	count, err := store.CountStage(ctx, repositories.StageQuery{StudyId: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(26), count)
}

func TestMarkMergedAndClean(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	entries := []*structs.StageQueueStructure{
		stageEntry("1", 100, "A", "C", "r1"),
		stageEntry("1", 100, "A", "C", "r1-dup"),
	}
	_, err := store.AppendStage(ctx, 1, 1, entries, false)
	require.NoError(t, err)
	_, err = store.AppendStage(ctx, 1, 2, entries[:1], false)
	require.NoError(t, err)

	docs, err := store.ReadStage(ctx, repositories.StageQuery{StudyId: 1}, "", 0)
	require.NoError(t, err)
	require.NoError(t, store.MarkStageMerged(ctx, 1, []int{1}, docs))

	docs, err = store.ReadStage(ctx, repositories.StageQuery{StudyId: 1, FileIds: []int{1}}, "", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].IsMerged(1))
	assert.Equal(t, 2, docs[0].Merged[1])
	assert.NotContains(t, docs[0].Files, 1)

	cleaned, err := store.CleanStage(ctx, 1, []int{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned)
	count, err := store.CountStage(ctx, repositories.StageQuery{StudyId: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.CleanStage(ctx, 1, []int{2}, []string{"1"})
	require.NoError(t, err)
	count, err = store.CountStage(ctx, repositories.StageQuery{StudyId: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUpsertAndFindVariants(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var upserts []*repositories.VariantUpsert
	for i, start := range []int{300, 100, 200} {
		id := variant.BuildId("1", start, "A", "C")
		fileId := i + 1
		start := start
		upserts = append(upserts, &repositories.VariantUpsert{
			Id: id,
			Apply: func(existing *indexes.VariantDocument) (*indexes.VariantDocument, error) {
				return &indexes.VariantDocument{
					Chromosome: "1", Start: start, End: start, Reference: "A", Alternate: "C",
					Studies: []indexes.StudyDocument{{StudyId: 1, Files: []indexes.FileDocument{{FileId: fileId}}}},
				}, nil
			},
		})
	}
	result, err := store.UpsertVariants(ctx, upserts)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)

	var starts []int
	require.NoError(t, store.FindVariants(ctx, repositories.VariantQuery{Chromosome: "1"}, func(d *indexes.VariantDocument) error {
		starts = append(starts, d.Start)
		return nil
	}))
	assert.Equal(t, []int{100, 200, 300}, starts)

	count, err := store.CountVariants(ctx, repositories.VariantQuery{StudyId: 1, FileIds: []int{2, -2}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.CountVariants(ctx, repositories.VariantQuery{Chromosome: "1", Start: 150, End: 250})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRangeQueriesReachLongDocuments(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	put := func(start int, end int, ref string) {
		doc := &indexes.VariantDocument{Chromosome: "1", Start: start, End: end, Reference: ref, Alternate: "-"}
		_, err := store.UpsertVariants(ctx, []*repositories.VariantUpsert{{
			Id: variant.BuildId("1", start, ref, "-"),
			Apply: func(*indexes.VariantDocument) (*indexes.VariantDocument, error) {
				return doc, nil
			},
		}})
		require.NoError(t, err)
	}
	put(500, 500, "A")
	put(100, 1000, "ACGT")
	put(2000, 2000, "C")
	put(5000, 5000, "G")

	require.NoError(t, store.view(func(txn *badger.Txn) error {
		span, err := readVariantSpan(txn, "1")
		assert.Equal(t, 900, span)
		return err
	}))

	find := func(start int, end int) []int {
		var starts []int
		require.NoError(t, store.FindVariants(ctx, repositories.VariantQuery{Chromosome: "1", Start: start, End: end},
			func(d *indexes.VariantDocument) error {
				starts = append(starts, d.Start)
				return nil
			}))
		return starts
	}
	assert.Equal(t, []int{100}, find(900, 950))
	assert.Equal(t, []int{100, 500}, find(450, 600))
	assert.Equal(t, []int{5000}, find(4000, 0))
	assert.Empty(t, find(1001, 1999))
}

func TestConcurrentUpsertsDoNotLoseWrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := variant.BuildId("1", 100, "A", "C")

	var wg sync.WaitGroup
	for f := 1; f <= 8; f++ {
		wg.Add(1)
		go func(fileId int) {
			defer wg.Done()
			_, err := store.UpsertVariants(ctx, []*repositories.VariantUpsert{{
				Id: id,
				Apply: func(existing *indexes.VariantDocument) (*indexes.VariantDocument, error) {
					doc := existing
					if doc == nil {
						doc = &indexes.VariantDocument{Chromosome: "1", Start: 100, End: 100,
							Studies: []indexes.StudyDocument{{StudyId: 1}}}
					}
					doc.Studies[0].Files = append(doc.Studies[0].Files, indexes.FileDocument{FileId: fileId})
					return doc, nil
				},
			}})
			assert.NoError(t, err)
		}(f)
	}
	wg.Wait()

	docs, err := store.GetVariants(ctx, []string{id})
	require.NoError(t, err)
	assert.Len(t, docs[id].Studies[0].Files, 8)
}
