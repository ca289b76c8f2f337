package stage

import (
	"context"
	"strings"
	"testing"

	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models"
	"gohan/variantstore/repositories"
	"gohan/variantstore/repositories/badger"
	"gohan/variantstore/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageVcf = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
1	100	.	A	C	.	PASS	.	GT	0/1	0/0	0/0
1	150	.	G	<X>	.	PASS	.	GT	0/1	0/0	0/0
1	100	.	A	C	.	PASS	.	GT	1/1	0/0	0/0
2	300	.	G	T,C	.	PASS	.	GT	0/1	0/2	0/0
`

func newStore(t *testing.T) *badger.Store {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func stageOptions() models.LoadOptions {
	opts := models.DefaultLoadOptions()
	opts.LoadThreads = 1
	opts.LoadBatchSize = 2
	return opts
}

func stageFile(t *testing.T, l *Loader, content string) *Result {
	r, err := utils.NewVcfReader(strings.NewReader(content), false)
	require.NoError(t, err)
	res, err := l.Stage(context.Background(), 1, 1, r)
	require.NoError(t, err)
	return res
}

func readAll(t *testing.T, store repositories.StageRepository) map[string]*indexDoc {
	docs, err := store.ReadStage(context.Background(), repositories.StageQuery{StudyId: 1}, "", 0)
	require.NoError(t, err)
	out := map[string]*indexDoc{}
	for _, d := range docs {
		out[d.Id] = &indexDoc{records: len(d.Files[1]), doc: d.Files[1]}
	}
	return out
}

type indexDoc struct {
	records int
	doc     [][]byte
}

func TestStageFile(t *testing.T) {
	store := newStore(t)
	l := NewLoader(store, stageOptions(), nil, nil)

	res := stageFile(t, l, stageVcf)
	assert.Equal(t, 3, res.Created)
	assert.EqualValues(t, 1, res.SkippedVariants)
	assert.EqualValues(t, 5, res.Metadata.NumVariants)
	assert.Equal(t, map[string]int{"SNV": 4, "SYMBOLIC": 1}, res.Metadata.VariantTypeCounts)
	assert.Equal(t, map[string]int{"1": 3, "2": 2}, res.Metadata.ChromosomeCounts)

	docs := readAll(t, store)
	require.Len(t, docs, 3)
	dup := docs[variant.BuildId("1", 100, "A", "C")]
	require.NotNil(t, dup)
	// the same locus twice in a file is kept as two records
	assert.Equal(t, 2, dup.records)
	assert.Equal(t, 1, docs[variant.BuildId("2", 300, "G", "T")].records)
	assert.Equal(t, 1, docs[variant.BuildId("2", 300, "G", "C")].records)

	rec, err := variant.UnmarshalRecord(dup.doc[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"0/1", "0/0", "0/0"}, l.codec.RecordGenotypes(rec, 3))

	rec, err = variant.UnmarshalRecord(docs[variant.BuildId("2", 300, "G", "C")].doc[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"0/2", "0/1", "0/0"}, l.codec.RecordGenotypes(rec, 3))
	require.Len(t, rec.Alternates, 1)
	assert.Equal(t, "T", rec.Alternates[0].Alternate)
}

func TestStageResumeIsIdempotent(t *testing.T) {
	store := newStore(t)
	opts := stageOptions()
	stageFile(t, NewLoader(store, opts, nil, nil), stageVcf)

	opts.StageResume = true
	res := stageFile(t, NewLoader(store, opts, nil, nil), stageVcf)
	assert.Equal(t, 0, res.Created)

	docs := readAll(t, store)
	require.Len(t, docs, 3)
	assert.Equal(t, 2, docs[variant.BuildId("1", 100, "A", "C")].records)
	assert.Equal(t, 1, docs[variant.BuildId("2", 300, "G", "T")].records)
}

func TestStageWithoutResumeDuplicates(t *testing.T) {
	store := newStore(t)
	opts := stageOptions()
	stageFile(t, NewLoader(store, opts, nil, nil), stageVcf)
	stageFile(t, NewLoader(store, opts, nil, nil), stageVcf)

	docs := readAll(t, store)
	assert.Equal(t, 2, docs[variant.BuildId("2", 300, "G", "T")].records)
}

func TestStageParallelWrite(t *testing.T) {
	store := newStore(t)
	opts := stageOptions()
	opts.LoadThreads = 3
	opts.LoadBatchSize = 1
	opts.StageParallelWrite = true

	res := stageFile(t, NewLoader(store, opts, nil, nil), stageVcf)
	assert.Equal(t, 3, res.Created)
	assert.EqualValues(t, 5, res.Metadata.NumVariants)

	docs := readAll(t, store)
	require.Len(t, docs, 3)
	assert.Equal(t, 2, docs[variant.BuildId("1", 100, "A", "C")].records)
}

func TestClean(t *testing.T) {
	store := newStore(t)
	l := NewLoader(store, stageOptions(), nil, nil)
	stageFile(t, l, stageVcf)

	n, err := l.Clean(context.Background(), 1, []int{1}, []string{"2"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Len(t, readAll(t, store), 1)

	_, err = l.Clean(context.Background(), 1, []int{1}, nil)
	require.NoError(t, err)
	assert.Empty(t, readAll(t, store))
}
