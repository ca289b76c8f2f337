package merge

import (
	"context"
	"strings"
	"testing"

	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/codecs/variant"
	"gohan/variantstore/models"
	mm "gohan/variantstore/models/constants/merge-mode"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories/badger"
	"gohan/variantstore/services/stage"
	"gohan/variantstore/services/studies"
	"gohan/variantstore/utils"

	"github.com/ahmetb/go-linq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t"

type fixture struct {
	store   *badger.Store
	manager *studies.Manager
	studyId int
}

func newFixture(t *testing.T) *fixture {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	manager := studies.NewManager(store, nil)
	sc, err := manager.CreateStudy(context.Background(), "merge")
	require.NoError(t, err)
	return &fixture{store: store, manager: manager, studyId: sc.StudyId}
}

func vcf(samples string, lines ...string) string {
	return header + samples + "\n" + strings.Join(lines, "\n") + "\n"
}

func options(mode string) models.LoadOptions {
	opts := models.DefaultLoadOptions()
	opts.MergeMode = mode
	opts.LoadThreads = 1
	return opts
}

func (f *fixture) stage(t *testing.T, name string, content string, opts models.LoadOptions) int {
	ctx := context.Background()
	r, err := utils.NewVcfReader(strings.NewReader(content), false)
	require.NoError(t, err)
	fileId, err := f.manager.RegisterFile(ctx, f.studyId, name, "", r.Samples())
	require.NoError(t, err)
	_, err = stage.NewLoader(f.store, opts, nil, nil).Stage(ctx, f.studyId, fileId, r)
	require.NoError(t, err)
	return fileId
}

func (f *fixture) merge(t *testing.T, opts models.LoadOptions, fileIds []int, indexed []int) *models.WriteResult {
	res, err := NewMerger(f.store, f.manager, opts, nil, nil).Merge(context.Background(), f.studyId, fileIds, "", indexed)
	require.NoError(t, err)
	return res
}

func (f *fixture) study(t *testing.T, chromosome string, start int, ref string, alt string) *indexes.StudyDocument {
	id := variant.BuildId(chromosome, start, ref, alt)
	docs, err := f.store.GetVariants(context.Background(), []string{id})
	require.NoError(t, err)
	require.Contains(t, docs, id)
	study := docs[id].Study(f.studyId)
	require.NotNil(t, study)
	return study
}

func fileIds(study *indexes.StudyDocument) []int {
	var ids []int
	linq.From(study.Files).SelectT(func(f indexes.FileDocument) int { return f.FileId }).ToSlice(&ids)
	return ids
}

func alternates(study *indexes.StudyDocument) []string {
	var alts []string
	linq.From(study.Alternates).SelectT(func(a indexes.AlternateDocument) string { return a.Alternate }).ToSlice(&alts)
	return alts
}

func genotypes(study *indexes.StudyDocument, scope ...int) map[int]string {
	return genotype.NewCodec("").DecodeIds(scope, &study.Genotypes)
}

func TestMergeSingleFile(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	file := f.stage(t, "single.vcf", vcf("s1\ts2\ts3",
		"1\t100\trs1\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)

	res := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 1, res.NewDocuments)
	assert.EqualValues(t, 0, res.UpdatedObjects)
	assert.Equal(t, []string{"0/0", "0/1"}, res.Genotypes)

	study := f.study(t, "1", 100, "A", "C")
	assert.Equal(t, "0/0", study.Genotypes.Default)
	assert.Equal(t, map[string][]int{"0/1": {0}}, study.Genotypes.Exceptions)
	assert.Equal(t, []int{file}, fileIds(study))
}

func TestMergeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	file := f.stage(t, "replay.vcf", vcf("s1\ts2",
		"1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0",
		"1\t200\t.\tG\tT\t.\tPASS\t.\tGT\t1/1\t0/1"), opts)

	first := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 2, first.NewDocuments)

	again := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 0, again.NewDocuments)
	assert.EqualValues(t, 0, again.UpdatedObjects)
	assert.Equal(t, []int{file}, fileIds(f.study(t, "1", 200, "G", "T")))
}

func TestMergeSkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	file := f.stage(t, "dups.vcf", vcf("s1",
		"1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1",
		"1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t1/1",
		"1\t300\t.\tT\tG\t.\tPASS\t.\tGT\t0/1"), opts)

	res := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 2, res.NonInsertedVariants)
	assert.EqualValues(t, 1, res.NewDocuments)

	docs, err := f.store.GetVariants(context.Background(), []string{variant.BuildId("1", 100, "A", "C")})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMergeSecondFileBasic(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	first := f.stage(t, "a.vcf", vcf("s1\ts2\ts3", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)
	f.merge(t, opts, []int{first}, nil)

	second := f.stage(t, "b.vcf", vcf("s4\ts5", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t1/1\t0/0"), opts)
	res := f.merge(t, opts, []int{second}, []int{first})
	assert.EqualValues(t, 0, res.NewDocuments)
	assert.EqualValues(t, 1, res.UpdatedObjects)

	study := f.study(t, "1", 100, "A", "C")
	assert.Equal(t, []int{first, second}, fileIds(study))
	assert.Equal(t, map[int]string{0: "0/1", 1: "0/0", 2: "0/0", 3: "1/1", 4: "0/0"}, genotypes(study, 0, 1, 2, 3, 4))
}

func TestMergeAdvancedOverlapped(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.ADVANCED))
	first := f.stage(t, "a.vcf", vcf("s1\ts2\ts3", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)
	f.merge(t, opts, []int{first}, nil)

	second := f.stage(t, "b.vcf", vcf("s4\ts5\ts6", "1\t100\t.\tA\tG\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)
	res := f.merge(t, opts, []int{second}, []int{first})
	assert.EqualValues(t, 1, res.NewDocuments)
	assert.EqualValues(t, 1, res.UpdatedObjects)
	assert.EqualValues(t, 1, res.OverlappedVariants)

	// the previous variant gets the new call as a secondary alternate
	existing := f.study(t, "1", 100, "A", "C")
	assert.Equal(t, []int{first, -second}, fileIds(existing))
	assert.Equal(t, []string{"G"}, alternates(existing))
	assert.Equal(t, map[int]string{0: "0/1", 1: "0/0", 2: "0/0", 3: "0/2", 4: "0/0", 5: "0/0"},
		genotypes(existing, 0, 1, 2, 3, 4, 5))

	// and the new one is completed with the indexed file
	created := f.study(t, "1", 100, "A", "G")
	assert.ElementsMatch(t, []int{second, -first}, fileIds(created))
	assert.Equal(t, []string{"C"}, alternates(created))
	assert.Equal(t, map[int]string{0: "0/2", 1: "0/0", 2: "0/0", 3: "0/1", 4: "0/0", 5: "0/0"},
		genotypes(created, 0, 1, 2, 3, 4, 5))
}

func TestMergeAdvancedUnionsSecondaryAlternates(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.ADVANCED))
	first := f.stage(t, "a.vcf", vcf("s1\ts2\ts3", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)
	f.merge(t, opts, []int{first}, nil)

	second := f.stage(t, "b.vcf", vcf("s4\ts5\ts6", "1\t100\t.\tA\tC,G\t.\tPASS\t.\tGT\t0/1\t0/2\t0/0"), opts)
	res := f.merge(t, opts, []int{second}, []int{first})
	assert.EqualValues(t, 1, res.NewDocuments)
	assert.EqualValues(t, 1, res.UpdatedObjects)
	assert.EqualValues(t, 1, res.OverlappedVariants)

	existing := f.study(t, "1", 100, "A", "C")
	assert.Equal(t, []int{first, second}, fileIds(existing))
	assert.Equal(t, []string{"G"}, alternates(existing))
	assert.Equal(t, map[int]string{0: "0/1", 3: "0/1", 4: "0/2", 5: "0/0"}, genotypes(existing, 0, 3, 4, 5))

	created := f.study(t, "1", 100, "A", "G")
	assert.Equal(t, []string{"C"}, alternates(created))
	assert.Equal(t, map[int]string{0: "0/2", 1: "0/0", 3: "0/2", 4: "0/1", 5: "0/0"}, genotypes(created, 0, 1, 3, 4, 5))
}

func TestMergeResumeAfterCleanWhileLoad(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	opts.StageCleanWhileLoad = true
	file := f.stage(t, "clean.vcf", vcf("s1", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1"), opts)

	first := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 1, first.NewDocuments)

	again := f.merge(t, opts, []int{file}, nil)
	assert.EqualValues(t, 1, again.AlreadyLoaded)
	assert.EqualValues(t, 0, again.NewDocuments)
	assert.EqualValues(t, 0, again.UpdatedObjects)
}

func TestMergeFamilyStudyKeepsEveryGenotype(t *testing.T) {
	f := newFixture(t)
	opts := options(string(mm.BASIC))
	opts.StudyType = "FAMILY"
	file := f.stage(t, "trio.vcf", vcf("s1\ts2\ts3", "1\t100\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\t0/0\t0/0"), opts)
	f.merge(t, opts, []int{file}, nil)

	study := f.study(t, "1", 100, "A", "C")
	assert.Equal(t, "?/?", study.Genotypes.Default)
	assert.Equal(t, map[string][]int{"0/1": {0}, "0/0": {1, 2}}, study.Genotypes.Exceptions)
}
