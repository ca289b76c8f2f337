package studies

import (
	"context"
	"sync"
	"testing"

	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/repositories/badger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *badger.Store) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, nil), store
}

func TestCreateStudy(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.CreateStudy(ctx, "1kg")
	require.NoError(t, err)
	assert.Equal(t, 1, first.StudyId)
	assert.NotZero(t, first.Version)

	second, err := m.CreateStudy(ctx, "gnomad")
	require.NoError(t, err)
	assert.Equal(t, 2, second.StudyId)

	again, err := m.CreateStudy(ctx, "1kg")
	require.NoError(t, err)
	assert.Equal(t, 1, again.StudyId)

	byName, err := m.GetStudyConfigurationByName(ctx, "gnomad")
	require.NoError(t, err)
	assert.Equal(t, 2, byName.StudyId)

	_, err = m.GetStudyConfiguration(ctx, 42)
	assert.True(t, errors.Is(err, gerrors.ErrNotFound))
}

func TestReadsAreCopies(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	sc, err := m.CreateStudy(ctx, "copies")
	require.NoError(t, err)

	sc.FileIds["mutated.vcf"] = 99
	fresh, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	assert.NotContains(t, fresh.FileIds, "mutated.vcf")
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	sc, err := m.CreateStudy(ctx, "stale")
	require.NoError(t, err)

	a, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	b, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)

	a.Attributes["owner"] = "a"
	require.NoError(t, m.UpdateStudyConfiguration(ctx, a))
	assert.Greater(t, a.Version, sc.Version)

	b.Attributes["owner"] = "b"
	err = m.UpdateStudyConfiguration(ctx, b)
	assert.True(t, errors.Is(err, gerrors.ErrVersionConflict))

	stored, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Attributes["owner"])
}

func TestLockAndUpdateAcrossManagers(t *testing.T) {
	first, store := newManager(t)
	// a second manager over the same store behaves like another process
	second := NewManager(store, nil)
	ctx := context.Background()
	sc, err := first.CreateStudy(ctx, "busy")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		m := first
		if i%2 == 1 {
			m = second
		}
		wg.Add(1)
		go func(m *Manager, i int) {
			defer wg.Done()
			_, err := m.LockAndUpdate(ctx, sc.StudyId, func(sc *models.StudyConfiguration) error {
				sc.Cohorts[i] = []int{i}
				return nil
			})
			assert.NoError(t, err)
		}(m, i)
	}
	wg.Wait()

	first.Refresh(sc.StudyId)
	final, err := first.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	assert.Len(t, final.Cohorts, 20)
}

func TestLockAndUpdateAbortsOnError(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	sc, err := m.CreateStudy(ctx, "abort")
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = m.LockAndUpdate(ctx, sc.StudyId, func(sc *models.StudyConfiguration) error {
		sc.Attributes["touched"] = true
		return boom
	})
	assert.Equal(t, boom, err)

	stored, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	assert.NotContains(t, stored.Attributes, "touched")
	assert.Equal(t, sc.Version, stored.Version)
}

func TestRegisterFile(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	sc, err := m.CreateStudy(ctx, "files")
	require.NoError(t, err)

	fileA, err := m.RegisterFile(ctx, sc.StudyId, "a.vcf", "/data/a.vcf", []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	fileB, err := m.RegisterFile(ctx, sc.StudyId, "b.vcf", "/data/b.vcf", []string{"s3", "s4"})
	require.NoError(t, err)
	assert.Equal(t, 1, fileA)
	assert.Equal(t, 2, fileB)

	again, err := m.RegisterFile(ctx, sc.StudyId, "a.vcf", "/data/a.vcf", []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, fileA, again)

	_, err = m.RegisterFile(ctx, sc.StudyId, "a.vcf", "/data/a.vcf", []string{"s2", "s1", "s3"})
	assert.True(t, gerrors.IsFatal(err))

	samples, err := m.Samples().FileSamples(ctx, sc.StudyId, fileA)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, samples)
	samples, err = m.Samples().FileSamples(ctx, sc.StudyId, fileB)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, samples)

	stored, err := m.GetStudyConfiguration(ctx, sc.StudyId)
	require.NoError(t, err)
	assert.Equal(t, "/data/b.vcf", stored.FileMetadata[fileB].Path)
}

func TestSamplesCacheIsInvalidatedOnWrite(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	sc, err := m.CreateStudy(ctx, "cache")
	require.NoError(t, err)

	r, err := m.Samples().Resolver(ctx, sc.StudyId)
	require.NoError(t, err)
	_, ok := r.SampleId(sc.StudyId, "late")
	assert.False(t, ok)

	_, err = m.RegisterFile(ctx, sc.StudyId, "late.vcf", "", []string{"late"})
	require.NoError(t, err)

	r, err = m.Samples().Resolver(ctx, sc.StudyId)
	require.NoError(t, err)
	id, ok := r.SampleId(sc.StudyId, "late")
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestAddLoadedGenotypes(t *testing.T) {
	sc := models.NewStudyConfiguration(1, "gts")
	require.NoError(t, AddLoadedGenotypes(sc, []string{"0/1"}))
	require.NoError(t, AddLoadedGenotypes(sc, []string{"1/1", "0/1"}))

	attrs, err := sc.GetAttributes()
	require.NoError(t, err)
	assert.Equal(t, []string{"0/1", "1/1"}, attrs.LoadedGenotypes)
}

func TestNextVersionIsStrictlyIncreasing(t *testing.T) {
	future := nextVersion(0) + 10_000
	assert.Equal(t, future+1, nextVersion(future))
}
