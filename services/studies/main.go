package studies

import (
	"context"
	"sort"
	"sync"
	"time"

	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/repositories"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const maxUpdateRetries = 30

// Manager is the single entry point to study configurations. Reads are
// served from a cache of deep copies, writes are optimistic and go
// through LockAndUpdate when they depend on the current state.
type Manager struct {
	repo   repositories.StudyRepository
	logger logrus.FieldLogger

	locksMux sync.Mutex
	locks    map[int]*sync.Mutex
	// serializes the allocation of study ids
	createMux sync.Mutex

	cacheMux sync.RWMutex
	cache    map[int]*models.StudyConfiguration

	samples *SamplesCache
}

func NewManager(repo repositories.StudyRepository, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{
		repo:   repo,
		logger: logger.WithField("component", "studies"),
		locks:  map[int]*sync.Mutex{},
		cache:  map[int]*models.StudyConfiguration{},
	}
	m.samples = newSamplesCache(m)
	return m
}

// Samples returns the sample cache owned by the manager
func (m *Manager) Samples() *SamplesCache {
	return m.samples
}

func (m *Manager) GetStudyConfiguration(ctx context.Context, studyId int) (*models.StudyConfiguration, error) {
	m.cacheMux.RLock()
	cached, ok := m.cache[studyId]
	m.cacheMux.RUnlock()
	if ok {
		return Copy(cached)
	}
	sc, err := m.repo.GetStudy(ctx, studyId)
	if err != nil {
		return nil, err
	}
	m.store(sc)
	return Copy(sc)
}

func (m *Manager) GetStudyConfigurationByName(ctx context.Context, name string) (*models.StudyConfiguration, error) {
	sc, err := m.repo.GetStudyByName(ctx, name)
	if err != nil {
		return nil, err
	}
	m.store(sc)
	return Copy(sc)
}

func (m *Manager) ListStudies(ctx context.Context) ([]*models.StudyConfiguration, error) {
	return m.repo.ListStudies(ctx)
}

// Refresh drops the cached copy, the next read goes to the store
func (m *Manager) Refresh(studyId int) {
	m.cacheMux.Lock()
	delete(m.cache, studyId)
	m.cacheMux.Unlock()
	m.samples.Invalidate(studyId)
}

// CreateStudy registers a new study, or returns the existing one with that name
func (m *Manager) CreateStudy(ctx context.Context, name string) (*models.StudyConfiguration, error) {
	m.createMux.Lock()
	defer m.createMux.Unlock()

	if sc, err := m.GetStudyConfigurationByName(ctx, name); err == nil {
		return sc, nil
	} else if !errors.Is(err, gerrors.ErrNotFound) {
		return nil, err
	}

	var created *models.StudyConfiguration
	err := backoff.Retry(func() error {
		studies, err := m.repo.ListStudies(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		studyId := 1
		for _, s := range studies {
			if s.StudyName == name {
				created = s
				return nil
			}
			if s.StudyId >= studyId {
				studyId = s.StudyId + 1
			}
		}
		sc := models.NewStudyConfiguration(studyId, name)
		sc.Version = nextVersion(0)
		if err := m.repo.PutStudy(ctx, sc, 0); err != nil {
			if errors.Is(err, gerrors.ErrVersionConflict) {
				// another process took that id
				return err
			}
			return backoff.Permanent(err)
		}
		created = sc
		return nil
	}, updateBackOff(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "creating study %q", name)
	}
	m.store(created)
	m.logger.WithField("study", created.StudyId).Infof("study %q ready", name)
	return Copy(created)
}

// UpdateStudyConfiguration writes sc, failing with ErrVersionConflict when
// the stored version is not the one sc was read at. On success sc carries
// the new version.
func (m *Manager) UpdateStudyConfiguration(ctx context.Context, sc *models.StudyConfiguration) error {
	expected := sc.Version
	sc.Version = nextVersion(expected)
	if err := m.repo.PutStudy(ctx, sc, expected); err != nil {
		sc.Version = expected
		if errors.Is(err, gerrors.ErrVersionConflict) {
			m.Refresh(sc.StudyId)
		}
		return err
	}
	m.store(sc)
	return nil
}

// LockAndUpdate applies fn to the latest configuration of the study and
// writes it back. Updates from this process are serialized by a per study
// lock, updates from other processes are detected by the version check and
// fn is run again on the fresh configuration. An error from fn aborts the
// update without writing anything.
func (m *Manager) LockAndUpdate(ctx context.Context, studyId int, fn func(sc *models.StudyConfiguration) error) (*models.StudyConfiguration, error) {
	lock := m.lock(studyId)
	lock.Lock()
	defer lock.Unlock()

	var updated *models.StudyConfiguration
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		sc, err := m.repo.GetStudy(ctx, studyId)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(sc); err != nil {
			return backoff.Permanent(err)
		}
		if err := m.UpdateStudyConfiguration(ctx, sc); err != nil {
			if errors.Is(err, gerrors.ErrVersionConflict) {
				m.logger.WithField("study", studyId).Debugf("concurrent study update, retrying (attempt %d)", attempts)
				return err
			}
			return backoff.Permanent(err)
		}
		updated = sc
		return nil
	}, updateBackOff(ctx))
	if err != nil {
		return nil, err
	}
	return Copy(updated)
}

func (m *Manager) lock(studyId int) *sync.Mutex {
	m.locksMux.Lock()
	defer m.locksMux.Unlock()
	l, ok := m.locks[studyId]
	if !ok {
		l = &sync.Mutex{}
		m.locks[studyId] = l
	}
	return l
}

func (m *Manager) store(sc *models.StudyConfiguration) {
	c, err := Copy(sc)
	if err != nil {
		m.logger.WithError(err).Warn("unable to cache study configuration")
		return
	}
	m.cacheMux.Lock()
	if old, ok := m.cache[sc.StudyId]; !ok || old.Version <= c.Version {
		m.cache[sc.StudyId] = c
	}
	m.cacheMux.Unlock()
	m.samples.Invalidate(sc.StudyId)
}

// RegisterFile assigns an id to the file and to its new samples. Registering
// a known file again returns its id, provided the samples did not change.
func (m *Manager) RegisterFile(ctx context.Context, studyId int, fileName string, path string, samples []string) (int, error) {
	fileId := 0
	_, err := m.LockAndUpdate(ctx, studyId, func(sc *models.StudyConfiguration) error {
		var err error
		fileId, err = RegisterFile(sc, fileName, path, samples)
		return err
	})
	return fileId, err
}

// RegisterFile is the in-place version of Manager.RegisterFile
func RegisterFile(sc *models.StudyConfiguration, fileName string, path string, samples []string) (int, error) {
	if id, ok := sc.FileIds[fileName]; ok {
		known := sc.SamplesInFiles[id]
		if len(known) != len(samples) {
			return 0, gerrors.Fatal("register file", "file %s was registered with %d samples, found %d", fileName, len(known), len(samples))
		}
		for i, name := range samples {
			if sid, ok := sc.SampleIds[name]; !ok || sid != known[i] {
				return 0, gerrors.Fatal("register file", "file %s was registered with other samples", fileName)
			}
		}
		return id, nil
	}

	seen := map[string]bool{}
	ids := make([]int, len(samples))
	for i, name := range samples {
		if seen[name] {
			return 0, gerrors.Fatal("register file", "duplicated sample %s in file %s", name, fileName)
		}
		seen[name] = true
		id, ok := sc.SampleIds[name]
		if !ok {
			id = sc.NextSampleId()
			sc.SampleIds[name] = id
		}
		ids[i] = id
	}
	fileId := sc.NextFileId()
	sc.FileIds[fileName] = fileId
	sc.SamplesInFiles[fileId] = ids
	sc.FileMetadata[fileId] = &models.FileMetadata{
		Path:              path,
		VariantTypeCounts: map[string]int{},
		ChromosomeCounts:  map[string]int{},
	}
	return fileId, nil
}

// AddLoadedGenotypes merges gts into the loaded genotypes attribute
func AddLoadedGenotypes(sc *models.StudyConfiguration, gts []string) error {
	attrs, err := sc.GetAttributes()
	if err != nil {
		return err
	}
	set := map[string]bool{}
	for _, gt := range attrs.LoadedGenotypes {
		set[gt] = true
	}
	for _, gt := range gts {
		set[gt] = true
	}
	all := make([]string, 0, len(set))
	for gt := range set {
		all = append(all, gt)
	}
	sort.Strings(all)
	sc.Attributes[models.AttrLoadedGenotypes] = all
	return nil
}

// Copy returns a deep copy of the configuration
func Copy(sc *models.StudyConfiguration) (*models.StudyConfiguration, error) {
	raw, err := msgpack.Marshal(sc)
	if err != nil {
		return nil, errors.Wrapf(err, "copying study %d", sc.StudyId)
	}
	out := &models.StudyConfiguration{}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return nil, errors.Wrapf(err, "copying study %d", sc.StudyId)
	}
	out.EnsureMaps()
	return out, nil
}

// nextVersion is a timestamp, strictly greater than the previous version
func nextVersion(previous int64) int64 {
	now := time.Now().UnixMilli()
	if now <= previous {
		return previous + 1
	}
	return now
}

func updateBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(b, maxUpdateRetries), ctx)
}
