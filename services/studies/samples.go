package studies

import (
	"context"
	"sync"

	"gohan/variantstore/codecs/variant"
)

// SamplesCache keeps, per study, the sample ids of every file. It is
// dropped whenever the manager writes the study.
type SamplesCache struct {
	manager *Manager

	mux      sync.RWMutex
	resolver map[int]variant.StudyResolver
}

func newSamplesCache(m *Manager) *SamplesCache {
	return &SamplesCache{manager: m, resolver: map[int]variant.StudyResolver{}}
}

// Resolver returns a sample resolver over the current configuration of the study
func (c *SamplesCache) Resolver(ctx context.Context, studyId int) (variant.StudyResolver, error) {
	c.mux.RLock()
	r, ok := c.resolver[studyId]
	c.mux.RUnlock()
	if ok {
		return r, nil
	}

	sc, err := c.manager.GetStudyConfiguration(ctx, studyId)
	if err != nil {
		return nil, err
	}
	r = variant.NewStudyResolver(sc)
	c.mux.Lock()
	c.resolver[studyId] = r
	c.mux.Unlock()
	return r, nil
}

// FileSamples returns the ordered sample ids of a file
func (c *SamplesCache) FileSamples(ctx context.Context, studyId int, fileId int) ([]int, error) {
	r, err := c.Resolver(ctx, studyId)
	if err != nil {
		return nil, err
	}
	return r.FileSamples(studyId, fileId), nil
}

func (c *SamplesCache) Invalidate(studyId int) {
	c.mux.Lock()
	delete(c.resolver, studyId)
	c.mux.Unlock()
}
