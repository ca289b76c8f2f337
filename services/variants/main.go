package variantsService

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"gohan/variantstore/repositories"
	"gohan/variantstore/services/storage"

	"github.com/hashicorp/go-multierror"
)

// GetVariantsOverview counts the canonical documents of the study per
// chromosome and per file. Chromosomes are taken from the metadata of the
// registered files.
func GetVariantsOverview(ctx context.Context, engine *storage.StorageEngine, studyId int) (map[string]interface{}, error) {
	sc, err := engine.Studies().GetStudyConfiguration(ctx, studyId)
	if err != nil {
		return nil, err
	}

	resultsMap := map[string]map[string]int64{
		"chromosomes": {},
		"files":       {},
	}
	var (
		resultsMux sync.Mutex
		errs       *multierror.Error
		wg         sync.WaitGroup
	)

	callCount := func(key string, bucket string, q repositories.VariantQuery) {
		defer wg.Done()

		count, countErr := engine.CountVariants(ctx, q)

		resultsMux.Lock()
		defer resultsMux.Unlock()
		if countErr != nil {
			errs = multierror.Append(errs, countErr)
			return
		}
		resultsMap[key][bucket] = count
	}

	// get distribution of chromosomes
	chromosomes := map[string]bool{}
	for _, meta := range sc.FileMetadata {
		for chr := range meta.ChromosomeCounts {
			chromosomes[chr] = true
		}
	}
	for chr := range chromosomes {
		wg.Add(1)
		go callCount("chromosomes", chr, repositories.VariantQuery{StudyId: studyId, Chromosome: chr})
	}

	// get distribution of indexed files
	names := make(map[int]string, len(sc.FileIds))
	for name, id := range sc.FileIds {
		names[id] = name
	}
	indexed := append([]int(nil), sc.IndexedFiles...)
	sort.Ints(indexed)
	for _, fileId := range indexed {
		name, ok := names[fileId]
		if !ok {
			name = strconv.Itoa(fileId)
		}
		wg.Add(1)
		go callCount("files", name, repositories.VariantQuery{StudyId: studyId, FileIds: []int{fileId}})
	}

	wg.Wait()
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	out := map[string]interface{}{}
	for key, buckets := range resultsMap {
		out[key] = buckets
	}
	return out, nil
}
