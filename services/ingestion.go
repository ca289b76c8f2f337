package services

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"
	"gohan/variantstore/models/ingest"
	"gohan/variantstore/services/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type (
	// IngestionService queues file loads and keeps track of their state.
	// Loads run in the background, at most FileProcessingConcurrencyLevel
	// at a time.
	IngestionService struct {
		Initialized                  bool
		IngestRequestChan            chan *ingest.LoadRequest
		IngestRequestMap             map[string]*ingest.LoadRequest
		IngestRequestMapMux          sync.RWMutex
		ConcurrentFileIngestionQueue chan bool

		engine   *storage.StorageEngine
		defaults models.LoadOptions
		logger   logrus.FieldLogger
		running  sync.WaitGroup
		updates  sync.WaitGroup
	}
)

func NewIngestionService(engine *storage.StorageEngine, cfg *models.Config, logger logrus.FieldLogger) *IngestionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	concurrency := cfg.Api.FileProcessingConcurrencyLevel
	if concurrency < 1 {
		concurrency = 1
	}

	iz := &IngestionService{
		Initialized:                  false,
		IngestRequestChan:            make(chan *ingest.LoadRequest),
		IngestRequestMap:             map[string]*ingest.LoadRequest{},
		IngestRequestMapMux:          sync.RWMutex{},
		ConcurrentFileIngestionQueue: make(chan bool, concurrency),
		engine:                       engine,
		defaults:                     cfg.Load,
		logger:                       logger.WithField("component", "ingestion"),
	}
	iz.Init()

	return iz
}

func (i *IngestionService) Init() {
	// safeguard to prevent multiple initilizations
	if !i.Initialized {
		// listener for request updates, the map is only written from here
		go func() {
			for request := range i.IngestRequestChan {
				if request.State == ingest.Queued {
					i.logger.Infof("queueing a new load request for %s", request.Filename)
				}
				request.UpdatedAt = time.Now().String()

				i.IngestRequestMapMux.Lock()
				i.IngestRequestMap[request.Id.String()] = request
				i.IngestRequestMapMux.Unlock()
				i.updates.Done()
			}
		}()
		i.Initialized = true
	}
}

// Submit queues the load of the file at path into the study. Options
// override the configured load defaults.
func (i *IngestionService) Submit(studyId int, path string, options map[string]any) (*ingest.LoadRequest, error) {
	requests, err := i.SubmitBatch(studyId, []string{path}, options)
	if err != nil {
		return nil, err
	}
	return requests[0], nil
}

// SubmitBatch queues the files at paths as one load: every file is staged,
// then they are merged together by merge.batch.size. One request is
// tracked per file.
func (i *IngestionService) SubmitBatch(studyId int, paths []string, options map[string]any) ([]*ingest.LoadRequest, error) {
	if len(paths) == 0 {
		return nil, gerrors.Fatal("submit", "no file to load")
	}
	seen := map[string]bool{}
	for _, path := range paths {
		filename := filepath.Base(path)
		if seen[filename] {
			return nil, gerrors.Fatal("submit", "file %s is given twice", filename)
		}
		seen[filename] = true
		if i.FilenameAlreadyRunning(studyId, filename) {
			return nil, gerrors.Fatal("submit", "file %s is already being loaded", filename)
		}
	}
	opts, err := i.defaults.WithOverrides(options)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.FatalPrecondition, "submit", err)
	}

	now := time.Now().String()
	requests := make([]*ingest.LoadRequest, len(paths))
	queued := make([]*ingest.LoadRequest, len(paths))
	for n, path := range paths {
		requests[n] = &ingest.LoadRequest{
			Id:        uuid.New(),
			StudyId:   studyId,
			Filename:  filepath.Base(path),
			State:     ingest.Queued,
			Options:   options,
			CreatedAt: now,
		}
		i.publish(requests[n])
		snapshot := *requests[n]
		queued[n] = &snapshot
	}

	i.running.Add(1)
	go func() {
		defer i.running.Done()
		i.ConcurrentFileIngestionQueue <- true
		defer func() { <-i.ConcurrentFileIngestionQueue }()
		i.process(requests, paths, opts)
	}()
	return queued, nil
}

func (i *IngestionService) process(requests []*ingest.LoadRequest, paths []string, opts models.LoadOptions) {
	studyId := requests[0].StudyId
	for _, request := range requests {
		request.State = ingest.Running
		i.publish(request)
	}

	results, err := i.engine.LoadFiles(context.Background(), studyId, paths, opts)
	for n, res := range results {
		requests[n].FileId = res.FileId
		requests[n].Result = res.Merge
		if requests[n].Result == nil {
			requests[n].Result = res.Stage
		}
	}
	if err != nil {
		// the files of a batch are loaded as a unit
		i.logger.WithError(err).WithField("study", studyId).Errorf("load of %d files failed", len(paths))
		for _, request := range requests {
			request.State = ingest.Error
			request.Message = err.Error()
			i.publish(request)
		}
		return
	}
	for n, request := range requests {
		request.State = ingest.Done
		request.Message = "loaded"
		if len(results[n].Warnings) > 0 {
			request.Message = results[n].Warnings[0]
		}
		i.publish(request)
	}
}

// publish hands a copy of the request to the listener
func (i *IngestionService) publish(request *ingest.LoadRequest) {
	snapshot := *request
	i.updates.Add(1)
	i.IngestRequestChan <- &snapshot
}

// GetRequests lists every request, oldest first
func (i *IngestionService) GetRequests() []ingest.LoadRequest {
	i.IngestRequestMapMux.RLock()
	defer i.IngestRequestMapMux.RUnlock()

	out := make([]ingest.LoadRequest, 0, len(i.IngestRequestMap))
	for _, r := range i.IngestRequestMap {
		out = append(out, *r)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt < out[b].CreatedAt
		}
		return out[a].Id.String() < out[b].Id.String()
	})
	return out
}

func (i *IngestionService) GetRequest(id string) (ingest.LoadRequest, bool) {
	i.IngestRequestMapMux.RLock()
	defer i.IngestRequestMapMux.RUnlock()
	r, ok := i.IngestRequestMap[id]
	if !ok {
		return ingest.LoadRequest{}, false
	}
	return *r, true
}

// Wait blocks until every submitted load is over
func (i *IngestionService) Wait() {
	i.running.Wait()
	i.updates.Wait()
}

func (i *IngestionService) FilenameAlreadyRunning(studyId int, filename string) bool {
	i.IngestRequestMapMux.Lock()
	defer i.IngestRequestMapMux.Unlock()

	for _, v := range i.IngestRequestMap {
		if v.StudyId == studyId && v.Filename == filename && (v.State == ingest.Queued || v.State == ingest.Running) {
			return true
		}
	}
	return false
}
