package elasticsearch

import (
	"bytes"
	"context"
	"encoding/base64"
	"strconv"
	"sync"
	"sync/atomic"

	"gohan/variantstore/models/indexes"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/repositories"

	"github.com/Jeffail/gabs"
	"github.com/elastic/go-elasticsearch/v7/esutil"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const stageAppendScript = `
String fid = params.fid;
if (params.addToSet && ctx._source.merged != null && ctx._source.merged.containsKey(fid)) {
	ctx.op = 'none';
	return;
}
if (ctx._source.files == null) {
	ctx._source.files = [:];
}
List records = ctx._source.files.get(fid);
if (records == null) {
	records = [];
	ctx._source.files.put(fid, records);
}
if (params.addToSet && records.contains(params.record)) {
	ctx.op = 'none';
	return;
}
records.add(params.record);
if (ctx._source.fileIds == null) {
	ctx._source.fileIds = [];
}
if (!ctx._source.fileIds.contains(params.fileId)) {
	ctx._source.fileIds.add(params.fileId);
}`

const stageMarkMergedScript = `
if (ctx._source.merged == null) {
	ctx._source.merged = [:];
}
boolean changed = false;
for (String fid : params.fids) {
	if (ctx._source.files != null && ctx._source.files.containsKey(fid)) {
		ctx._source.merged.put(fid, ctx._source.files.get(fid).size());
		ctx._source.files.remove(fid);
		changed = true;
	}
}
if (!changed) {
	ctx.op = 'none';
}`

const stageCleanScript = `
for (String fid : params.fids) {
	if (ctx._source.files != null) {
		ctx._source.files.remove(fid);
	}
	if (ctx._source.merged != null) {
		ctx._source.merged.remove(fid);
	}
}
List cleaned = params.fileIds;
if (ctx._source.fileIds != null) {
	ctx._source.fileIds.removeIf(f -> cleaned.contains(f));
}
boolean noFiles = ctx._source.files == null || ctx._source.files.isEmpty();
boolean noMarks = ctx._source.merged == null || ctx._source.merged.isEmpty();
if (noFiles && noMarks) {
	ctx.op = 'delete';
}`

func (s *Store) AppendStage(ctx context.Context, studyId int, fileId int, entries []*structs.StageQueueStructure, addToSet bool) (int, error) {
	var created int64
	err := s.bulk(ctx, s.stageIndex(), func(bi esutil.BulkIndexer, onFailure func(error)) error {
		for _, e := range entries {
			body, err := stageAppendBody(studyId, fileId, e, addToSet)
			if err != nil {
				return err
			}
			err = bi.Add(ctx, esutil.BulkIndexerItem{
				Action:          "update",
				DocumentID:      stageDocumentId(studyId, e.Document.Id),
				Body:            bytes.NewReader(body),
				RetryOnConflict: intPtr(maxConflictRetry),
				OnSuccess: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
					if res.Result == "created" {
						atomic.AddInt64(&created, 1)
					}
				},
				OnFailure: bulkFailure(onFailure),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return int(created), errors.Wrapf(err, "staging file %d", fileId)
	}
	return int(created), s.refresh(ctx, s.stageIndex())
}

func (s *Store) ReadStage(ctx context.Context, q repositories.StageQuery, after string, limit int) ([]*indexes.StageDocument, error) {
	var docs []*indexes.StageDocument
	err := s.search(ctx, s.stageIndex(), stageQuery(q), after, limit, func(hit *gabs.Container) error {
		doc := &indexes.StageDocument{}
		if err := decodeSource(hit, doc); err != nil {
			return errors.Wrap(err, "decoding stage document")
		}
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

func (s *Store) MarkStageMerged(ctx context.Context, studyId int, fileIds []int, docs []*indexes.StageDocument) error {
	body, err := encode(map[string]interface{}{
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": stageMarkMergedScript,
			"params": map[string]interface{}{"fids": fileKeys(fileIds)},
		},
	})
	if err != nil {
		return err
	}
	raw := body.Bytes()
	err = s.bulk(ctx, s.stageIndex(), func(bi esutil.BulkIndexer, onFailure func(error)) error {
		for _, d := range docs {
			err := bi.Add(ctx, esutil.BulkIndexerItem{
				Action:          "update",
				DocumentID:      stageDocumentId(studyId, d.Id),
				Body:            bytes.NewReader(raw),
				RetryOnConflict: intPtr(maxConflictRetry),
				OnFailure:       bulkFailure(onFailure),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "marking stage documents as merged")
	}
	return s.refresh(ctx, s.stageIndex())
}

func (s *Store) CleanStage(ctx context.Context, studyId int, fileIds []int, chromosomes []string) (int64, error) {
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"studyId": studyId}},
		{"terms": map[string]interface{}{"fileIds": fileIds}},
	}
	if len(chromosomes) > 0 {
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"chromosome": chromosomes}})
	}
	body, err := encode(map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filter}},
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": stageCleanScript,
			"params": map[string]interface{}{"fids": fileKeys(fileIds), "fileIds": fileIds},
		},
	})
	if err != nil {
		return 0, err
	}
	res, err := s.es.UpdateByQuery([]string{s.stageIndex()},
		s.es.UpdateByQuery.WithContext(ctx),
		s.es.UpdateByQuery.WithBody(body),
		s.es.UpdateByQuery.WithConflicts("proceed"),
		s.es.UpdateByQuery.WithRefresh(true),
	)
	parsed, err := s.parse(res, err, "cleaning stage")
	if err != nil {
		return 0, err
	}
	updated, _ := parsed.Path("updated").Data().(float64)
	deleted, _ := parsed.Path("deleted").Data().(float64)
	return int64(updated + deleted), nil
}

func (s *Store) CountStage(ctx context.Context, q repositories.StageQuery) (int64, error) {
	return s.count(ctx, s.stageIndex(), stageQuery(q))
}

// bulk feeds a fresh bulk indexer and waits for every item to be acknowledged
func (s *Store) bulk(ctx context.Context, index string, feed func(bi esutil.BulkIndexer, onFailure func(error)) error) error {
	var (
		mux    sync.Mutex
		result *multierror.Error
	)
	onFailure := func(err error) {
		mux.Lock()
		defer mux.Unlock()
		result = multierror.Append(result, err)
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     s.es,
		Index:      index,
		NumWorkers: bulkWorkers(s.bulkCap),
	})
	if err != nil {
		return err
	}
	feedErr := feed(bi, onFailure)
	if err := bi.Close(ctx); err != nil {
		return err
	}
	if feedErr != nil {
		return feedErr
	}
	return result.ErrorOrNil()
}

func bulkFailure(onFailure func(error)) func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem, error) {
	return func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		if err == nil {
			err = errors.Errorf("%s %s: %s: %s", item.Action, item.DocumentID, res.Error.Type, res.Error.Reason)
		}
		onFailure(err)
	}
}

// see: https://www.elastic.co/blog/why-am-i-seeing-bulk-rejections-in-my-elasticsearch-cluster
func bulkWorkers(capacity int) int {
	n := capacity / 1000
	if n < 1 {
		return 1
	}
	return n
}

func stageAppendBody(studyId int, fileId int, e *structs.StageQueueStructure, addToSet bool) ([]byte, error) {
	record := base64.StdEncoding.EncodeToString(e.Record)
	upsert := *e.Document
	upsert.StudyId = studyId
	upsert.Files = map[int][][]byte{fileId: {e.Record}}
	upsert.Merged = nil
	upsert.FileIds = []int{fileId}
	body, err := encode(map[string]interface{}{
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": stageAppendScript,
			"params": map[string]interface{}{
				"fid":      strconv.Itoa(fileId),
				"fileId":   fileId,
				"record":   record,
				"addToSet": addToSet,
			},
		},
		"upsert": upsert,
	})
	if err != nil {
		return nil, err
	}
	return body.Bytes(), nil
}

func fileKeys(fileIds []int) []string {
	keys := make([]string, len(fileIds))
	for i, f := range fileIds {
		keys[i] = strconv.Itoa(f)
	}
	return keys
}

func intPtr(i int) *int {
	return &i
}
