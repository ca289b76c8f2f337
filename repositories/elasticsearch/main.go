package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gohan/variantstore/models"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"

	"github.com/Jeffail/gabs"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	studiesIndexSuffix  = "studies"
	stageIndexSuffix    = "stage"
	variantsIndexSuffix = "variants"

	// page size of the search_after scans
	scrollPageSize   = 1000
	maxConflictRetry = 10
)

// Store keeps studies, staged records and canonical variants in three indexes
type Store struct {
	es      *elasticsearch.Client
	cfg     *models.Config
	logger  *logrus.Entry
	prefix  string
	bulkCap int
}

var _ repositories.Store = (*Store)(nil)

// New returns a store over the client, creating the indexes that are missing
func New(ctx context.Context, es *elasticsearch.Client, cfg *models.Config, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		es:      es,
		cfg:     cfg,
		logger:  logger.WithField("component", "elasticsearch"),
		prefix:  cfg.Elasticsearch.IndexPrefix,
		bulkCap: cfg.Elasticsearch.BulkIndexingCap,
	}
	if s.bulkCap <= 0 {
		s.bulkCap = 1000
	}
	for index, mapping := range map[string]map[string]interface{}{
		s.studiesIndex():  indexes.STUDY_INDEX_MAPPING,
		s.stageIndex():    indexes.STAGE_INDEX_MAPPING,
		s.variantsIndex(): indexes.VARIANT_INDEX_MAPPING,
	} {
		if err := s.ensureIndex(ctx, index, mapping); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close is a no-op, the client is owned by the caller
func (s *Store) Close() error {
	return nil
}

func (s *Store) studiesIndex() string  { return s.indexName(studiesIndexSuffix) }
func (s *Store) stageIndex() string    { return s.indexName(stageIndexSuffix) }
func (s *Store) variantsIndex() string { return s.indexName(variantsIndexSuffix) }

func (s *Store) indexName(suffix string) string {
	if s.prefix == "" {
		return suffix
	}
	return strings.ToLower(s.prefix) + "-" + suffix
}

func (s *Store) ensureIndex(ctx context.Context, index string, mapping map[string]interface{}) error {
	res, err := s.es.Indices.Exists([]string{index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "checking index %s", index)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, err := encode(map[string]interface{}{"mappings": mapping})
	if err != nil {
		return err
	}
	res, err = s.es.Indices.Create(index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(body),
	)
	if _, err := s.parse(res, err, "creating index "+index); err != nil {
		// lost a race with another instance
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	s.logger.Infof("Created index %s", index)
	return nil
}

func (s *Store) refresh(ctx context.Context, index string) error {
	res, err := s.es.Indices.Refresh(
		s.es.Indices.Refresh.WithIndex(index),
		s.es.Indices.Refresh.WithContext(ctx),
	)
	_, err = s.parse(res, err, "refreshing "+index)
	return err
}

func encode(v interface{}) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "encoding request body")
	}
	return &buf, nil
}

// parse checks the response status and returns its body as a gabs container
func (s *Store) parse(res *esapi.Response, err error, op string) (*gabs.Container, error) {
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if s.cfg.Debug {
		s.logger.Debugf("%s: [%s] %s", op, res.Status(), raw)
	}
	if res.IsError() {
		return nil, errors.Errorf("%s: got [%s] %s", op, res.Status(), raw)
	}
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: unreadable response", op)
	}
	return parsed, nil
}

// search runs a query sorted by id, calling fn for every hit source
func (s *Store) search(ctx context.Context, index string, query map[string]interface{}, after string, limit int,
	fn func(hit *gabs.Container) error) error {

	size := scrollPageSize
	if limit > 0 && limit < size {
		size = limit
	}
	seen := 0
	for {
		body := map[string]interface{}{
			"query": query,
			"size":  size,
			"sort":  []map[string]interface{}{{"id": "asc"}},
		}
		if after != "" {
			body["search_after"] = []string{after}
		}
		buf, err := encode(body)
		if err != nil {
			return err
		}
		res, err := s.es.Search(
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(index),
			s.es.Search.WithBody(buf),
			s.es.Search.WithSeqNoPrimaryTerm(true),
		)
		parsed, err := s.parse(res, err, "searching "+index)
		if err != nil {
			return err
		}
		hits, _ := parsed.Path("hits.hits").Children()
		for _, hit := range hits {
			if err := fn(hit); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
		if len(hits) < size {
			return nil
		}
		last, ok := hits[len(hits)-1].Path("_source.id").Data().(string)
		if !ok {
			return errors.Errorf("searching %s: hit without id", index)
		}
		after = last
	}
}

func (s *Store) count(ctx context.Context, index string, query map[string]interface{}) (int64, error) {
	buf, err := encode(map[string]interface{}{"query": query})
	if err != nil {
		return 0, err
	}
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(index),
		s.es.Count.WithBody(buf),
	)
	parsed, err := s.parse(res, err, "counting "+index)
	if err != nil {
		return 0, err
	}
	count, ok := parsed.Path("count").Data().(float64)
	if !ok {
		return 0, errors.Errorf("counting %s: no count in response", index)
	}
	return int64(count), nil
}

func decodeSource(hit *gabs.Container, v interface{}) error {
	source := hit.Path("_source")
	if source == nil || source.Data() == nil {
		return errors.New("hit without source")
	}
	return json.Unmarshal(source.Bytes(), v)
}

func stageDocumentId(studyId int, id string) string {
	return fmt.Sprintf("%d:%s", studyId, id)
}
