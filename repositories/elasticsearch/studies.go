package elasticsearch

import (
	"context"
	"strconv"

	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"

	"github.com/Jeffail/gabs"
	"github.com/pkg/errors"
)

// compare-and-set on the version field. A mismatch turns the update into a noop.
const studyCasScript = `
long current = ((Number) ctx._source.version).longValue();
long expected = ((Number) params.expected).longValue();
if (current == expected) {
	ctx._source.clear();
	ctx._source.putAll(params.doc);
} else {
	ctx.op = 'noop';
}`

func (s *Store) GetStudy(ctx context.Context, studyId int) (*models.StudyConfiguration, error) {
	res, err := s.es.Get(s.studiesIndex(), strconv.Itoa(studyId), s.es.Get.WithContext(ctx))
	if err == nil && res.StatusCode == 404 {
		res.Body.Close()
		return nil, errors.Wrapf(gerrors.ErrNotFound, "study %d", studyId)
	}
	parsed, err := s.parse(res, err, "getting study "+strconv.Itoa(studyId))
	if err != nil {
		return nil, err
	}
	return studyFromHit(parsed)
}

func (s *Store) GetStudyByName(ctx context.Context, name string) (*models.StudyConfiguration, error) {
	studies, err := s.findStudies(ctx, map[string]interface{}{
		"term": map[string]interface{}{"studyName": name},
	})
	if err != nil {
		return nil, err
	}
	if len(studies) == 0 {
		return nil, errors.Wrapf(gerrors.ErrNotFound, "study %q", name)
	}
	return studies[0], nil
}

func (s *Store) ListStudies(ctx context.Context) ([]*models.StudyConfiguration, error) {
	return s.findStudies(ctx, map[string]interface{}{"match_all": map[string]interface{}{}})
}

func (s *Store) findStudies(ctx context.Context, query map[string]interface{}) ([]*models.StudyConfiguration, error) {
	buf, err := encode(map[string]interface{}{
		"query": query,
		"size":  10000,
		"sort":  []map[string]interface{}{{"studyId": "asc"}},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.studiesIndex()),
		s.es.Search.WithBody(buf),
	)
	parsed, err := s.parse(res, err, "searching studies")
	if err != nil {
		return nil, err
	}
	hits, _ := parsed.Path("hits.hits").Children()
	studies := make([]*models.StudyConfiguration, 0, len(hits))
	for _, hit := range hits {
		sc, err := studyFromHit(hit)
		if err != nil {
			return nil, err
		}
		studies = append(studies, sc)
	}
	return studies, nil
}

func (s *Store) PutStudy(ctx context.Context, sc *models.StudyConfiguration, expectedVersion int64) error {
	id := strconv.Itoa(sc.StudyId)
	if expectedVersion == 0 {
		body, err := encode(sc)
		if err != nil {
			return err
		}
		res, err := s.es.Create(s.studiesIndex(), id, body,
			s.es.Create.WithContext(ctx),
			s.es.Create.WithRefresh("true"),
		)
		if err == nil && res.StatusCode == 409 {
			res.Body.Close()
			return errors.Wrapf(gerrors.ErrVersionConflict, "study %d already exists", sc.StudyId)
		}
		_, err = s.parse(res, err, "creating study "+id)
		return err
	}

	// round trip through json so that the script receives plain maps
	doc, err := toMap(sc)
	if err != nil {
		return err
	}
	body, err := encode(map[string]interface{}{
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": studyCasScript,
			"params": map[string]interface{}{
				"expected": expectedVersion,
				"doc":      doc,
			},
		},
	})
	if err != nil {
		return err
	}
	res, err := s.es.Update(s.studiesIndex(), id, body,
		s.es.Update.WithContext(ctx),
		s.es.Update.WithRefresh("true"),
	)
	if err == nil && res.StatusCode == 404 {
		res.Body.Close()
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d does not exist", sc.StudyId)
	}
	if err == nil && res.StatusCode == 409 {
		res.Body.Close()
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d was written concurrently", sc.StudyId)
	}
	parsed, err := s.parse(res, err, "updating study "+id)
	if err != nil {
		return err
	}
	if result, _ := parsed.Path("result").Data().(string); result == "noop" {
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d is not at version %d", sc.StudyId, expectedVersion)
	}
	return nil
}

func studyFromHit(hit *gabs.Container) (*models.StudyConfiguration, error) {
	sc := &models.StudyConfiguration{}
	if err := decodeSource(hit, sc); err != nil {
		return nil, errors.Wrap(err, "decoding study")
	}
	sc.EnsureMaps()
	return sc, nil
}
