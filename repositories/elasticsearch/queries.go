package elasticsearch

import (
	"encoding/json"

	"gohan/variantstore/repositories"

	"github.com/pkg/errors"
)

func stageQuery(q repositories.StageQuery) map[string]interface{} {
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"studyId": q.StudyId}},
	}
	if q.Chromosome != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"chromosome": q.Chromosome},
		})
	}
	if len(q.FileIds) > 0 {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"fileIds": q.FileIds},
		})
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": filter},
	}
}

func variantQuery(q repositories.VariantQuery) map[string]interface{} {
	filter := []map[string]interface{}{}
	if q.Chromosome != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"chromosome": q.Chromosome},
		})
	}
	if len(q.Ids) > 0 {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"id": q.Ids},
		})
	}
	if q.End > 0 {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"start": map[string]interface{}{"lte": q.End}},
		})
	}
	if q.Start > 0 {
		// insertions end before they start, they are matched on their start
		filter = append(filter, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"range": map[string]interface{}{"end": map[string]interface{}{"gte": q.Start}}},
					{"range": map[string]interface{}{"start": map[string]interface{}{"gte": q.Start}}},
				},
				"minimum_should_match": 1,
			},
		})
	}

	if q.StudyId != 0 || len(q.FileIds) > 0 {
		nested := []map[string]interface{}{}
		if q.StudyId != 0 {
			nested = append(nested, map[string]interface{}{
				"term": map[string]interface{}{"studies.studyId": q.StudyId},
			})
		}
		if len(q.FileIds) > 0 {
			nested = append(nested, map[string]interface{}{
				"terms": map[string]interface{}{"studies.files.fid": q.FileIds},
			})
		}
		filter = append(filter, map[string]interface{}{
			"nested": map[string]interface{}{
				"path": "studies",
				"query": map[string]interface{}{
					"bool": map[string]interface{}{"filter": nested},
				},
			},
		})
	}

	if len(filter) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": filter},
	}
}

// toMap turns a value into the generic form painless scripts receive as params
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding script params")
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "encoding script params")
	}
	return out, nil
}
