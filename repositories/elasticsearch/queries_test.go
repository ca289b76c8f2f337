package elasticsearch

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"gohan/variantstore/models/indexes"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/repositories"

	"github.com/Jeffail/gabs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageQueryFilters(t *testing.T) {
	raw, err := json.Marshal(stageQuery(repositories.StageQuery{StudyId: 3, Chromosome: "X", FileIds: []int{1, 2}}))
	require.NoError(t, err)
	parsed, err := gabs.ParseJSON(raw)
	require.NoError(t, err)

	filters, err := parsed.Path("bool.filter").Children()
	require.NoError(t, err)
	assert.Len(t, filters, 3)
	assert.Equal(t, float64(3), filters[0].Path("term.studyId").Data())
	assert.Equal(t, "X", filters[1].Path("term.chromosome").Data())
	assert.Equal(t, []interface{}{float64(1), float64(2)}, filters[2].Path("terms.fileIds").Data())
}

func TestVariantQueryWithoutFiltersMatchesAll(t *testing.T) {
	q := variantQuery(repositories.VariantQuery{})
	assert.Contains(t, q, "match_all")
}

func TestVariantQueryNestsStudyFilters(t *testing.T) {
	raw, err := json.Marshal(variantQuery(repositories.VariantQuery{
		StudyId: 1, FileIds: []int{4, -4}, Chromosome: "1", Start: 10, End: 20,
	}))
	require.NoError(t, err)
	parsed, err := gabs.ParseJSON(raw)
	require.NoError(t, err)

	filters, err := parsed.Path("bool.filter").Children()
	require.NoError(t, err)
	assert.Len(t, filters, 4)
	assert.Equal(t, float64(20), filters[1].Path("range.start.lte").Data())

	nested := filters[3].Path("nested")
	assert.Equal(t, "studies", nested.Path("path").Data())
	inner, err := nested.Path("query.bool.filter").Children()
	require.NoError(t, err)
	assert.Equal(t, float64(1), inner[0].Search("term", "studies.studyId").Data())
	assert.Equal(t, []interface{}{float64(4), float64(-4)}, inner[1].Search("terms", "studies.files.fid").Data())
}

func TestStageAppendBodyCarriesUpsert(t *testing.T) {
	entry := &structs.StageQueueStructure{
		Document: &indexes.StageDocument{Id: " 1:0000000100:A:C", Chromosome: "1", Start: 100},
		Record:   []byte{0x81, 0x01},
	}
	raw, err := stageAppendBody(7, 2, entry, true)
	require.NoError(t, err)
	parsed, err := gabs.ParseJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, "2", parsed.Path("script.params.fid").Data())
	assert.Equal(t, true, parsed.Path("script.params.addToSet").Data())
	assert.Equal(t, base64.StdEncoding.EncodeToString(entry.Record), parsed.Path("script.params.record").Data())

	upsert := &indexes.StageDocument{}
	require.NoError(t, json.Unmarshal(parsed.Path("upsert").Bytes(), upsert))
	assert.Equal(t, 7, upsert.StudyId)
	assert.Equal(t, []int{2}, upsert.FileIds)
	assert.Equal(t, [][]byte{entry.Record}, upsert.Files[2])

	// the template document is left untouched
	assert.Nil(t, entry.Document.Files)
}

func TestBulkWorkers(t *testing.T) {
	assert.Equal(t, 1, bulkWorkers(0))
	assert.Equal(t, 10, bulkWorkers(10000))
}

func TestToMap(t *testing.T) {
	m, err := toMap(struct {
		Version int64 `json:"version"`
	}{Version: 5})
	require.NoError(t, err)
	assert.Equal(t, float64(5), m["version"])
}

func TestConditionalBulkBodyGuardsReplacements(t *testing.T) {
	writes := []conditionalWrite{
		{upsert: &repositories.VariantUpsert{Id: "new"}, doc: &indexes.VariantDocument{Id: "new", Chromosome: "1", Start: 10}},
		{
			upsert:   &repositories.VariantUpsert{Id: "old"},
			doc:      &indexes.VariantDocument{Id: "old", Chromosome: "1", Start: 20},
			existing: &versionedVariant{seqNo: 7, primaryTerm: 2},
		},
	}
	body, err := conditionalBulkBody("variants", writes)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(body.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	create, err := gabs.ParseJSON([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "new", create.Path("create._id").Data())
	assert.Equal(t, "variants", create.Path("create._index").Data())
	assert.Nil(t, create.Path("create.if_seq_no").Data())

	index, err := gabs.ParseJSON([]byte(lines[2]))
	require.NoError(t, err)
	assert.Equal(t, "old", index.Path("index._id").Data())
	assert.Equal(t, float64(7), index.Path("index.if_seq_no").Data())
	assert.Equal(t, float64(2), index.Path("index.if_primary_term").Data())

	doc, err := gabs.ParseJSON([]byte(lines[3]))
	require.NoError(t, err)
	assert.Equal(t, float64(20), doc.Path("start").Data())
}

func TestBulkOutcomeRetriesConflicts(t *testing.T) {
	writes := []conditionalWrite{
		{upsert: &repositories.VariantUpsert{Id: "a"}},
		{upsert: &repositories.VariantUpsert{Id: "b"}},
		{upsert: &repositories.VariantUpsert{Id: "c"}},
	}
	parsed, err := gabs.ParseJSON([]byte(`{"errors":true,"items":[
		{"create":{"_id":"a","status":201,"result":"created"}},
		{"create":{"_id":"b","status":409,"error":{"type":"version_conflict_engine_exception"}}},
		{"index":{"_id":"c","status":200,"result":"updated"}}]}`))
	require.NoError(t, err)

	outcome, err := readBulkOutcome(parsed, writes)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.created)
	assert.Equal(t, 1, outcome.updated)
	require.Len(t, outcome.conflicted, 1)
	assert.Equal(t, "b", outcome.conflicted[0].Id)

	parsed, err = gabs.ParseJSON([]byte(`{"errors":true,"items":[
		{"create":{"_id":"a","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad start"}}},
		{"create":{"_id":"b","status":201}},
		{"create":{"_id":"c","status":201}}]}`))
	require.NoError(t, err)
	_, err = readBulkOutcome(parsed, writes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad start")

	_, err = readBulkOutcome(parsed, writes[:1])
	assert.Error(t, err)
}
