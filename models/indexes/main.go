package indexes

import (
	"time"
)

// VariantDocument is the canonical, one per variant, document
type VariantDocument struct {
	Id         string          `json:"id" msgpack:"id"`
	Chromosome string          `json:"chromosome" msgpack:"chromosome"`
	Start      int             `json:"start" msgpack:"start"`
	End        int             `json:"end" msgpack:"end"`
	Reference  string          `json:"reference" msgpack:"reference"`
	Alternate  string          `json:"alternate" msgpack:"alternate"`
	Type       string          `json:"type" msgpack:"type"`
	Ids        []string        `json:"ids,omitempty" msgpack:"ids"`
	Studies    []StudyDocument `json:"studies" msgpack:"studies"`

	CreatedTime time.Time `json:"createdTime" msgpack:"createdTime"`
	UpdatedTime time.Time `json:"updatedTime" msgpack:"updatedTime"`
}

type StudyDocument struct {
	StudyId    int                 `json:"studyId" msgpack:"studyId"`
	Files      []FileDocument      `json:"files" msgpack:"files"`
	Alternates []AlternateDocument `json:"alternates,omitempty" msgpack:"alternates"`
	Genotypes  GenotypeBlock       `json:"gt" msgpack:"gt"`
}

// FileDocument holds the file scoped part of a study. A negative FileId
// means the file did not call this variant but an overlapping one.
type FileDocument struct {
	FileId      int                 `json:"fid" msgpack:"fid"`
	Call        string              `json:"call,omitempty" msgpack:"call"`
	Attributes  map[string]string   `json:"attrs,omitempty" msgpack:"attrs"`
	Src         []byte              `json:"src,omitempty" msgpack:"src"`
	ExtraFields map[string][]string `json:"extra,omitempty" msgpack:"extra"`
}

type AlternateDocument struct {
	Chromosome string `json:"chr" msgpack:"chr"`
	Start      int    `json:"start" msgpack:"start"`
	End        int    `json:"end" msgpack:"end"`
	Reference  string `json:"ref" msgpack:"ref"`
	Alternate  string `json:"alt" msgpack:"alt"`
	Type       string `json:"type" msgpack:"type"`
}

// GenotypeBlock stores the genotypes of a set of samples: every sample
// not listed in Exceptions has the Default genotype.
type GenotypeBlock struct {
	Default    string           `json:"def" msgpack:"def"`
	Exceptions map[string][]int `json:"ex,omitempty" msgpack:"ex"`
}

// StageDocument gathers, per file, the raw records staged for one variant of a study
type StageDocument struct {
	Id         string `json:"id" msgpack:"id"`
	StudyId    int    `json:"studyId" msgpack:"studyId"`
	Chromosome string `json:"chromosome" msgpack:"chromosome"`
	Start      int    `json:"start" msgpack:"start"`
	End        int    `json:"end" msgpack:"end"`
	Reference  string `json:"reference" msgpack:"reference"`
	Alternate  string `json:"alternate" msgpack:"alternate"`
	Type       string `json:"type" msgpack:"type"`

	// file id -> encoded StageRecords. More than one record means duplicates.
	Files map[int][][]byte `json:"files" msgpack:"files"`
	// file id -> number of records the file had when it was merged
	Merged map[int]int `json:"merged,omitempty" msgpack:"merged"`
	// indexed copy of the keys of Files, used for filtering
	FileIds []int `json:"fileIds" msgpack:"fileIds"`
}

// StageRecord is the file scoped conversion of one variant line
type StageRecord struct {
	Type        string              `msgpack:"type"`
	End         int                 `msgpack:"end"`
	Ids         []string            `msgpack:"ids"`
	Call        string              `msgpack:"call"`
	Attributes  map[string]string   `msgpack:"attrs"`
	Src         []byte              `msgpack:"src"`
	Alternates  []AlternateDocument `msgpack:"alts"`
	Genotypes   GenotypeBlock       `msgpack:"gt"`
	ExtraFields map[string][]string `msgpack:"extra"`
}

// IsMerged tells if the file was already folded into the canonical collection
func (s *StageDocument) IsMerged(fileId int) bool {
	_, ok := s.Merged[fileId]
	return ok
}

func (s *StageDocument) HasFile(fileId int) bool {
	_, ok := s.Files[fileId]
	return ok || s.IsMerged(fileId)
}

// Study returns the study document, nil when absent
func (d *VariantDocument) Study(studyId int) *StudyDocument {
	for i := range d.Studies {
		if d.Studies[i].StudyId == studyId {
			return &d.Studies[i]
		}
	}
	return nil
}

// File returns the file document with the given (signed) id
func (s *StudyDocument) File(fileId int) *FileDocument {
	for i := range s.Files {
		if s.Files[i].FileId == fileId {
			return &s.Files[i]
		}
	}
	return nil
}

// HasFile is true if the file contributed to the study either directly or as an overlap
func (s *StudyDocument) HasFile(fileId int) bool {
	return s.File(fileId) != nil || s.File(-fileId) != nil
}

var MAPPING_FIELDS_KEYWORD_IG256 = map[string]interface{}{
	"keyword": map[string]interface{}{
		"type":         "keyword",
		"ignore_above": 256,
	},
}
var MAPPING_TEXT = map[string]interface{}{"type": "text", "fields": MAPPING_FIELDS_KEYWORD_IG256}
var MAPPING_KEYWORD = map[string]interface{}{"type": "keyword"}
var MAPPING_LONG = map[string]interface{}{"type": "long"}
var MAPPING_INTEGER = map[string]interface{}{"type": "integer"}
var MAPPING_DATE = map[string]interface{}{"type": "date"}
var MAPPING_DISABLED = map[string]interface{}{"type": "object", "enabled": false}

var VARIANT_INDEX_MAPPING = map[string]interface{}{
	"properties": map[string]interface{}{
		"id":         MAPPING_KEYWORD,
		"chromosome": MAPPING_KEYWORD,
		"start":      MAPPING_LONG,
		"end":        MAPPING_LONG,
		"reference":  MAPPING_TEXT,
		"alternate":  MAPPING_TEXT,
		"type":       MAPPING_KEYWORD,
		"ids":        MAPPING_KEYWORD,
		"studies": map[string]interface{}{
			"type": "nested",
			"properties": map[string]interface{}{
				"studyId": MAPPING_INTEGER,
				"files": map[string]interface{}{
					"properties": map[string]interface{}{
						"fid":   MAPPING_INTEGER,
						"call":  MAPPING_KEYWORD,
						"attrs": MAPPING_DISABLED,
						"src":   map[string]interface{}{"type": "binary"},
						"extra": MAPPING_DISABLED,
					},
				},
				"alternates": MAPPING_DISABLED,
				"gt":         MAPPING_DISABLED,
			},
		},
		"createdTime": MAPPING_DATE,
		"updatedTime": MAPPING_DATE,
	},
}

var STAGE_INDEX_MAPPING = map[string]interface{}{
	"properties": map[string]interface{}{
		"id":         MAPPING_KEYWORD,
		"studyId":    MAPPING_INTEGER,
		"chromosome": MAPPING_KEYWORD,
		"start":      MAPPING_LONG,
		"end":        MAPPING_LONG,
		"reference":  MAPPING_KEYWORD,
		"alternate":  MAPPING_KEYWORD,
		"type":       MAPPING_KEYWORD,
		"files":      MAPPING_DISABLED,
		"merged":     MAPPING_DISABLED,
		"fileIds":    MAPPING_INTEGER,
	},
}

var STUDY_INDEX_MAPPING = map[string]interface{}{
	"properties": map[string]interface{}{
		"studyId":   MAPPING_INTEGER,
		"studyName": MAPPING_KEYWORD,
		"version":   MAPPING_LONG,
	},
	// everything else is opaque to the index
	"dynamic": false,
}
