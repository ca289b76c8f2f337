package models

import (
	"sort"
	"time"

	"gohan/variantstore/models/constants"
	bs "gohan/variantstore/models/constants/batch-status"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Attribute keys of the study bag
const (
	AttrDefaultGenotype = "defaultGenotype"
	AttrMergeMode       = "mergeMode"
	AttrStudyType       = "studyType"
	AttrLoadedGenotypes = "loadedGenotypes"
	AttrExtraFields     = "extraFields"
)

// StudyConfiguration is the single source of truth for the load progress of a study
type StudyConfiguration struct {
	StudyId   int    `json:"studyId" msgpack:"studyId"`
	StudyName string `json:"studyName" msgpack:"studyName"`

	FileIds   map[string]int `json:"fileIds" msgpack:"fileIds"`
	SampleIds map[string]int `json:"sampleIds" msgpack:"sampleIds"`
	CohortIds map[string]int `json:"cohortIds" msgpack:"cohortIds"`
	Cohorts   map[int][]int  `json:"cohorts" msgpack:"cohorts"`

	IndexedFiles   []int                 `json:"indexedFiles" msgpack:"indexedFiles"`
	SamplesInFiles map[int][]int         `json:"samplesInFiles" msgpack:"samplesInFiles"`
	FileMetadata   map[int]*FileMetadata `json:"fileMetadata" msgpack:"fileMetadata"`

	Batches    []*BatchFileOperation  `json:"batches" msgpack:"batches"`
	Attributes map[string]interface{} `json:"attributes" msgpack:"attributes"`

	// strictly increasing on every write, used for optimistic locking
	Version int64 `json:"version" msgpack:"version"`
}

type FileMetadata struct {
	Path              string         `json:"path" msgpack:"path"`
	Staged            bool           `json:"staged" msgpack:"staged"`
	NumVariants       int64          `json:"numVariants" msgpack:"numVariants"`
	VariantTypeCounts map[string]int `json:"variantTypeCounts" msgpack:"variantTypeCounts"`
	ChromosomeCounts  map[string]int `json:"chromosomeCounts" msgpack:"chromosomeCounts"`
}

// StudyAttributes is the typed view of StudyConfiguration.Attributes
type StudyAttributes struct {
	DefaultGenotype string   `mapstructure:"defaultGenotype"`
	MergeMode       string   `mapstructure:"mergeMode"`
	StudyType       string   `mapstructure:"studyType"`
	LoadedGenotypes []string `mapstructure:"loadedGenotypes"`
	ExtraFields     []string `mapstructure:"extraFields"`
}

type BatchFileOperation struct {
	Id        uuid.UUID                `json:"id" msgpack:"id"`
	Operation constants.OperationName  `json:"operationName" msgpack:"operationName"`
	FileIds   []int                    `json:"fileIds" msgpack:"fileIds"`
	Timestamp int64                    `json:"timestamp" msgpack:"timestamp"`
	Status    []BatchFileOperationStep `json:"status" msgpack:"status"`
}

type BatchFileOperationStep struct {
	Date   time.Time             `json:"date" msgpack:"date"`
	Status constants.BatchStatus `json:"status" msgpack:"status"`
}

func NewStudyConfiguration(studyId int, studyName string) *StudyConfiguration {
	return &StudyConfiguration{
		StudyId:        studyId,
		StudyName:      studyName,
		FileIds:        map[string]int{},
		SampleIds:      map[string]int{},
		CohortIds:      map[string]int{},
		Cohorts:        map[int][]int{},
		IndexedFiles:   []int{},
		SamplesInFiles: map[int][]int{},
		FileMetadata:   map[int]*FileMetadata{},
		Batches:        []*BatchFileOperation{},
		Attributes:     map[string]interface{}{},
	}
}

// EnsureMaps makes a decoded configuration safe to mutate
func (sc *StudyConfiguration) EnsureMaps() {
	if sc.FileIds == nil {
		sc.FileIds = map[string]int{}
	}
	if sc.SampleIds == nil {
		sc.SampleIds = map[string]int{}
	}
	if sc.CohortIds == nil {
		sc.CohortIds = map[string]int{}
	}
	if sc.Cohorts == nil {
		sc.Cohorts = map[int][]int{}
	}
	if sc.SamplesInFiles == nil {
		sc.SamplesInFiles = map[int][]int{}
	}
	if sc.FileMetadata == nil {
		sc.FileMetadata = map[int]*FileMetadata{}
	}
	if sc.Attributes == nil {
		sc.Attributes = map[string]interface{}{}
	}
}

func (sc *StudyConfiguration) GetAttributes() (StudyAttributes, error) {
	var attrs StudyAttributes
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &attrs,
	})
	if err != nil {
		return attrs, err
	}
	if err := decoder.Decode(sc.Attributes); err != nil {
		return attrs, errors.Wrapf(err, "invalid attributes for study %d", sc.StudyId)
	}
	return attrs, nil
}

func (sc *StudyConfiguration) IsIndexed(fileId int) bool {
	for _, f := range sc.IndexedFiles {
		if f == fileId {
			return true
		}
	}
	return false
}

// IndexedSamples returns the ids of every sample in an indexed file
func (sc *StudyConfiguration) IndexedSamples() map[int]bool {
	samples := map[int]bool{}
	for _, f := range sc.IndexedFiles {
		for _, s := range sc.SamplesInFiles[f] {
			samples[s] = true
		}
	}
	return samples
}

// SampleNames is the inverse of SampleIds
func (sc *StudyConfiguration) SampleNames() map[int]string {
	names := make(map[int]string, len(sc.SampleIds))
	for name, id := range sc.SampleIds {
		names[id] = name
	}
	return names
}

func (sc *StudyConfiguration) FileName(fileId int) string {
	for name, id := range sc.FileIds {
		if id == fileId {
			return name
		}
	}
	return ""
}

func nextId(ids map[string]int) int {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// file ids start at 1, their negation marks overlapping contributions
func (sc *StudyConfiguration) NextFileId() int { return nextId(sc.FileIds) }

// sample ids start at 0 and are the indexes of the genotype blocks
func (sc *StudyConfiguration) NextSampleId() int {
	if len(sc.SampleIds) == 0 {
		return 0
	}
	return nextId(sc.SampleIds)
}

// MarkIndexed appends the files to IndexedFiles, keeping the load order
func (sc *StudyConfiguration) MarkIndexed(fileIds ...int) {
	for _, f := range fileIds {
		if !sc.IsIndexed(f) {
			sc.IndexedFiles = append(sc.IndexedFiles, f)
		}
	}
}

// FindBatch returns the most recent operation with the given name and exact file set
func (sc *StudyConfiguration) FindBatch(op constants.OperationName, fileIds []int) *BatchFileOperation {
	for i := len(sc.Batches) - 1; i >= 0; i-- {
		b := sc.Batches[i]
		if b.Operation == op && SameFiles(b.FileIds, fileIds) {
			return b
		}
	}
	return nil
}

func NewBatchFileOperation(op constants.OperationName, fileIds []int) *BatchFileOperation {
	files := append([]int(nil), fileIds...)
	sort.Ints(files)
	return &BatchFileOperation{
		Id:        uuid.New(),
		Operation: op,
		FileIds:   files,
		Timestamp: time.Now().UnixMilli(),
		Status:    []BatchFileOperationStep{},
	}
}

func (b *BatchFileOperation) CurrentStatus() constants.BatchStatus {
	if len(b.Status) == 0 {
		return bs.NONE
	}
	return b.Status[len(b.Status)-1].Status
}

// AddStatus appends a step to the history, rejecting illegal transitions
func (b *BatchFileOperation) AddStatus(status constants.BatchStatus) error {
	current := b.CurrentStatus()
	if !bs.CanTransition(current, status) {
		return errors.Errorf("illegal transition %s -> %s for operation %s over files %v",
			current, status, b.Operation, b.FileIds)
	}
	b.Status = append(b.Status, BatchFileOperationStep{Date: time.Now(), Status: status})
	return nil
}

// IsResume tells whether the operation has been started more than once
func (b *BatchFileOperation) IsResume() bool {
	running := 0
	for _, s := range b.Status {
		if s.Status == bs.RUNNING {
			running++
		}
	}
	return running > 1
}

func (b *BatchFileOperation) Touches(fileIds []int) bool {
	for _, f := range fileIds {
		for _, g := range b.FileIds {
			if f == g {
				return true
			}
		}
	}
	return false
}

func SameFiles(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]int(nil), a...)
	y := append([]int(nil), b...)
	sort.Ints(x)
	sort.Ints(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
