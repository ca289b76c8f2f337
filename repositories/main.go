package repositories

import (
	"context"

	"gohan/variantstore/models"
	"gohan/variantstore/models/indexes"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/utils"
)

type (
	// StudyRepository persists study configurations. Writes are
	// conditional on the version read by the caller.
	StudyRepository interface {
		GetStudy(ctx context.Context, studyId int) (*models.StudyConfiguration, error)
		GetStudyByName(ctx context.Context, name string) (*models.StudyConfiguration, error)
		ListStudies(ctx context.Context) ([]*models.StudyConfiguration, error)
		// PutStudy stores sc if the stored version equals expectedVersion,
		// 0 meaning the study must not exist yet. Fails with ErrVersionConflict otherwise.
		PutStudy(ctx context.Context, sc *models.StudyConfiguration, expectedVersion int64) error
	}

	StageRepository interface {
		// AppendStage adds the record of fileId to the stage document of each
		// entry, creating the documents that do not exist. With addToSet a record
		// already present for the file is not added twice. Returns the number
		// of documents created.
		AppendStage(ctx context.Context, studyId int, fileId int, entries []*structs.StageQueueStructure, addToSet bool) (int, error)
		// ReadStage returns up to limit documents sorted by id, starting after the given id
		ReadStage(ctx context.Context, q StageQuery, after string, limit int) ([]*indexes.StageDocument, error)
		// MarkStageMerged drops the records of fileIds from the documents and
		// keeps their record count in the merged marks
		MarkStageMerged(ctx context.Context, studyId int, fileIds []int, docs []*indexes.StageDocument) error
		// CleanStage removes every trace of the files, deleting emptied documents
		CleanStage(ctx context.Context, studyId int, fileIds []int, chromosomes []string) (int64, error)
		CountStage(ctx context.Context, q StageQuery) (int64, error)
	}

	VariantRepository interface {
		GetVariants(ctx context.Context, ids []string) (map[string]*indexes.VariantDocument, error)
		// FindVariants calls fn on every matching document, sorted by id
		FindVariants(ctx context.Context, q VariantQuery, fn func(*indexes.VariantDocument) error) error
		CountVariants(ctx context.Context, q VariantQuery) (int64, error)
		// UpsertVariants applies a read-modify-write on each document. Apply
		// may be called more than once when a concurrent writer wins, the last
		// call is the one committed.
		UpsertVariants(ctx context.Context, upserts []*VariantUpsert) (*UpsertResult, error)
	}

	Store interface {
		StudyRepository
		StageRepository
		VariantRepository
		Close() error
	}

	VariantQuery struct {
		StudyId int
		// signed file ids, a negative id matches overlap contributions
		FileIds    []int
		Chromosome string
		// overlap range, 0 means unbounded
		Start int
		End   int
		Ids   []string
	}

	StageQuery struct {
		StudyId    int
		Chromosome string
		// documents holding a record or a merged mark of any of these files
		FileIds []int
	}

	VariantUpsert struct {
		Id string
		// Apply receives the stored document, nil if absent, and returns the
		// document to write. Returning nil leaves the store untouched.
		Apply func(existing *indexes.VariantDocument) (*indexes.VariantDocument, error)
	}

	UpsertResult struct {
		Created int
		Updated int
		Retries int
	}
)

// Matches tells whether a document satisfies the query
func (q VariantQuery) Matches(doc *indexes.VariantDocument) bool {
	if q.Chromosome != "" && doc.Chromosome != q.Chromosome {
		return false
	}
	if q.Start > 0 || q.End > 0 {
		start, end := q.Start, q.End
		if end == 0 {
			end = int(^uint(0) >> 1)
		}
		if !models.Overlap(doc.Chromosome, doc.Start, doc.End, doc.Chromosome, start, end) {
			return false
		}
	}
	if len(q.Ids) > 0 && !utils.StringInSlice(doc.Id, q.Ids) {
		return false
	}
	if q.StudyId == 0 && len(q.FileIds) == 0 {
		return true
	}
	for _, s := range doc.Studies {
		if q.StudyId != 0 && s.StudyId != q.StudyId {
			continue
		}
		if len(q.FileIds) == 0 {
			return true
		}
		for _, f := range s.Files {
			if containsInt(q.FileIds, f.FileId) {
				return true
			}
		}
	}
	return false
}

func (q StageQuery) Matches(doc *indexes.StageDocument) bool {
	if q.StudyId != 0 && doc.StudyId != q.StudyId {
		return false
	}
	if q.Chromosome != "" && doc.Chromosome != q.Chromosome {
		return false
	}
	if len(q.FileIds) == 0 {
		return true
	}
	for _, f := range q.FileIds {
		if doc.HasFile(f) {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
