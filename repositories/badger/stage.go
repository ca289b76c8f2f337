package badger

import (
	"bytes"
	"context"
	"sort"

	"gohan/variantstore/models/indexes"
	"gohan/variantstore/models/ingest/structs"
	"gohan/variantstore/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func (s *Store) AppendStage(ctx context.Context, studyId int, fileId int, entries []*structs.StageQueueStructure, addToSet bool) (int, error) {
	created := 0
	for _, c := range chunks(len(entries)) {
		chunk := entries[c[0]:c[1]]
		chunkCreated := 0
		_, err := s.update(ctx, func(txn *badger.Txn) error {
			chunkCreated = 0
			for _, e := range chunk {
				key := makeStageKey(studyId, e.Document.Id)
				doc, err := readStage(txn, key)
				if err != nil {
					return err
				}
				if doc == nil {
					doc = newStageDocument(studyId, e.Document)
					chunkCreated++
				}
				appendRecord(doc, fileId, e.Record, addToSet)
				if err := writeStage(txn, key, doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return created, errors.Wrapf(err, "staging file %d", fileId)
		}
		created += chunkCreated
	}
	return created, nil
}

func (s *Store) ReadStage(ctx context.Context, q repositories.StageQuery, after string, limit int) ([]*indexes.StageDocument, error) {
	var docs []*indexes.StageDocument
	prefix := makeStagePrefix(q.StudyId)
	if q.Chromosome != "" {
		prefix = makeStageChromosomePrefix(q.StudyId, q.Chromosome)
	}
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := txn.NewIterator(opts)
		defer iter.Close()

		seek := prefix
		var afterKey []byte
		if after != "" {
			afterKey = makeStageKey(q.StudyId, after)
			seek = afterKey
		}
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if afterKey != nil && bytes.Equal(iter.Item().Key(), afterKey) {
				continue
			}
			doc := &indexes.StageDocument{}
			if err := iter.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, doc)
			}); err != nil {
				return err
			}
			if !q.Matches(doc) {
				continue
			}
			docs = append(docs, doc)
			if limit > 0 && len(docs) >= limit {
				return nil
			}
		}
		return nil
	})
	return docs, err
}

func (s *Store) MarkStageMerged(ctx context.Context, studyId int, fileIds []int, docs []*indexes.StageDocument) error {
	for _, c := range chunks(len(docs)) {
		chunk := docs[c[0]:c[1]]
		_, err := s.update(ctx, func(txn *badger.Txn) error {
			for _, d := range chunk {
				key := makeStageKey(studyId, d.Id)
				doc, err := readStage(txn, key)
				if err != nil {
					return err
				}
				if doc == nil {
					continue
				}
				markMerged(doc, fileIds)
				if err := writeStage(txn, key, doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "marking stage documents as merged")
		}
	}
	return nil
}

func (s *Store) CleanStage(ctx context.Context, studyId int, fileIds []int, chromosomes []string) (int64, error) {
	prefixes := [][]byte{makeStagePrefix(studyId)}
	if len(chromosomes) > 0 {
		prefixes = prefixes[:0]
		for _, chr := range chromosomes {
			prefixes = append(prefixes, makeStageChromosomePrefix(studyId, chr))
		}
	}

	var keys [][]byte
	err := s.view(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := txn.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				doc := &indexes.StageDocument{}
				if err := iter.Item().Value(func(val []byte) error {
					return msgpack.Unmarshal(val, doc)
				}); err != nil {
					iter.Close()
					return err
				}
				if (repositories.StageQuery{FileIds: fileIds}).Matches(doc) {
					keys = append(keys, iter.Item().KeyCopy(nil))
				}
			}
			iter.Close()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var cleaned int64
	for _, c := range chunks(len(keys)) {
		chunk := keys[c[0]:c[1]]
		_, err := s.update(ctx, func(txn *badger.Txn) error {
			for _, key := range chunk {
				doc, err := readStage(txn, key)
				if err != nil {
					return err
				}
				if doc == nil {
					continue
				}
				if removeFiles(doc, fileIds) {
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				if err := writeStage(txn, key, doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return cleaned, errors.Wrap(err, "cleaning stage")
		}
		cleaned += int64(len(chunk))
	}
	return cleaned, nil
}

func (s *Store) CountStage(ctx context.Context, q repositories.StageQuery) (int64, error) {
	var count int64
	after := ""
	for {
		docs, err := s.ReadStage(ctx, q, after, txnChunkSize)
		if err != nil {
			return 0, err
		}
		count += int64(len(docs))
		if len(docs) < txnChunkSize {
			return count, nil
		}
		after = docs[len(docs)-1].Id
	}
}

func readStage(txn *badger.Txn, key []byte) (*indexes.StageDocument, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc := &indexes.StageDocument{}
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, doc)
	}); err != nil {
		return nil, errors.Wrapf(err, "decoding stage document %s", key)
	}
	return doc, nil
}

func writeStage(txn *badger.Txn, key []byte, doc *indexes.StageDocument) error {
	value, err := msgpack.Marshal(doc)
	if err != nil {
		return err
	}
	return txn.Set(key, value)
}

func newStageDocument(studyId int, template *indexes.StageDocument) *indexes.StageDocument {
	doc := *template
	doc.StudyId = studyId
	doc.Files = map[int][][]byte{}
	doc.Merged = nil
	doc.FileIds = nil
	return &doc
}

func appendRecord(doc *indexes.StageDocument, fileId int, record []byte, addToSet bool) {
	if doc.Files == nil {
		doc.Files = map[int][][]byte{}
	}
	if addToSet {
		if doc.IsMerged(fileId) {
			return
		}
		for _, r := range doc.Files[fileId] {
			if bytes.Equal(r, record) {
				return
			}
		}
	}
	doc.Files[fileId] = append(doc.Files[fileId], record)
	addFileId(doc, fileId)
}

func addFileId(doc *indexes.StageDocument, fileId int) {
	for _, f := range doc.FileIds {
		if f == fileId {
			return
		}
	}
	doc.FileIds = append(doc.FileIds, fileId)
	sort.Ints(doc.FileIds)
}

func markMerged(doc *indexes.StageDocument, fileIds []int) {
	for _, f := range fileIds {
		records, ok := doc.Files[f]
		if !ok {
			continue
		}
		if doc.Merged == nil {
			doc.Merged = map[int]int{}
		}
		doc.Merged[f] = len(records)
		delete(doc.Files, f)
	}
}

// removeFiles drops every trace of the files, returns true if the document is left empty
func removeFiles(doc *indexes.StageDocument, fileIds []int) bool {
	for _, f := range fileIds {
		delete(doc.Files, f)
		delete(doc.Merged, f)
	}
	kept := doc.FileIds[:0]
	for _, f := range doc.FileIds {
		if _, ok := doc.Files[f]; ok {
			kept = append(kept, f)
		} else if _, ok := doc.Merged[f]; ok {
			kept = append(kept, f)
		}
	}
	doc.FileIds = kept
	return len(doc.Files) == 0 && len(doc.Merged) == 0
}
