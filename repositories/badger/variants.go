package badger

import (
	"context"
	"time"

	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func (s *Store) GetVariants(ctx context.Context, ids []string) (map[string]*indexes.VariantDocument, error) {
	docs := make(map[string]*indexes.VariantDocument, len(ids))
	err := s.view(func(txn *badger.Txn) error {
		for _, id := range ids {
			doc, err := readVariant(txn, id)
			if err != nil {
				return err
			}
			if doc != nil {
				docs[id] = doc
			}
		}
		return nil
	})
	return docs, err
}

func (s *Store) FindVariants(ctx context.Context, q repositories.VariantQuery, fn func(*indexes.VariantDocument) error) error {
	if len(q.Ids) > 0 {
		docs, err := s.GetVariants(ctx, q.Ids)
		if err != nil {
			return err
		}
		for _, id := range q.Ids {
			if doc, ok := docs[id]; ok && q.Matches(doc) {
				if err := fn(doc); err != nil {
					return err
				}
			}
		}
		return nil
	}

	prefix := []byte(variantPrefix)
	if q.Chromosome != "" {
		prefix = makeVariantChromosomePrefix(q.Chromosome)
	}
	return s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := txn.NewIterator(opts)
		defer iter.Close()

		// no document starting before start - span can reach start
		seek := prefix
		if q.Chromosome != "" && q.Start > 0 {
			span, err := readVariantSpan(txn, q.Chromosome)
			if err != nil {
				return err
			}
			from := q.Start - span
			if from < 0 {
				from = 0
			}
			seek = makeVariantPositionKey(q.Chromosome, from)
		}

		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc := &indexes.VariantDocument{}
			if err := iter.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, doc)
			}); err != nil {
				return err
			}
			// keys of a chromosome are sorted by start
			if q.Chromosome != "" && q.End > 0 && doc.Start > q.End {
				return nil
			}
			if !q.Matches(doc) {
				continue
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CountVariants(ctx context.Context, q repositories.VariantQuery) (int64, error) {
	var count int64
	err := s.FindVariants(ctx, q, func(*indexes.VariantDocument) error {
		count++
		return nil
	})
	return count, err
}

func (s *Store) UpsertVariants(ctx context.Context, upserts []*repositories.VariantUpsert) (*repositories.UpsertResult, error) {
	result := &repositories.UpsertResult{}
	for _, c := range chunks(len(upserts)) {
		chunk := upserts[c[0]:c[1]]
		var created, updated int
		retries, err := s.update(ctx, func(txn *badger.Txn) error {
			created, updated = 0, 0
			now := time.Now()
			spans := map[string]int{}
			for _, u := range chunk {
				existing, err := readVariant(txn, u.Id)
				if err != nil {
					return err
				}
				doc, err := u.Apply(existing)
				if err != nil {
					return errors.Wrapf(err, "variant %s", u.Id)
				}
				if doc == nil {
					continue
				}
				doc.Id = u.Id
				doc.UpdatedTime = now
				if existing == nil {
					doc.CreatedTime = now
					created++
				} else {
					doc.CreatedTime = existing.CreatedTime
					updated++
				}
				value, err := msgpack.Marshal(doc)
				if err != nil {
					return err
				}
				if err := txn.Set(makeVariantKey(u.Id), value); err != nil {
					return err
				}
				if span := doc.End - doc.Start; span > spans[doc.Chromosome] {
					spans[doc.Chromosome] = span
				}
			}
			return growVariantSpans(txn, spans)
		})
		result.Retries += retries
		if err != nil {
			return result, errors.Wrap(err, "writing variants")
		}
		result.Created += created
		result.Updated += updated
	}
	return result, nil
}

func readVariant(txn *badger.Txn, id string) (*indexes.VariantDocument, error) {
	item, err := txn.Get(makeVariantKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc := &indexes.VariantDocument{}
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, doc)
	}); err != nil {
		return nil, errors.Wrapf(err, "decoding variant %s", id)
	}
	return doc, nil
}

func readVariantSpan(txn *badger.Txn, chromosome string) (int, error) {
	item, err := txn.Get(makeVariantSpanKey(chromosome))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var span int
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &span)
	})
	return span, errors.Wrapf(err, "decoding span of chromosome %s", chromosome)
}

// growVariantSpans raises the stored span of the chromosomes to spans
func growVariantSpans(txn *badger.Txn, spans map[string]int) error {
	for chromosome, span := range spans {
		current, err := readVariantSpan(txn, chromosome)
		if err != nil {
			return err
		}
		if span <= current {
			continue
		}
		value, err := msgpack.Marshal(span)
		if err != nil {
			return err
		}
		if err := txn.Set(makeVariantSpanKey(chromosome), value); err != nil {
			return err
		}
	}
	return nil
}
