package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gohan/variantstore/models/indexes"
	"gohan/variantstore/repositories"

	"github.com/Jeffail/gabs"
	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// versionedVariant is a stored document with the sequence numbers used to
// detect concurrent writers
type versionedVariant struct {
	doc         *indexes.VariantDocument
	seqNo       int64
	primaryTerm int64
}

func (s *Store) GetVariants(ctx context.Context, ids []string) (map[string]*indexes.VariantDocument, error) {
	found, err := s.mget(ctx, ids)
	if err != nil {
		return nil, err
	}
	docs := make(map[string]*indexes.VariantDocument, len(found))
	for id, v := range found {
		docs[id] = v.doc
	}
	return docs, nil
}

func (s *Store) mget(ctx context.Context, ids []string) (map[string]*versionedVariant, error) {
	found := make(map[string]*versionedVariant, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	body, err := encode(map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, err
	}
	res, err := s.es.Mget(body,
		s.es.Mget.WithContext(ctx),
		s.es.Mget.WithIndex(s.variantsIndex()),
	)
	parsed, err := s.parse(res, err, "getting variants")
	if err != nil {
		return nil, err
	}
	docs, _ := parsed.Path("docs").Children()
	for _, d := range docs {
		if ok, _ := d.Path("found").Data().(bool); !ok {
			continue
		}
		v, err := versionedFromHit(d)
		if err != nil {
			return nil, err
		}
		found[v.doc.Id] = v
	}
	return found, nil
}

func (s *Store) FindVariants(ctx context.Context, q repositories.VariantQuery, fn func(*indexes.VariantDocument) error) error {
	return s.search(ctx, s.variantsIndex(), variantQuery(q), "", 0, func(hit *gabs.Container) error {
		doc := &indexes.VariantDocument{}
		if err := decodeSource(hit, doc); err != nil {
			return errors.Wrap(err, "decoding variant")
		}
		// file ids are matched per study on the client side
		if !q.Matches(doc) {
			return nil
		}
		return fn(doc)
	})
}

func (s *Store) CountVariants(ctx context.Context, q repositories.VariantQuery) (int64, error) {
	return s.count(ctx, s.variantsIndex(), variantQuery(q))
}

func (s *Store) UpsertVariants(ctx context.Context, upserts []*repositories.VariantUpsert) (*repositories.UpsertResult, error) {
	result := &repositories.UpsertResult{}
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	pending := upserts
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > maxConflictRetry {
			return result, errors.Errorf("writing variants: %d documents still conflicting after %d attempts", len(pending), attempt)
		}
		if attempt > 0 {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return result, errors.Wrap(ctx.Err(), "writing variants")
			}
			time.Sleep(wait)
		}

		ids := make([]string, len(pending))
		for i, u := range pending {
			ids[i] = u.Id
		}
		current, err := s.mget(ctx, ids)
		if err != nil {
			return result, err
		}

		now := time.Now()
		writes := make([]conditionalWrite, 0, len(pending))
		for _, u := range pending {
			existing := current[u.Id]
			var existingDoc *indexes.VariantDocument
			if existing != nil {
				existingDoc = existing.doc
			}
			doc, err := u.Apply(existingDoc)
			if err != nil {
				return result, errors.Wrapf(err, "variant %s", u.Id)
			}
			if doc == nil {
				continue
			}
			doc.Id = u.Id
			doc.UpdatedTime = now
			if existingDoc == nil {
				doc.CreatedTime = now
			} else {
				doc.CreatedTime = existingDoc.CreatedTime
			}
			writes = append(writes, conditionalWrite{upsert: u, doc: doc, existing: existing})
		}

		var conflicted []*repositories.VariantUpsert
		for from := 0; from < len(writes); from += s.bulkCap {
			to := from + s.bulkCap
			if to > len(writes) {
				to = len(writes)
			}
			outcome, err := s.conditionalBulk(ctx, writes[from:to])
			if err != nil {
				return result, errors.Wrap(err, "writing variants")
			}
			result.Created += outcome.created
			result.Updated += outcome.updated
			conflicted = append(conflicted, outcome.conflicted...)
		}
		result.Retries += len(conflicted)
		pending = conflicted
	}
	return result, s.refresh(ctx, s.variantsIndex())
}

// conditionalWrite is a document to store, created when it did not exist and
// replaced only if nobody wrote it since it was read otherwise
type conditionalWrite struct {
	upsert   *repositories.VariantUpsert
	doc      *indexes.VariantDocument
	existing *versionedVariant
}

type bulkOutcome struct {
	created    int
	updated    int
	conflicted []*repositories.VariantUpsert
}

func (s *Store) conditionalBulk(ctx context.Context, writes []conditionalWrite) (*bulkOutcome, error) {
	body, err := conditionalBulkBody(s.variantsIndex(), writes)
	if err != nil {
		return nil, err
	}
	res, err := s.es.Bulk(body,
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithIndex(s.variantsIndex()),
	)
	parsed, err := s.parse(res, err, "bulk writing variants")
	if err != nil {
		return nil, err
	}
	return readBulkOutcome(parsed, writes)
}

// conditionalBulkBody writes the bulk ndjson of writes: a create action for
// new documents, an index action guarded by the sequence numbers otherwise
func conditionalBulkBody(index string, writes []conditionalWrite) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, w := range writes {
		meta := map[string]interface{}{"_index": index, "_id": w.upsert.Id}
		action := "create"
		if w.existing != nil {
			action = "index"
			meta["if_seq_no"] = w.existing.seqNo
			meta["if_primary_term"] = w.existing.primaryTerm
		}
		if err := enc.Encode(map[string]interface{}{action: meta}); err != nil {
			return nil, errors.Wrap(err, "encoding bulk action")
		}
		if err := enc.Encode(w.doc); err != nil {
			return nil, errors.Wrapf(err, "encoding variant %s", w.upsert.Id)
		}
	}
	return &buf, nil
}

// readBulkOutcome matches the bulk response items, in request order, with
// writes. Version conflicts are handed back to be retried.
func readBulkOutcome(parsed *gabs.Container, writes []conditionalWrite) (*bulkOutcome, error) {
	items, _ := parsed.Path("items").Children()
	if len(items) != len(writes) {
		return nil, errors.Errorf("bulk response holds %d items for %d writes", len(items), len(writes))
	}
	outcome := &bulkOutcome{}
	var failures *multierror.Error
	for i, item := range items {
		actions, _ := item.ChildrenMap()
		for action, r := range actions {
			status, _ := r.Path("status").Data().(float64)
			switch {
			case status == http.StatusConflict:
				outcome.conflicted = append(outcome.conflicted, writes[i].upsert)
			case status >= 300:
				reason, _ := r.Path("error.reason").Data().(string)
				failures = multierror.Append(failures, errors.Errorf("%s %s: [%d] %s", action, writes[i].upsert.Id, int(status), reason))
			case action == "create":
				outcome.created++
			default:
				outcome.updated++
			}
		}
	}
	return outcome, failures.ErrorOrNil()
}

func versionedFromHit(hit *gabs.Container) (*versionedVariant, error) {
	doc := &indexes.VariantDocument{}
	if err := decodeSource(hit, doc); err != nil {
		return nil, errors.Wrap(err, "decoding variant")
	}
	seqNo, _ := hit.Path("_seq_no").Data().(float64)
	primaryTerm, _ := hit.Path("_primary_term").Data().(float64)
	return &versionedVariant{doc: doc, seqNo: int64(seqNo), primaryTerm: int64(primaryTerm)}, nil
}
