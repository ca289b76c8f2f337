package badger

import (
	"context"
	"fmt"
	"os"
	"time"

	"gohan/variantstore/repositories"

	"github.com/cenkalti/backoff"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// number of documents written per transaction
	txnChunkSize     = 256
	maxConflictRetry = 20
)

// Store is the embedded implementation of repositories.Store
type Store struct {
	db     *badger.DB
	logger *logrus.Entry
}

var _ repositories.Store = (*Store)(nil)

// Open opens (or creates) the database at path. With inMemory the path is ignored.
func Open(path string, inMemory bool, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	entry := logger.WithField("component", "badger")
	opts.Logger = entry
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger store at %q", path)
	}
	return &Store{db: db, logger: entry}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, running it again when a
// concurrent transaction committed a conflicting write first
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) (int, error) {
	retries := 0
	b := backoff.WithContext(backoff.WithMaxRetries(conflictBackOff(), maxConflictRetry), ctx)
	err := backoff.Retry(func() error {
		txn := s.db.NewTransaction(true)
		defer txn.Discard()
		if err := fn(txn); err != nil {
			return backoff.Permanent(err)
		}
		err := txn.Commit()
		if errors.Is(err, badger.ErrConflict) {
			retries++
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, b)
	return retries, err
}

func conflictBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

func chunks(n int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += txnChunkSize {
		end := start + txnChunkSize
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
