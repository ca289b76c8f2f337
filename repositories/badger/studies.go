package badger

import (
	"context"
	"strconv"

	"gohan/variantstore/models"
	gerrors "gohan/variantstore/models/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func (s *Store) GetStudy(ctx context.Context, studyId int) (*models.StudyConfiguration, error) {
	var sc *models.StudyConfiguration
	err := s.view(func(txn *badger.Txn) error {
		var err error
		sc, err = readStudy(txn, studyId)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, errors.Wrapf(gerrors.ErrNotFound, "study %d", studyId)
	}
	return sc, nil
}

func (s *Store) GetStudyByName(ctx context.Context, name string) (*models.StudyConfiguration, error) {
	var sc *models.StudyConfiguration
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(makeStudyNameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var studyId int
		err = item.Value(func(val []byte) error {
			studyId, err = strconv.Atoi(string(val))
			return err
		})
		if err != nil {
			return err
		}
		sc, err = readStudy(txn, studyId)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, errors.Wrapf(gerrors.ErrNotFound, "study %q", name)
	}
	return sc, nil
}

func (s *Store) ListStudies(ctx context.Context) ([]*models.StudyConfiguration, error) {
	var studies []*models.StudyConfiguration
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(studyPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			sc := &models.StudyConfiguration{}
			if err := iter.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, sc)
			}); err != nil {
				return err
			}
			sc.EnsureMaps()
			studies = append(studies, sc)
		}
		return nil
	})
	return studies, err
}

func (s *Store) PutStudy(ctx context.Context, sc *models.StudyConfiguration, expectedVersion int64) error {
	value, err := msgpack.Marshal(sc)
	if err != nil {
		return errors.Wrapf(err, "encoding study %d", sc.StudyId)
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	current, err := readStudy(txn, sc.StudyId)
	if err != nil {
		return err
	}
	switch {
	case current == nil && expectedVersion != 0:
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d does not exist", sc.StudyId)
	case current != nil && current.Version != expectedVersion:
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d is at version %d, expected %d",
			sc.StudyId, current.Version, expectedVersion)
	}
	if current != nil && current.StudyName != sc.StudyName {
		if err := txn.Delete(makeStudyNameKey(current.StudyName)); err != nil {
			return err
		}
	}
	if err := txn.Set(makeStudyKey(sc.StudyId), value); err != nil {
		return err
	}
	if err := txn.Set(makeStudyNameKey(sc.StudyName), []byte(strconv.Itoa(sc.StudyId))); err != nil {
		return err
	}
	err = txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return errors.Wrapf(gerrors.ErrVersionConflict, "study %d was written concurrently", sc.StudyId)
	}
	return err
}

func readStudy(txn *badger.Txn, studyId int) (*models.StudyConfiguration, error) {
	item, err := txn.Get(makeStudyKey(studyId))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc := &models.StudyConfiguration{}
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, sc)
	}); err != nil {
		return nil, errors.Wrapf(err, "decoding study %d", studyId)
	}
	sc.EnsureMaps()
	return sc, nil
}
