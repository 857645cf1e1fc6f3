// Package boltstore persists query cache entries in a bbolt file.
package boltstore

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fivesaside/touchline/querycache"
)

var bucketName = []byte("querycache")

type Store struct {
	db *bolt.DB
}

var _ querycache.Persister = (*Store)(nil) // interface compliance check

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bbolt db at %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating cache bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(key string, rec querycache.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "marshaling entry %s", key)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketName).Put([]byte(key), data); err != nil {
			return errors.Wrapf(err, "writing entry %s", key)
		}
		return nil
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (s *Store) Load() (map[string]querycache.Record, error) {
	result := make(map[string]querycache.Record)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var rec querycache.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "unmarshaling entry %s", k)
			}
			result[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
