package store

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore keeps values in a bbolt file, one bucket per namespace.
type BoltStore struct {
	dbh    *bbolt.DB
	bucket []byte
}

// NewBoltStore opens the bbolt file and makes sure the namespace bucket exists.
func NewBoltStore(filename, namespace string) (*BoltStore, error) {
	dbh, err := bbolt.Open(filename, 0o644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt store: %w", err)
	}
	err = dbh.Update(func(tx *bbolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists([]byte(namespace))
		if err2 != nil {
			return fmt.Errorf("create bucket: %w", err2)
		}
		return nil
	})
	if err != nil {
		dbh.Close()
		return nil, err
	}
	return &BoltStore{dbh: dbh, bucket: []byte(namespace)}, nil
}

func (b *BoltStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.dbh.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(b.bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		// data is only valid for the life of the transaction
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (b *BoltStore) Set(key, value string) error {
	return b.dbh.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), []byte(value))
	})
}

func (b *BoltStore) Remove(keys ...string) error {
	return b.dbh.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(b.bucket)
		for _, key := range keys {
			if err := bkt.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := b.dbh.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (b *BoltStore) Close() error {
	if b.dbh == nil {
		return nil
	}
	return b.dbh.Close()
}
