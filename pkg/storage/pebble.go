package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore persists groups under a "group:key" schema so a whole group can
// be read back with one prefix scan.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func storeKey(group, key string) []byte {
	return []byte(group + ":" + key)
}

func groupPrefix(group string) []byte {
	return []byte(group + ":")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func (s *PebbleStore) Get(_ context.Context, group, key string, out any) (bool, error) {
	val, closer, err := s.db.Get(storeKey(group, key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", group, key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", group, key, err)
	}
	return true, nil
}

func (s *PebbleStore) Set(_ context.Context, group, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", group, key, err)
	}
	if err := s.db.Set(storeKey(group, key), data, pebble.Sync); err != nil {
		return fmt.Errorf("set %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *PebbleStore) Delete(_ context.Context, group, key string) error {
	if err := s.db.Delete(storeKey(group, key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *PebbleStore) ScanGroup(_ context.Context, group string, fn func(key string, value []byte) error) error {
	prefix := groupPrefix(group)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", group, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(prefix):])
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return iter.Error()
}

var _ Store = (*PebbleStore)(nil)
