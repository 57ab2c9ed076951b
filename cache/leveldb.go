// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	dataPrefix     = "d:"
	metadataPrefix = "m:"
)

// LevelDB is a Backend storing entries in a goleveldb database. Data
// is stored under "d:<key>" and metadata under "m:<key>", written
// together in one batch.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if needed) the database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("reqcache/cache: open leveldb %s: %w", path, err)
	}
	if err = TagDir(path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

func (l *LevelDB) LoadMetadata(id Identity) (*Metadata, error) {
	b, err := l.get(metadataPrefix, id)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(b)
}

func (l *LevelDB) LoadData(id Identity) ([]byte, error) {
	return l.get(dataPrefix, id)
}

func (l *LevelDB) get(prefix string, id Identity) ([]byte, error) {
	key := id.Key()
	b, err := l.db.Get([]byte(prefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("reqcache/cache: %s%s: %w", prefix, key, fs.ErrNotExist)
	}
	return b, err
}

func (l *LevelDB) Save(id Identity, data []byte, md *Metadata) error {
	b, err := encodeMetadata(md)
	if err != nil {
		return err
	}
	key := id.Key()
	batch := new(leveldb.Batch)
	batch.Put([]byte(dataPrefix+key), data)
	batch.Put([]byte(metadataPrefix+key), b)
	return l.db.Write(batch, nil)
}

func (l *LevelDB) Remove(id Identity) error {
	key := id.Key()
	batch := new(leveldb.Batch)
	batch.Delete([]byte(dataPrefix + key))
	batch.Delete([]byte(metadataPrefix + key))
	return l.db.Write(batch, nil)
}

// Clear deletes every entry.
func (l *LevelDB) Clear() error {
	batch := new(leveldb.Batch)
	for _, prefix := range []string{dataPrefix, metadataPrefix} {
		it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for it.Next() {
			batch.Delete(append([]byte{}, it.Key()...))
		}
		it.Release()
		if err := it.Error(); err != nil {
			return err
		}
	}
	return l.db.Write(batch, nil)
}

// Size returns the total size of the stored data and metadata values.
func (l *LevelDB) Size() (int64, error) {
	var total int64
	for _, prefix := range []string{dataPrefix, metadataPrefix} {
		it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for it.Next() {
			total += int64(len(it.Value()))
		}
		it.Release()
		if err := it.Error(); err != nil {
			return 0, err
		}
	}
	return total, nil
}
