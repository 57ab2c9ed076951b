// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultName is the namespace directory used by a Dir with no Name.
const DefaultName = "reqcache"

// TagFile is the name of the cache directory tag written into every
// Dir namespace.
const TagFile = "CACHEDIR.TAG"

const metadataSuffix = ".metadata"

const tagContent = "Signature: 8a477f597d28d172789f06886806bc55\n" +
	"# This file is a cache directory tag created by reqcache.\n" +
	"# For information about cache directory tags, see:\n" +
	"#\thttps://bford.info/cachedir/\n"

// A PathFilter rewrites the file name of a cache entry. Filters run in
// the order they are listed in Dir.Filters, each receiving the output
// of the previous one. The initial name is the identity's Key.
type PathFilter func(name string, id Identity) string

// Dir is a Backend storing each entry as two sibling files in a
// namespace directory. Its zero value stores entries under
// <user cache dir>/reqcache.
//
// The namespace directory is created on first save, together with a
// CACHEDIR.TAG file so that backup tools honoring the Cache Directory
// Tagging Specification skip it. Files are written to a temporary file
// and renamed into place, so readers never observe a partial entry.
type Dir struct {
	// Root is the parent of the namespace directory. If empty, the
	// user cache directory is used, falling back to the system
	// temporary directory.
	Root string

	// Name is the namespace directory name. If empty, DefaultName is
	// used.
	Name string

	// Filters optionally rewrite entry file names.
	Filters []PathFilter

	lock    sync.Mutex
	created bool
}

// Path returns the namespace directory.
func (d *Dir) Path() string {
	root := d.Root
	if root == "" {
		var err error
		root, err = os.UserCacheDir()
		if err != nil {
			root = os.TempDir()
		}
	}
	name := d.Name
	if name == "" {
		name = DefaultName
	}
	return filepath.Join(root, name)
}

// CacheFilePath returns the path of the data file for id.
func (d *Dir) CacheFilePath(id Identity) string {
	name := id.Key()
	for _, f := range d.Filters {
		name = f(name, id)
	}
	return filepath.Join(d.Path(), name)
}

// MetadataPath returns the path of the metadata file for id.
func (d *Dir) MetadataPath(id Identity) string {
	return d.CacheFilePath(id) + metadataSuffix
}

func (d *Dir) LoadMetadata(id Identity) (*Metadata, error) {
	b, err := os.ReadFile(d.MetadataPath(id))
	if err != nil {
		return nil, err
	}
	return decodeMetadata(b)
}

func (d *Dir) LoadData(id Identity) ([]byte, error) {
	return os.ReadFile(d.CacheFilePath(id))
}

// Save writes data and md for id. The data file is written before the
// metadata file, so an entry whose metadata is readable always has its
// data in place.
func (d *Dir) Save(id Identity, data []byte, md *Metadata) error {
	b, err := encodeMetadata(md)
	if err != nil {
		return err
	}
	if err = d.ensure(); err != nil {
		return err
	}
	if err = writeFileAtomic(d.CacheFilePath(id), data); err != nil {
		return err
	}
	return writeFileAtomic(d.MetadataPath(id), b)
}

// Remove deletes the entry for id. A missing entry is not an error.
func (d *Dir) Remove(id Identity) error {
	err1 := removeFile(d.MetadataPath(id))
	err2 := removeFile(d.CacheFilePath(id))
	return errors.Join(err1, err2)
}

// Clear deletes the whole namespace directory.
func (d *Dir) Clear() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.created = false
	return RemoveAll(d.Path())
}

// Size returns the total size of the files in the namespace directory.
func (d *Dir) Size() (int64, error) {
	return DirSize(d.Path())
}

func (d *Dir) ensure() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	path := d.Path()
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("reqcache/cache: create %s: %w", path, err)
	}
	if d.created {
		return nil
	}
	if err := TagDir(path); err != nil {
		return err
	}
	d.created = true
	return nil
}

// TagDir writes a CACHEDIR.TAG file into dir unless one exists.
func TagDir(dir string) error {
	tag := filepath.Join(dir, TagFile)
	if _, err := os.Stat(tag); err == nil {
		return nil
	}
	return writeFileAtomic(tag, []byte(tagContent))
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("reqcache/cache: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("reqcache/cache: write %s: %w", path, err)
	}
	return nil
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
