// Copyright 2026 Zgrid, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tmpPrefix = ".tmp-"

// DirStore stores each key as one file inside a root directory.
// Writes go to a temporary file first and are renamed into place,
// so a chunk is always either its old bytes or its new bytes,
// never a partial mix.
type DirStore struct {
	root string

	// Log, if non-nil, receives diagnostic output
	// from storage operations.
	Log func(f string, args ...interface{})

	// Parallel overrides the default concurrency hint
	// when set to a positive value.
	Parallel int
}

var _ Store = &DirStore{}
var _ Sizer = &DirStore{}

// NewDirStore opens (creating if necessary) a DirStore
// rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &DirStore{root: dir}, nil
}

// Root returns the root directory of the store.
func (d *DirStore) Root() string { return d.root }

func (d *DirStore) logf(f string, args ...interface{}) {
	if d.Log != nil {
		d.Log(f, args...)
	}
}

func (d *DirStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.HasPrefix(key, tmpPrefix) {
		return "", fmt.Errorf("storage: bad key %q", key)
	}
	return filepath.Join(d.root, key), nil
}

// Get implements Store.Get.
func (d *DirStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p, err := d.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store.Put. The data is written to a uniquely
// named temporary file, synced, and renamed over the key.
func (d *DirStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.path(key)
	if err != nil {
		return err
	}
	tmp := filepath.Join(d.root, tmpPrefix+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = datasync(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	d.logf("put %s (%d bytes)", key, len(data))
	return nil
}

// Delete implements Store.Delete.
func (d *DirStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		d.logf("delete %s", key)
	}
	return nil
}

// Has implements Store.Has.
func (d *DirStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List implements Store.List. Leftover temporary files from
// interrupted writes are not listed.
func (d *DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

// Concurrency implements Store.Concurrency.
func (d *DirStore) Concurrency() int {
	if d.Parallel > 0 {
		return d.Parallel
	}
	return 50
}

// StoredSize implements Sizer.
func (d *DirStore) StoredSize(ctx context.Context) (int64, error) {
	keys, err := d.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		info, err := os.Stat(filepath.Join(d.root, k))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
