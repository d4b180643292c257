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

// Package storage defines the key-value backend contract that
// zarr arrays persist their chunks and metadata into, plus the
// directory-based and in-memory implementations.
package storage

import (
	"context"
)

// Store is the backend for one array path. Keys are flat strings:
// chunk keys like "0.0" plus the metadata document key.
//
// A missing key is not an error: Get reports absence through its
// second return value, and Delete of a missing key is a no-op.
//
// Implementations must be safe for concurrent use; the chunk
// pipeline issues Get/Put/Delete calls from multiple goroutines.
type Store interface {
	// Get returns the value stored under key, or ok=false
	// if the key has never been written.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Put stores data under key, overwriting any previous value.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key; deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)
	// List returns every key currently stored, in no
	// particular order.
	List(ctx context.Context) ([]string, error)
	// Concurrency is the suggested number of simultaneous
	// in-flight operations against this backend. The chunk
	// pipeline uses it as its queue capacity.
	Concurrency() int
}

// Sizer is implemented by stores that can report the total
// number of stored payload bytes cheaply.
type Sizer interface {
	// StoredSize returns the sum of the sizes of all values.
	StoredSize(ctx context.Context) (int64, error)
}

// StoredSize returns the total stored bytes for s, either via
// the Sizer fast path or by listing and fetching every key.
func StoredSize(ctx context.Context, s Store) (int64, error) {
	if sz, ok := s.(Sizer); ok {
		return sz.StoredSize(ctx)
	}
	keys, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		data, ok, err := s.Get(ctx, k)
		if err != nil {
			return 0, err
		}
		if ok {
			total += int64(len(data))
		}
	}
	return total, nil
}

// IsEmpty reports whether s holds no keys at all. Array creation
// uses this to refuse overwriting a populated path.
func IsEmpty(ctx context.Context, s Store) (bool, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	return len(keys) == 0, nil
}
