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

package zarr

import (
	"context"
	"fmt"

	"github.com/zgrid/zarr/storage"
)

// Masked is a view of an Array whose element type reserves one
// sentinel value to mean "no data". The sentinel is translated
// at the access boundary: storing "missing" writes the sentinel,
// reading the sentinel reports missing. The sentinel itself is
// never a valid data value.
//
// The underlying buffers keep their plain representation; the
// view adds no per-element storage.
type Masked[T Scalar] struct {
	arr      *Array[T]
	sentinel T
}

// CreateMasked creates an array whose fill value is the missing
// sentinel, so untouched elements read back as missing and
// all-missing chunks are never stored.
func CreateMasked[T Scalar](ctx context.Context, st storage.Store, def Definition[T], sentinel T) (*Masked[T], error) {
	def.Fill = &sentinel
	arr, err := Create(ctx, st, def)
	if err != nil {
		return nil, err
	}
	return &Masked[T]{arr: arr, sentinel: sentinel}, nil
}

// AsMasked wraps an existing array handle with sentinel
// translation. Typically sentinel equals the array's fill
// value.
func AsMasked[T Scalar](a *Array[T], sentinel T) *Masked[T] {
	return &Masked[T]{arr: a, sentinel: sentinel}
}

// Array returns the underlying untranslated handle.
func (m *Masked[T]) Array() *Array[T] { return m.arr }

// Sentinel returns the reserved missing value.
func (m *Masked[T]) Sentinel() T { return m.sentinel }

func (m *Masked[T]) isSentinel(v T) bool { return eq(v, m.sentinel) }

// Get reads one element; ok=false means the element is missing.
func (m *Masked[T]) Get(ctx context.Context, coord ...int) (v T, ok bool, err error) {
	v, err = m.arr.Get(ctx, coord...)
	if err != nil {
		return v, false, err
	}
	if m.isSentinel(v) {
		var zero T
		return zero, false, nil
	}
	return v, true, nil
}

// Set writes one element. The sentinel itself is rejected;
// use SetMissing to clear an element.
func (m *Masked[T]) Set(ctx context.Context, v T, coord ...int) error {
	if m.isSentinel(v) {
		return fmt.Errorf("%w: %v is the missing sentinel", ErrInvalidArgument, v)
	}
	return m.arr.Set(ctx, v, coord...)
}

// SetMissing marks one element as missing.
func (m *Masked[T]) SetMissing(ctx context.Context, coord ...int) error {
	return m.arr.Set(ctx, m.sentinel, coord...)
}

// Read fills dst with the elements of region and valid with
// their presence: valid[i]=false means dst[i] is missing (and
// is left as the zero value). dst and valid must both hold
// region.Size() elements.
func (m *Masked[T]) Read(ctx context.Context, dst []T, valid []bool, region Region) error {
	if len(valid) != len(dst) {
		panic(fmt.Sprintf("zarr: %d validity flags for %d elements", len(valid), len(dst)))
	}
	if err := m.arr.Read(ctx, dst, region); err != nil {
		return err
	}
	var zero T
	for i := range dst {
		if m.isSentinel(dst[i]) {
			dst[i] = zero
			valid[i] = false
		} else {
			valid[i] = true
		}
	}
	return nil
}

// Write stores the elements of src into region; elements with
// valid[i]=false are stored as missing and their src value is
// ignored. A valid element equal to the sentinel is rejected.
func (m *Masked[T]) Write(ctx context.Context, src []T, valid []bool, region Region) error {
	if len(valid) != len(src) {
		panic(fmt.Sprintf("zarr: %d validity flags for %d elements", len(valid), len(src)))
	}
	out := make([]T, len(src))
	for i := range src {
		if !valid[i] {
			out[i] = m.sentinel
			continue
		}
		if m.isSentinel(src[i]) {
			return fmt.Errorf("%w: element %d is the missing sentinel %v",
				ErrInvalidArgument, i, m.sentinel)
		}
		out[i] = src[i]
	}
	return m.arr.Write(ctx, out, region)
}
