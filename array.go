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

// Package zarr implements chunked, compressed, random-access
// storage for N-dimensional arrays.
//
// A logical array is partitioned into fixed-shape rectangular
// chunks; each chunk is filtered, compressed and persisted
// independently under a key derived from its chunk coordinate.
// Reads and writes address arbitrary rectangular regions: the
// engine translates a region into the set of overlapping chunks,
// streams their payloads through a bounded read-ahead (and, for
// writes, write-behind) pipeline, and merges the partial results.
//
// The physical backend, the compression codecs and the filter
// chain are plugins behind the storage.Store, compr and filter
// interfaces.
package zarr

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/exp/slices"

	"github.com/zgrid/zarr/compr"
	"github.com/zgrid/zarr/filter"
	"github.com/zgrid/zarr/storage"
)

// Scalar is the set of element types an Array can hold.
type Scalar interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64
}

// Array is a handle to one stored array with element type T.
//
// An Array is safe for concurrent readers. Concurrent writers
// are safe only when their regions touch disjoint chunks; the
// engine does not coordinate writers of the same chunk
// (last write wins).
type Array[T Scalar] struct {
	store storage.Store
	meta  ArrayMeta
	order Order

	fill    T
	hasFill bool

	comp  compr.Compressor
	dec   compr.Decompressor
	chain filter.Chain

	writable bool

	// Parallel overrides the backend's concurrency hint
	// when positive. It bounds the number of in-flight
	// chunk fetches and stores per call.
	Parallel int

	// Logf, if non-nil, receives diagnostic output from
	// read, write and resize calls.
	Logf func(f string, args ...interface{})
}

// Definition describes a new array.
type Definition[T Scalar] struct {
	// Shape is the initial extent of each dimension.
	// Extents must be non-negative; an empty Shape makes
	// a rank-0 (scalar) array.
	Shape []int
	// Chunks is the chunk extent of each dimension; it must
	// have the same rank as Shape with positive extents.
	// Chunks are immutable after creation.
	Chunks []int
	// Fill, if non-nil, is the value of every element whose
	// chunk was never written. Arrays with a fill value elide
	// all-fill chunks from storage entirely.
	Fill *T
	// Compressor names the payload codec: "zstd",
	// "zstd-better", "s2", "zlib", "lz4" or "none".
	// Empty means "zstd".
	Compressor string
	// Filters is the ordered filter chain applied before
	// compression.
	Filters []filter.Spec
	// Order is OrderC or OrderF; zero means OrderC.
	Order Order
}

// Create initializes a new array in st and returns a writable
// handle. It fails if st already holds any keys.
func Create[T Scalar](ctx context.Context, st storage.Store, def Definition[T]) (*Array[T], error) {
	if len(def.Shape) != len(def.Chunks) {
		return nil, fmt.Errorf("%w: shape rank %d != chunk rank %d",
			ErrInvalidArgument, len(def.Shape), len(def.Chunks))
	}
	order := def.Order
	if order == 0 {
		order = OrderC
	}
	if order != OrderC && order != OrderF {
		return nil, fmt.Errorf("%w: bad order %q", ErrInvalidArgument, order.String())
	}
	name := def.Compressor
	if name == "" {
		name = "zstd"
	}
	meta := ArrayMeta{
		ZarrFormat: FormatVersion,
		Shape:      slices.Clone(def.Shape),
		Chunks:     slices.Clone(def.Chunks),
		Dtype:      Dtype[T](),
		FillValue:  []byte("null"),
		Order:      string(rune(order)),
		Filters:    def.Filters,
	}
	if name != "none" {
		meta.Compressor = &CompressorMeta{ID: name}
	}
	if def.Fill != nil {
		meta.FillValue = encodeFill(*def.Fill)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	empty, err := storage.IsEmpty(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("zarr: checking path: %w", err)
	}
	if !empty {
		return nil, fmt.Errorf("%w: path already populated", ErrInvalidArgument)
	}
	a, err := newArray[T](st, meta, true)
	if err != nil {
		return nil, err
	}
	if err := a.putMeta(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Open returns a handle to the array stored in st. It fails
// with ErrNotFound if no metadata document exists, and with
// ErrInvalidArgument if the stored dtype does not match T.
func Open[T Scalar](ctx context.Context, st storage.Store, writable bool) (*Array[T], error) {
	raw, ok, err := st.Get(ctx, MetaKey)
	if err != nil {
		return nil, fmt.Errorf("zarr: reading metadata: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	var meta ArrayMeta
	if err := unmarshalMeta(raw, &meta); err != nil {
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if want := Dtype[T](); meta.Dtype != want {
		return nil, fmt.Errorf("%w: stored dtype %q, requested %q",
			ErrInvalidArgument, meta.Dtype, want)
	}
	return newArray[T](st, meta, writable)
}

func newArray[T Scalar](st storage.Store, meta ArrayMeta, writable bool) (*Array[T], error) {
	order, err := meta.order()
	if err != nil {
		return nil, err
	}
	a := &Array[T]{
		store:    st,
		meta:     meta,
		order:    order,
		writable: writable,
	}
	if meta.Compressor != nil {
		a.comp = compr.Compression(meta.Compressor.ID)
		a.dec = compr.Decompression(meta.Compressor.ID)
		if a.comp == nil || a.dec == nil {
			return nil, fmt.Errorf("%w: unknown compressor %q",
				ErrInvalidArgument, meta.Compressor.ID)
		}
	}
	a.chain, err = filter.NewChain(meta.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	a.fill, a.hasFill, err = decodeFill[T](meta.FillValue)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Shape returns the current extent of each dimension.
func (a *Array[T]) Shape() []int { return slices.Clone(a.meta.Shape) }

// Chunks returns the chunk extent of each dimension.
func (a *Array[T]) Chunks() []int { return slices.Clone(a.meta.Chunks) }

// Rank returns the number of dimensions.
func (a *Array[T]) Rank() int { return len(a.meta.Shape) }

// Order returns the storage order of the array.
func (a *Array[T]) Order() Order { return a.order }

// Fill returns the fill value and whether one is declared.
func (a *Array[T]) Fill() (T, bool) { return a.fill, a.hasFill }

// Writable reports whether the handle allows mutation.
func (a *Array[T]) Writable() bool { return a.writable }

// Meta returns a copy of the array metadata document.
func (a *Array[T]) Meta() ArrayMeta {
	m := a.meta
	m.Shape = slices.Clone(m.Shape)
	m.Chunks = slices.Clone(m.Chunks)
	return m
}

// Len returns the total number of elements at the current shape.
func (a *Array[T]) Len() int {
	n := 1
	for _, d := range a.meta.Shape {
		n *= d
	}
	return n
}

func (a *Array[T]) logf(f string, args ...interface{}) {
	if a.Logf != nil {
		a.Logf(f, args...)
	}
}

func (a *Array[T]) chunkLen() int {
	n := 1
	for _, d := range a.meta.Chunks {
		n *= d
	}
	return n
}

func (a *Array[T]) chunkKey(coord []int) string {
	return a.meta.chunkKey(coord)
}

// checkRegion validates region against the current shape.
func (a *Array[T]) checkRegion(region Region) error {
	if len(region) != len(a.meta.Shape) {
		return fmt.Errorf("%w: region rank %d != array rank %d",
			ErrInvalidArgument, len(region), len(a.meta.Shape))
	}
	for i := range region {
		r := region[i]
		if r.Start < 0 || r.Stop < r.Start || r.Stop > a.meta.Shape[i] {
			return fmt.Errorf("%w: %v does not fit dimension %d of extent %d",
				ErrOutOfBounds, r, i, a.meta.Shape[i])
		}
	}
	return nil
}

func (a *Array[T]) putMeta(ctx context.Context) error {
	raw, err := marshalMeta(&a.meta)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, MetaKey, raw); err != nil {
		return fmt.Errorf("zarr: writing metadata: %w", err)
	}
	return nil
}

// Get reads the single element at coord.
func (a *Array[T]) Get(ctx context.Context, coord ...int) (T, error) {
	var out [1]T
	err := a.Read(ctx, out[:], At(coord...))
	return out[0], err
}

// Set writes the single element at coord.
func (a *Array[T]) Set(ctx context.Context, v T, coord ...int) error {
	return a.Write(ctx, []T{v}, At(coord...))
}

// asBytes reinterprets buf as its raw little-endian bytes.
// The slice aliases buf.
func asBytes[T Scalar](buf []T) []byte {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*int(unsafe.Sizeof(buf[0])))
}
