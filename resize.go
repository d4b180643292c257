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

	"golang.org/x/exp/slices"
)

// Resize changes the array shape. Growing a dimension exposes
// fill-valued elements; shrinking one deletes every chunk that
// falls entirely outside the new shape. Chunks straddling the
// new boundary keep their bytes; the excess elements simply
// become unreachable.
//
// If a chunk deletion fails the metadata is not updated, so
// the caller still observes the old shape.
func (a *Array[T]) Resize(ctx context.Context, shape ...int) error {
	if !a.writable {
		return ErrReadOnly
	}
	if len(shape) != len(a.meta.Shape) {
		return fmt.Errorf("%w: resize rank %d != array rank %d",
			ErrInvalidArgument, len(shape), len(a.meta.Shape))
	}
	for i, n := range shape {
		if n < 0 {
			return fmt.Errorf("%w: negative extent %d for dimension %d",
				ErrInvalidArgument, n, i)
		}
	}
	old := a.meta.Shape
	if err := a.prune(ctx, old, shape); err != nil {
		return err
	}
	a.meta.Shape = slices.Clone(shape)
	if err := a.putMeta(ctx); err != nil {
		a.meta.Shape = old
		return err
	}
	a.logf("resize %v -> %v", old, shape)
	return nil
}

// prune deletes every chunk that lies entirely outside the new
// shape. For each shrunk dimension the dead chunk indices run
// from ceil(new/extent) up to the old grid bound; the other
// dimensions range over the old grid, since those chunks
// existed under the old extents. Straddling chunks survive.
func (a *Array[T]) prune(ctx context.Context, old, next []int) error {
	oldGrid := gridShape(old, a.meta.Chunks)
	pruned := 0
	for d := range old {
		if next[d] >= old[d] {
			continue
		}
		lo := ceilDiv(next[d], a.meta.Chunks[d])
		hi := oldGrid[d]
		if lo >= hi {
			continue
		}
		span := make(Region, len(old))
		for i, g := range oldGrid {
			span[i] = Range{0, g}
		}
		span[d] = Range{lo, hi}
		for _, coord := range enumerate(span, a.order) {
			if err := a.store.Delete(ctx, a.chunkKey(coord)); err != nil {
				return fmt.Errorf("zarr: pruning chunk %v: %w", coord, err)
			}
			pruned++
		}
	}
	if pruned > 0 {
		a.logf("pruned %d chunks", pruned)
	}
	return nil
}

// Append grows the array along axis and writes data into the
// added index range. data must be laid out in the array's
// storage order with the given shape: either the full rank,
// matching the array shape on every axis except axis, or one
// rank lower, treated as a single slice.
func (a *Array[T]) Append(ctx context.Context, data []T, shape []int, axis int) error {
	if !a.writable {
		return ErrReadOnly
	}
	rank := len(a.meta.Shape)
	if axis < 0 || axis >= rank {
		return fmt.Errorf("%w: append axis %d of rank-%d array", ErrInvalidArgument, axis, rank)
	}
	var block []int // full-rank shape of the appended block
	switch len(shape) {
	case rank:
		block = slices.Clone(shape)
	case rank - 1:
		// single slice: insert a unit extent at axis
		block = make([]int, rank)
		copy(block, shape[:axis])
		block[axis] = 1
		copy(block[axis+1:], shape[axis:])
	default:
		return fmt.Errorf("%w: append shape rank %d for rank-%d array",
			ErrInvalidArgument, len(shape), rank)
	}
	n := 1
	for i, d := range block {
		if d < 0 {
			return fmt.Errorf("%w: negative extent %d in append shape", ErrInvalidArgument, d)
		}
		if i != axis && d != a.meta.Shape[i] {
			return fmt.Errorf("%w: append extent %d != array extent %d on axis %d",
				ErrInvalidArgument, d, a.meta.Shape[i], i)
		}
		n *= d
	}
	if len(data) != n {
		return fmt.Errorf("%w: append data holds %d elements, shape %v needs %d",
			ErrInvalidArgument, len(data), shape, n)
	}
	oldExtent := a.meta.Shape[axis]
	newShape := slices.Clone(a.meta.Shape)
	newShape[axis] = oldExtent + block[axis]
	if err := a.Resize(ctx, newShape...); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	region := make(Region, rank)
	for i := range region {
		region[i] = Range{0, block[i]}
	}
	region[axis] = Range{oldExtent, oldExtent + block[axis]}
	return a.Write(ctx, data, region)
}
