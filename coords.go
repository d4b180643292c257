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

import "fmt"

// Order is the iteration convention of an array: row-major
// ("C", last dimension varies fastest) or column-major
// ("F", first dimension varies fastest). The in-memory chunk
// buffer and the serialized chunk bytes share the same order.
type Order byte

const (
	OrderC Order = 'C'
	OrderF Order = 'F'
)

func (o Order) String() string { return string(rune(o)) }

// Range is a half-open [Start, Stop) index interval along
// one dimension.
type Range struct {
	Start, Stop int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	if r.Stop <= r.Start {
		return 0
	}
	return r.Stop - r.Start
}

func (r Range) String() string { return fmt.Sprintf("%d:%d", r.Start, r.Stop) }

// Region is a rectangular index region, one Range per
// dimension. A rank-0 array uses the empty Region.
type Region []Range

// Whole returns the region covering all of shape.
func Whole(shape []int) Region {
	g := make(Region, len(shape))
	for i, n := range shape {
		g[i] = Range{0, n}
	}
	return g
}

// At returns the single-element region at coord.
func At(coord ...int) Region {
	g := make(Region, len(coord))
	for i, c := range coord {
		g[i] = Range{c, c + 1}
	}
	return g
}

// Shape returns the per-dimension lengths of g.
func (g Region) Shape() []int {
	s := make([]int, len(g))
	for i := range g {
		s[i] = g[i].Len()
	}
	return s
}

// Size returns the number of elements in g. The empty
// (rank-0) region holds one scalar.
func (g Region) Size() int {
	n := 1
	for i := range g {
		n *= g[i].Len()
	}
	return n
}

// Empty reports whether g covers no elements at all.
func (g Region) Empty() bool {
	for i := range g {
		if g[i].Len() == 0 {
			return true
		}
	}
	return false
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// gridShape returns the number of chunks along each dimension
// for an array of the given shape and chunk shape.
func gridShape(shape, chunks []int) []int {
	g := make([]int, len(shape))
	for i := range shape {
		g[i] = ceilDiv(shape[i], chunks[i])
	}
	return g
}

// chunkOrigin returns the global index of the first element
// of the chunk at coord.
func chunkOrigin(coord, chunks []int) []int {
	o := make([]int, len(coord))
	for i := range coord {
		o[i] = coord[i] * chunks[i]
	}
	return o
}

// chunksOverlapping returns the coordinates of every chunk
// whose domain intersects region, enumerated in the given
// order. The result is empty when the region is.
func chunksOverlapping(region Region, chunks []int, order Order) [][]int {
	if region.Empty() {
		return nil
	}
	span := make(Region, len(region))
	for i := range region {
		span[i] = Range{
			Start: region[i].Start / chunks[i],
			Stop:  (region[i].Stop-1)/chunks[i] + 1,
		}
	}
	return enumerate(span, order)
}

// enumerate lists every coordinate inside span in the given
// order: for OrderC the last dimension varies fastest, for
// OrderF the first. A rank-0 span yields one empty coordinate.
func enumerate(span Region, order Order) [][]int {
	if span.Empty() {
		return nil
	}
	n := span.Size()
	out := make([][]int, 0, n)
	cur := make([]int, len(span))
	for i := range span {
		cur[i] = span[i].Start
	}
	for {
		c := make([]int, len(cur))
		copy(c, cur)
		out = append(out, c)
		if !step(cur, span, order) {
			return out
		}
	}
}

// step advances cur to the next coordinate in span, returning
// false once the span is exhausted.
func step(cur []int, span Region, order Order) bool {
	if order == OrderF {
		for i := 0; i < len(cur); i++ {
			cur[i]++
			if cur[i] < span[i].Stop {
				return true
			}
			cur[i] = span[i].Start
		}
		return false
	}
	for i := len(cur) - 1; i >= 0; i-- {
		cur[i]++
		if cur[i] < span[i].Stop {
			return true
		}
		cur[i] = span[i].Start
	}
	return false
}

// intersect clips region against the chunk window
// [origin, origin+extent), returning the overlap in global
// coordinates. The overlap may be empty.
func intersect(region Region, origin, extent []int) Region {
	out := make(Region, len(region))
	for i := range region {
		lo := region[i].Start
		if o := origin[i]; o > lo {
			lo = o
		}
		hi := region[i].Stop
		if o := origin[i] + extent[i]; o < hi {
			hi = o
		}
		out[i] = Range{lo, hi}
	}
	return out
}

// strides returns the element stride of each dimension for a
// dense buffer of the given shape in the given order.
func strides(shape []int, order Order) []int {
	s := make([]int, len(shape))
	acc := 1
	if order == OrderF {
		for i := 0; i < len(shape); i++ {
			s[i] = acc
			acc *= shape[i]
		}
	} else {
		for i := len(shape) - 1; i >= 0; i-- {
			s[i] = acc
			acc *= shape[i]
		}
	}
	return s
}

// copyBlock copies a count-shaped block from src, starting at
// srcOff, into dst, starting at dstOff. Both buffers are dense
// in the same order with the given shapes. A rank-0 copy moves
// the single scalar.
func copyBlock[T any](dst []T, dstShape, dstOff []int, src []T, srcShape, srcOff []int, count []int, order Order) {
	rank := len(count)
	if rank == 0 {
		dst[0] = src[0]
		return
	}
	for i := 0; i < rank; i++ {
		if count[i] == 0 {
			return
		}
	}
	ds := strides(dstShape, order)
	ss := strides(srcShape, order)
	dbase, sbase := 0, 0
	for i := 0; i < rank; i++ {
		dbase += dstOff[i] * ds[i]
		sbase += srcOff[i] * ss[i]
	}
	// the unit-stride dimension is copied as one contiguous run
	unit := rank - 1
	if order == OrderF {
		unit = 0
	}
	run := count[unit]
	idx := make([]int, rank)
	for {
		do, so := dbase, sbase
		for i := 0; i < rank; i++ {
			do += idx[i] * ds[i]
			so += idx[i] * ss[i]
		}
		copy(dst[do:do+run], src[so:so+run])
		// odometer over the non-unit dimensions
		i := rank - 1
		for ; i >= 0; i-- {
			if i == unit {
				continue
			}
			idx[i]++
			if idx[i] < count[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// fill overwrites every element of buf with v.
func fill[T any](buf []T, v T) {
	for i := range buf {
		buf[i] = v
	}
}

// sub returns a-b element-wise.
func sub(a, b []int) []int {
	out := make([]int, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// starts returns the Start of every range in g.
func starts(g Region) []int {
	out := make([]int, len(g))
	for i := range g {
		out[i] = g[i].Start
	}
	return out
}
