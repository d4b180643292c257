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

	"golang.org/x/sync/errgroup"
)

// defaultParallel bounds in-flight chunk I/O when the backend
// does not suggest a queue capacity of its own.
const defaultParallel = 50

func (a *Array[T]) parallel(nchunks int) int {
	p := a.Parallel
	if p <= 0 {
		p = a.store.Concurrency()
	}
	if p <= 0 {
		p = defaultParallel
	}
	if p > nchunks {
		p = nchunks
	}
	if p < 1 {
		p = 1
	}
	return p
}

// fetched is one in-flight chunk read. The payload fields are
// valid only after done is closed.
type fetched struct {
	coord []int
	data  []byte
	ok    bool
	err   error
	done  chan struct{}
}

// fetchAhead issues backend reads for the chunks in coords and
// delivers them on the returned channel in exactly the coords
// order, even though the reads themselves complete out of
// order. The channel capacity bounds the number of payloads
// held in memory; sends block (backpressure) when the consumer
// falls behind. skip marks coordinates whose payload is not
// needed; they are delivered immediately with ok=false.
//
// Cancelling ctx stops the producer. The caller must drain the
// channel so that no fetch goroutine is left blocked.
func (a *Array[T]) fetchAhead(ctx context.Context, coords [][]int, window int, skip func([]int) bool) <-chan *fetched {
	out := make(chan *fetched, window)
	go func() {
		defer close(out)
		for _, coord := range coords {
			f := &fetched{coord: coord, done: make(chan struct{})}
			if skip != nil && skip(coord) {
				close(f.done)
			} else {
				go func() {
					defer close(f.done)
					f.data, f.ok, f.err = a.store.Get(ctx, a.chunkKey(f.coord))
				}()
			}
			select {
			case out <- f:
			case <-ctx.Done():
				<-f.done
				return
			}
		}
	}()
	return out
}

// drainFetches consumes any remaining in-flight fetches after
// a failure so their goroutines can exit.
func drainFetches(ch <-chan *fetched) {
	for f := range ch {
		<-f.done
	}
}

// Read copies the elements of region into dst, which must hold
// exactly region.Size() elements laid out densely in the
// array's storage order.
//
// Elements whose chunk was never written read as the fill value
// (or the zero value if none is declared). After a failed Read
// the contents of dst are unspecified.
func (a *Array[T]) Read(ctx context.Context, dst []T, region Region) error {
	if err := a.checkRegion(region); err != nil {
		return err
	}
	if len(dst) != region.Size() {
		panic(fmt.Sprintf("zarr: destination holds %d elements, region %v needs %d",
			len(dst), region, region.Size()))
	}
	coords := chunksOverlapping(region, a.meta.Chunks, a.order)
	if len(coords) == 0 {
		return nil
	}
	a.logf("read %v: %d chunks", region, len(coords))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := a.fetchAhead(ctx, coords, a.parallel(len(coords)), nil)
	defer drainFetches(ch)

	buf := make([]T, a.chunkLen())
	regionShape := region.Shape()
	regionStart := starts(region)
	for f := range ch {
		<-f.done
		if f.err != nil {
			return fmt.Errorf("zarr: fetching chunk %v: %w", f.coord, f.err)
		}
		if err := a.decodeChunk(f.coord, f.data, f.ok, buf); err != nil {
			return err
		}
		origin := chunkOrigin(f.coord, a.meta.Chunks)
		overlap := intersect(region, origin, a.meta.Chunks)
		copyBlock(dst, regionShape, sub(starts(overlap), regionStart),
			buf, a.meta.Chunks, sub(starts(overlap), origin),
			overlap.Shape(), a.order)
	}
	return nil
}

// flushOp is one pending chunk store: data==nil deletes the
// chunk (it became all-fill), anything else overwrites it.
type flushOp struct {
	coord []int
	data  []byte
}

// covers reports whether region contains the full extent of
// the chunk at coord. Chunks clipped by the array boundary are
// never fully covered, so their fill-valued tail survives a
// whole-array write.
func coversChunk(region Region, coord, chunks []int) bool {
	for i := range coord {
		lo := coord[i] * chunks[i]
		if region[i].Start > lo || region[i].Stop < lo+chunks[i] {
			return false
		}
	}
	return true
}

// Write stores the elements of src, which must hold exactly
// region.Size() elements in the array's storage order, into
// region.
//
// Chunks only partially covered by region are read, decoded,
// patched and rewritten, preserving their untouched elements;
// each touched chunk is replaced whole at the backend. Writes
// that fail part-way may leave some chunks updated and others
// not; nothing is rolled back. Concurrent writers of the same
// chunk are not coordinated (last write wins).
func (a *Array[T]) Write(ctx context.Context, src []T, region Region) error {
	if !a.writable {
		return ErrReadOnly
	}
	if err := a.checkRegion(region); err != nil {
		return err
	}
	if len(src) != region.Size() {
		panic(fmt.Sprintf("zarr: source holds %d elements, region %v needs %d",
			len(src), region, region.Size()))
	}
	coords := chunksOverlapping(region, a.meta.Chunks, a.order)
	if len(coords) == 0 {
		return nil
	}
	window := a.parallel(len(coords))
	a.logf("write %v: %d chunks, window %d", region, len(coords), window)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// read-ahead stage: fully-covered chunks skip the fetch,
	// they are rebuilt from src alone
	full := func(coord []int) bool {
		return coversChunk(region, coord, a.meta.Chunks)
	}
	ch := a.fetchAhead(ctx, coords, window, full)
	defer drainFetches(ch)

	// write-behind stage
	flush := make(chan flushOp, window)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < window; i++ {
		g.Go(func() error {
			for op := range flush {
				key := a.chunkKey(op.coord)
				if op.data == nil {
					if err := a.store.Delete(gctx, key); err != nil {
						return fmt.Errorf("zarr: deleting chunk %v: %w", op.coord, err)
					}
				} else if err := a.store.Put(gctx, key, op.data); err != nil {
					return fmt.Errorf("zarr: storing chunk %v: %w", op.coord, err)
				}
			}
			return nil
		})
	}

	var werr error
	buf := make([]T, a.chunkLen())
	regionShape := region.Shape()
	regionStart := starts(region)
loop:
	for f := range ch {
		<-f.done
		if f.err != nil {
			werr = fmt.Errorf("zarr: fetching chunk %v: %w", f.coord, f.err)
			break
		}
		origin := chunkOrigin(f.coord, a.meta.Chunks)
		overlap := intersect(region, origin, a.meta.Chunks)
		if !full(f.coord) {
			// read-modify-write: keep the elements the
			// region does not cover
			if err := a.decodeChunk(f.coord, f.data, f.ok, buf); err != nil {
				werr = err
				break
			}
		}
		copyBlock(buf, a.meta.Chunks, sub(starts(overlap), origin),
			src, regionShape, sub(starts(overlap), regionStart),
			overlap.Shape(), a.order)
		data, err := a.encodeChunk(buf)
		if err != nil {
			werr = err
			break
		}
		select {
		case flush <- flushOp{coord: f.coord, data: data}:
		case <-gctx.Done():
			// a store worker already failed; its error
			// surfaces from g.Wait below
			break loop
		}
	}
	close(flush)
	if err := g.Wait(); err != nil && werr == nil {
		werr = err
	}
	return werr
}
