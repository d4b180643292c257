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
	"fmt"
)

// eq compares two elements, treating NaN as equal to NaN so
// that a NaN fill value still elides all-fill chunks.
func eq[T Scalar](a, b T) bool {
	return a == b || (a != b && a != a && b != b)
}

// encodeChunk serializes buf through the filter chain and the
// compressor, returning the chunk payload. It returns nil bytes
// when every element equals the declared fill value: all-fill
// chunks are elided from storage.
//
// The returned payload never aliases buf, so buf may be reused
// immediately.
func (a *Array[T]) encodeChunk(buf []T) ([]byte, error) {
	if len(buf) != a.chunkLen() {
		panic(fmt.Sprintf("zarr: chunk buffer holds %d elements, chunk shape %v needs %d",
			len(buf), a.meta.Chunks, a.chunkLen()))
	}
	if a.hasFill {
		all := true
		for i := range buf {
			if !eq(buf[i], a.fill) {
				all = false
				break
			}
		}
		if all {
			return nil, nil
		}
	}
	enc := a.chain.Encode(asBytes(buf))
	if a.comp != nil {
		return a.comp.Compress(enc, nil), nil
	}
	// no compressor: enc aliases buf when the chain is empty
	if len(a.chain) == 0 {
		out := make([]byte, len(enc))
		copy(out, enc)
		return out, nil
	}
	return enc, nil
}

// decodeChunk fills buf from a chunk payload. An absent payload
// (ok=false) resets buf to the fill value; buf contents from a
// previous chunk are always fully overwritten.
func (a *Array[T]) decodeChunk(coord []int, data []byte, ok bool, buf []T) error {
	if len(buf) != a.chunkLen() {
		panic(fmt.Sprintf("zarr: chunk buffer holds %d elements, chunk shape %v needs %d",
			len(buf), a.meta.Chunks, a.chunkLen()))
	}
	if !ok {
		// a.fill is the zero value when no fill is declared
		fill(buf, a.fill)
		return nil
	}
	raw := asBytes(buf)
	if a.dec == nil && len(a.chain) == 0 {
		if len(data) != len(raw) {
			return &CodecError{Coord: coord, Err: fmt.Errorf("payload is %d bytes, chunk needs %d", len(data), len(raw))}
		}
		copy(raw, data)
		return nil
	}
	filtered := data
	if a.dec != nil {
		if len(a.chain) == 0 {
			// decompress straight into the chunk buffer
			if err := a.dec.Decompress(data, raw); err != nil {
				return &CodecError{Coord: coord, Err: err}
			}
			return nil
		}
		filtered = make([]byte, a.chain.EncodedLen(len(raw)))
		if err := a.dec.Decompress(data, filtered); err != nil {
			return &CodecError{Coord: coord, Err: err}
		}
	}
	out, err := a.chain.Decode(filtered)
	if err != nil {
		return &CodecError{Coord: coord, Err: err}
	}
	if len(out) != len(raw) {
		return &CodecError{Coord: coord, Err: fmt.Errorf("filtered payload is %d bytes, chunk needs %d", len(out), len(raw))}
	}
	copy(raw, out)
	return nil
}
