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
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds indicates a region that exceeds the
	// current array shape. Requests are never clamped.
	ErrOutOfBounds = errors.New("zarr: region out of bounds")

	// ErrReadOnly indicates a mutation of an array handle
	// that was opened without write access.
	ErrReadOnly = errors.New("zarr: array is read-only")

	// ErrInvalidArgument indicates a malformed request,
	// like a negative resize extent or a mismatched
	// append shape.
	ErrInvalidArgument = errors.New("zarr: invalid argument")

	// ErrNotFound indicates that no array metadata exists
	// at the opened path.
	ErrNotFound = errors.New("zarr: array not found")
)

// CodecError wraps a decompression or filter failure for one
// chunk. It indicates corrupt stored data or a codec mismatch,
// not a usage error.
type CodecError struct {
	Coord []int // chunk coordinate, nil if unknown
	Err   error
}

func (e *CodecError) Error() string {
	if e.Coord == nil {
		return fmt.Sprintf("zarr: codec: %v", e.Err)
	}
	return fmt.Sprintf("zarr: codec: chunk %v: %v", e.Coord, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
