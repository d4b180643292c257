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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zgrid/zarr/filter"
)

const (
	// MetaKey is the storage key of the array metadata document.
	MetaKey = ".zarray"
	// FormatVersion is the storage format version written
	// into new metadata documents.
	FormatVersion = 2
)

// CompressorMeta identifies the compression codec of an array.
type CompressorMeta struct {
	ID string `json:"id"`
}

// ArrayMeta is the JSON metadata document stored under
// MetaKey alongside the chunks of one array.
type ArrayMeta struct {
	ZarrFormat int             `json:"zarr_format"`
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Compressor *CompressorMeta `json:"compressor"`
	// FillValue is null, a JSON number, or one of the strings
	// "NaN", "Infinity", "-Infinity" for float dtypes.
	FillValue json.RawMessage `json:"fill_value"`
	// Order is "C" (row-major) or "F" (column-major).
	Order   string        `json:"order"`
	Filters []filter.Spec `json:"filters"`
	// DimensionSeparator joins chunk indices into chunk keys;
	// it defaults to ".".
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (m *ArrayMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

func (m *ArrayMeta) order() (Order, error) {
	switch m.Order {
	case "C":
		return OrderC, nil
	case "F":
		return OrderF, nil
	default:
		return 0, fmt.Errorf("%w: bad order %q", ErrInvalidArgument, m.Order)
	}
}

func (m *ArrayMeta) validate() error {
	if m.ZarrFormat != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrInvalidArgument, m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("%w: shape rank %d != chunk rank %d",
			ErrInvalidArgument, len(m.Shape), len(m.Chunks))
	}
	for i, n := range m.Shape {
		if n < 0 {
			return fmt.Errorf("%w: negative extent %d in shape", ErrInvalidArgument, n)
		}
		if m.Chunks[i] <= 0 {
			return fmt.Errorf("%w: non-positive chunk extent %d", ErrInvalidArgument, m.Chunks[i])
		}
	}
	if _, err := m.order(); err != nil {
		return err
	}
	return nil
}

// chunkKey renders a chunk coordinate as its storage key.
// The rank-0 array has the single chunk key "0".
func (m *ArrayMeta) chunkKey(coord []int) string {
	if len(coord) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, c := range coord {
		if i > 0 {
			sb.WriteString(m.separator())
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

func marshalMeta(m *ArrayMeta) ([]byte, error) {
	raw, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("zarr: encoding metadata: %w", err)
	}
	return append(raw, '\n'), nil
}

func unmarshalMeta(raw []byte, m *ArrayMeta) error {
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("%w: bad metadata document: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Dtype returns the metadata type tag for T: numpy-style
// little-endian tags like "<f8", with "|" byte order for
// single-byte types.
func Dtype[T Scalar]() string {
	switch any(*new(T)).(type) {
	case int8:
		return "|i1"
	case int16:
		return "<i2"
	case int32:
		return "<i4"
	case int64:
		return "<i8"
	case uint8:
		return "|u1"
	case uint16:
		return "<u2"
	case uint32:
		return "<u4"
	case uint64:
		return "<u8"
	case float32:
		return "<f4"
	case float64:
		return "<f8"
	}
	panic("zarr: unreachable dtype")
}

// encodeFill renders v as a metadata fill value. Non-finite
// floats use the string spellings the format requires.
func encodeFill[T Scalar](v T) json.RawMessage {
	switch f := any(v).(type) {
	case float32:
		return encodeFloatFill(float64(f), 32)
	case float64:
		return encodeFloatFill(f, 64)
	}
	return json.RawMessage(fmt.Sprintf("%v", v))
}

func encodeFloatFill(f float64, bits int) json.RawMessage {
	switch {
	case math.IsNaN(f):
		return json.RawMessage(`"NaN"`)
	case math.IsInf(f, 1):
		return json.RawMessage(`"Infinity"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Infinity"`)
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, bits))
}

// decodeFill parses a metadata fill value into T.
// ok=false means the fill value is null (absent).
func decodeFill[T Scalar](raw json.RawMessage) (v T, ok bool, err error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return v, false, nil
	}
	switch s {
	case `"NaN"`, `"Infinity"`, `"-Infinity"`:
		var f float64
		switch s {
		case `"NaN"`:
			f = math.NaN()
		case `"Infinity"`:
			f = math.Inf(1)
		default:
			f = math.Inf(-1)
		}
		switch any(v).(type) {
		case float32:
			return T(float32(f)), true, nil
		case float64:
			return T(f), true, nil
		}
		return v, false, fmt.Errorf("%w: fill value %s for integer dtype", ErrInvalidArgument, s)
	}
	// integer literals parse exactly even past 2^53
	if i, ierr := strconv.ParseInt(s, 10, 64); ierr == nil {
		return T(i), true, nil
	}
	if u, uerr := strconv.ParseUint(s, 10, 64); uerr == nil {
		return T(u), true, nil
	}
	f, perr := strconv.ParseFloat(s, 64)
	if perr != nil {
		return v, false, fmt.Errorf("%w: bad fill value %s", ErrInvalidArgument, s)
	}
	return T(f), true, nil
}
