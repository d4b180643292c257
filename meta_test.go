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
	"math"
	"testing"
)

func TestMetaRoundtrip(t *testing.T) {
	m := ArrayMeta{
		ZarrFormat: FormatVersion,
		Shape:      []int{10, 20},
		Chunks:     []int{4, 8},
		Dtype:      "<f8",
		Compressor: &CompressorMeta{ID: "zstd"},
		FillValue:  json.RawMessage("0"),
		Order:      "C",
	}
	if err := m.validate(); err != nil {
		t.Fatal(err)
	}
	raw, err := marshalMeta(&m)
	if err != nil {
		t.Fatal(err)
	}
	var back ArrayMeta
	if err := unmarshalMeta(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Dtype != m.Dtype || back.Compressor.ID != "zstd" || back.Order != "C" {
		t.Fatalf("roundtrip: %+v", back)
	}
}

func TestMetaValidate(t *testing.T) {
	bad := []ArrayMeta{
		{ZarrFormat: 1, Shape: []int{1}, Chunks: []int{1}, Order: "C"},
		{ZarrFormat: FormatVersion, Shape: []int{1, 2}, Chunks: []int{1}, Order: "C"},
		{ZarrFormat: FormatVersion, Shape: []int{-1}, Chunks: []int{1}, Order: "C"},
		{ZarrFormat: FormatVersion, Shape: []int{1}, Chunks: []int{0}, Order: "C"},
		{ZarrFormat: FormatVersion, Shape: []int{1}, Chunks: []int{1}, Order: "X"},
	}
	for i := range bad {
		if err := bad[i].validate(); err == nil {
			t.Errorf("case %d should fail validation", i)
		}
	}
}

func TestChunkKeys(t *testing.T) {
	m := ArrayMeta{}
	if got := m.chunkKey([]int{2, 0, 13}); got != "2.0.13" {
		t.Fatalf("key: %q", got)
	}
	if got := m.chunkKey(nil); got != "0" {
		t.Fatalf("rank-0 key: %q", got)
	}
	m.DimensionSeparator = "/"
	if got := m.chunkKey([]int{1, 2}); got != "1/2" {
		t.Fatalf("separator: %q", got)
	}
}

func TestDtypeTags(t *testing.T) {
	if got := Dtype[int8](); got != "|i1" {
		t.Fatalf("int8: %q", got)
	}
	if got := Dtype[uint8](); got != "|u1" {
		t.Fatalf("uint8: %q", got)
	}
	if got := Dtype[int64](); got != "<i8" {
		t.Fatalf("int64: %q", got)
	}
	if got := Dtype[float32](); got != "<f4" {
		t.Fatalf("float32: %q", got)
	}
}

func TestFillValueCoding(t *testing.T) {
	// NaN spells as a string and parses back as NaN
	raw := encodeFill(math.NaN())
	if string(raw) != `"NaN"` {
		t.Fatalf("NaN: %s", raw)
	}
	f, ok, err := decodeFill[float64](raw)
	if err != nil || !ok || !math.IsNaN(f) {
		t.Fatalf("NaN decode: %v %v %v", f, ok, err)
	}
	// null means absent
	if _, ok, err := decodeFill[int32](json.RawMessage("null")); err != nil || ok {
		t.Fatalf("null decode: ok=%v err=%v", ok, err)
	}
	// integers keep full precision
	big := int64(1)<<62 + 3
	v, ok, err := decodeFill[int64](encodeFill(big))
	if err != nil || !ok || v != big {
		t.Fatalf("int decode: %v %v %v", v, ok, err)
	}
	// NaN for an integer dtype is rejected
	if _, _, err := decodeFill[int32](json.RawMessage(`"NaN"`)); err == nil {
		t.Fatal("NaN for int dtype should fail")
	}
}
