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
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/zgrid/zarr/storage"
)

func TestMaskedBasics(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemStore()
	m, err := CreateMasked(ctx, st, Definition[int16]{
		Shape:  []int{4},
		Chunks: []int{2},
	}, int16(-9999))
	if err != nil {
		t.Fatal(err)
	}

	// untouched elements read as missing
	if _, ok, err := m.Get(ctx, 0); err != nil || ok {
		t.Fatalf("untouched element: ok=%v err=%v", ok, err)
	}
	if err := m.Set(ctx, 42, 1); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := m.Get(ctx, 1); err != nil || !ok || v != 42 {
		t.Fatalf("Get(1) = %v %v %v", v, ok, err)
	}
	// the sentinel is not a storable value
	if err := m.Set(ctx, -9999, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Set(sentinel): %v", err)
	}
	if err := m.SetMissing(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, 1); ok {
		t.Fatal("cleared element should be missing")
	}

	// all-missing chunks are never stored: the fill value is
	// the sentinel itself
	keys, _ := st.List(ctx)
	slices.Sort(keys)
	if !slices.Equal(keys, []string{MetaKey}) {
		t.Fatalf("stored keys: %v", keys)
	}
}

func TestMaskedBulk(t *testing.T) {
	ctx := context.Background()
	m, err := CreateMasked(ctx, storage.NewMemStore(), Definition[int32]{
		Shape:  []int{3, 3},
		Chunks: []int{2, 2},
	}, int32(math.MinInt32))
	if err != nil {
		t.Fatal(err)
	}
	src := []int32{1, 2, 3, 4}
	valid := []bool{true, false, true, true}
	region := Region{{0, 2}, {0, 2}}
	if err := m.Write(ctx, src, valid, region); err != nil {
		t.Fatal(err)
	}
	dst := make([]int32, 4)
	got := make([]bool, 4)
	if err := m.Read(ctx, dst, got, region); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, valid) {
		t.Fatalf("validity: %v want %v", got, valid)
	}
	if dst[0] != 1 || dst[1] != 0 || dst[2] != 3 || dst[3] != 4 {
		t.Fatalf("values: %v", dst)
	}
	// a "valid" sentinel is rejected
	err = m.Write(ctx, []int32{math.MinInt32}, []bool{true}, Region{{0, 1}, {0, 1}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("valid sentinel: %v", err)
	}
}

// TestMaskedNaNSentinel: NaN never compares equal to itself, so
// the sentinel test needs its own equality.
func TestMaskedNaNSentinel(t *testing.T) {
	ctx := context.Background()
	m, err := CreateMasked(ctx, storage.NewMemStore(), Definition[float64]{
		Shape:  []int{2},
		Chunks: []int{2},
	}, math.NaN())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, 1.5, 0); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := m.Get(ctx, 0); err != nil || !ok || v != 1.5 {
		t.Fatalf("Get(0) = %v %v %v", v, ok, err)
	}
	if _, ok, err := m.Get(ctx, 1); err != nil || ok {
		t.Fatalf("NaN-filled element should be missing: ok=%v err=%v", ok, err)
	}
	if err := m.Set(ctx, math.NaN(), 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Set(NaN): %v", err)
	}
	// reopening restores the sentinel from the fill value
	st := m.Array().store
	back, err := Open[float64](ctx, st, false)
	if err != nil {
		t.Fatal(err)
	}
	fv, ok := back.Fill()
	if !ok || !math.IsNaN(fv) {
		t.Fatalf("persisted fill: %v %v", fv, ok)
	}
	mb := AsMasked(back, fv)
	if v, ok, err := mb.Get(ctx, 0); err != nil || !ok || v != 1.5 {
		t.Fatalf("reopened Get(0) = %v %v %v", v, ok, err)
	}
}
