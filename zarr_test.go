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
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/zgrid/zarr/filter"
	"github.com/zgrid/zarr/storage"
)

func mkArray[T Scalar](t *testing.T, def Definition[T]) (*Array[T], *storage.MemStore) {
	t.Helper()
	st := storage.NewMemStore()
	arr, err := Create(context.Background(), st, def)
	if err != nil {
		t.Fatal(err)
	}
	arr.Logf = t.Logf
	return arr, st
}

func fillValue[T Scalar](v T) *T { return &v }

// TestWriteExample is the worked example: a (5,3) array with
// (2,2) chunks and zero fill. Writing 7 into rows 2..3, column 1
// touches exactly chunk (1,0); every other chunk stays absent.
func TestWriteExample(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[float64]{
		Shape:  []int{5, 3},
		Chunks: []int{2, 2},
		Fill:   fillValue(0.0),
	})
	region := Region{{2, 4}, {1, 2}}
	if err := arr.Write(ctx, []float64{7, 7}, region); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.Has(ctx, "1.0"); !ok {
		t.Fatal("chunk 1.0 should be stored")
	}
	for _, key := range []string{"0.0", "0.1", "1.1", "2.0", "2.1"} {
		if ok, _ := st.Has(ctx, key); ok {
			t.Fatalf("chunk %s should be absent", key)
		}
	}
	got := make([]float64, 15)
	if err := arr.Read(ctx, got, Whole(arr.Shape())); err != nil {
		t.Fatal(err)
	}
	want := make([]float64, 15)
	want[2*3+1] = 7 // (2,1)
	want[3*3+1] = 7 // (3,1)
	if !slices.Equal(got, want) {
		t.Fatalf("full read:\ngot  %v\nwant %v", got, want)
	}
	// single-element reads agree
	if v, err := arr.Get(ctx, 3, 1); err != nil || v != 7 {
		t.Fatalf("Get(3,1) = %v, %v", v, err)
	}
	if v, err := arr.Get(ctx, 4, 2); err != nil || v != 0 {
		t.Fatalf("Get(4,2) = %v, %v", v, err)
	}
}

func TestRoundtrip(t *testing.T) {
	compressors := []string{"zstd", "s2", "zlib", "lz4", "none"}
	orders := []Order{OrderC, OrderF}
	for _, comp := range compressors {
		for _, order := range orders {
			comp, order := comp, order
			t.Run(fmt.Sprintf("%s-%v", comp, order), func(t *testing.T) {
				ctx := context.Background()
				arr, _ := mkArray(t, Definition[int32]{
					Shape:      []int{7, 5, 3},
					Chunks:     []int{3, 2, 2},
					Fill:       fillValue[int32](-1),
					Compressor: comp,
					Order:      order,
				})
				// chunk-misaligned region
				region := Region{{1, 6}, {0, 5}, {1, 3}}
				src := make([]int32, region.Size())
				rng := rand.New(rand.NewSource(3))
				for i := range src {
					src[i] = rng.Int31n(1000)
				}
				if err := arr.Write(ctx, src, region); err != nil {
					t.Fatal(err)
				}
				got := make([]int32, region.Size())
				if err := arr.Read(ctx, got, region); err != nil {
					t.Fatal(err)
				}
				if !slices.Equal(got, src) {
					t.Fatal("readback mismatch")
				}
				// untouched elements keep the fill value
				if v, err := arr.Get(ctx, 0, 0, 0); err != nil || v != -1 {
					t.Fatalf("fill element: %v, %v", v, err)
				}
			})
		}
	}
}

func TestRoundtripFiltered(t *testing.T) {
	ctx := context.Background()
	arr, _ := mkArray(t, Definition[float64]{
		Shape:      []int{10, 10},
		Chunks:     []int{4, 4},
		Fill:       fillValue(0.0),
		Compressor: "zstd",
		Filters: []filter.Spec{
			{ID: "shuffle", ElementSize: 8},
			{ID: "sipcheck"},
		},
	})
	region := Region{{1, 9}, {2, 10}}
	src := make([]float64, region.Size())
	for i := range src {
		src[i] = float64(i) * 0.5
	}
	if err := arr.Write(ctx, src, region); err != nil {
		t.Fatal(err)
	}
	got := make([]float64, region.Size())
	if err := arr.Read(ctx, got, region); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, src) {
		t.Fatal("filtered readback mismatch")
	}
}

func TestCorruptChunk(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[int64]{
		Shape:      []int{4},
		Chunks:     []int{4},
		Compressor: "zstd",
		Filters:    []filter.Spec{{ID: "sipcheck"}},
	})
	if err := arr.Write(ctx, []int64{1, 2, 3, 4}, Whole(arr.Shape())); err != nil {
		t.Fatal(err)
	}
	data, ok, _ := st.Get(ctx, "0")
	if !ok {
		t.Fatal("chunk missing")
	}
	data[len(data)/2] ^= 0xff
	if err := st.Put(ctx, "0", data); err != nil {
		t.Fatal(err)
	}
	err := arr.Read(ctx, make([]int64, 4), Whole(arr.Shape()))
	var cerr *CodecError
	if !errors.As(err, &cerr) {
		t.Fatalf("want CodecError, got %v", err)
	}
}

// TestSparseElision: all-fill chunks are never stored, and a
// stored chunk overwritten with fill is deleted again.
func TestSparseElision(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[float64]{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
		Fill:   fillValue(0.0),
	})
	zeros := make([]float64, 16)
	if err := arr.Write(ctx, zeros, Whole(arr.Shape())); err != nil {
		t.Fatal(err)
	}
	keys, _ := st.List(ctx)
	if len(keys) != 1 || keys[0] != MetaKey {
		t.Fatalf("all-fill write stored chunks: %v", keys)
	}
	// store something, then overwrite it with fill
	if err := arr.Set(ctx, 5, 1, 1); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.Has(ctx, "0.0"); !ok {
		t.Fatal("chunk 0.0 should be stored")
	}
	if err := arr.Set(ctx, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.Has(ctx, "0.0"); ok {
		t.Fatal("all-fill chunk should be deleted on overwrite")
	}
}

// TestNoFillStoresZeros: without a declared fill value there is
// no elision; zero chunks are stored physically.
func TestNoFillStoresZeros(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[int16]{
		Shape:  []int{2},
		Chunks: []int{2},
	})
	if err := arr.Write(ctx, []int16{0, 0}, Whole(arr.Shape())); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.Has(ctx, "0"); !ok {
		t.Fatal("zero chunk should be stored when no fill is declared")
	}
}

func TestIdempotentWrites(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[float32]{
		Shape:      []int{6, 6},
		Chunks:     []int{4, 4},
		Fill:       fillValue[float32](0),
		Compressor: "zlib",
	})
	src := make([]float32, 36)
	for i := range src {
		src[i] = float32(i%7) * 1.5
	}
	write := func() map[string]string {
		if err := arr.Write(ctx, src, Whole(arr.Shape())); err != nil {
			t.Fatal(err)
		}
		keys, _ := st.List(ctx)
		tags := make(map[string]string)
		for _, k := range keys {
			tag, _, err := storage.ETag(ctx, st, k)
			if err != nil {
				t.Fatal(err)
			}
			tags[k] = tag
		}
		return tags
	}
	first := write()
	second := write()
	if len(first) != len(second) {
		t.Fatalf("key sets differ: %v vs %v", first, second)
	}
	for k, tag := range first {
		if second[k] != tag {
			t.Fatalf("chunk %s changed bytes across identical writes", k)
		}
	}
}

// recordingStore logs the order of Get calls.
type recordingStore struct {
	storage.Store
	mu   sync.Mutex
	gets []string
}

func (r *recordingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	r.gets = append(r.gets, key)
	r.mu.Unlock()
	return r.Store.Get(ctx, key)
}

// TestDeterministicFetchOrder: with a single-slot window the
// backend sees fetches in exactly the enumeration order.
func TestDeterministicFetchOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{Store: storage.NewMemStore()}
	arr, err := Create(ctx, rec, Definition[uint16]{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
		Fill:   fillValue[uint16](0),
	})
	if err != nil {
		t.Fatal(err)
	}
	arr.Parallel = 1
	rec.gets = nil
	if err := arr.Read(ctx, make([]uint16, 16), Whole(arr.Shape())); err != nil {
		t.Fatal(err)
	}
	want := []string{"0.0", "0.1", "1.0", "1.1"}
	if !slices.Equal(rec.gets, want) {
		t.Fatalf("fetch order %v, want %v", rec.gets, want)
	}

	// column-major arrays enumerate the first axis fastest
	recF := &recordingStore{Store: storage.NewMemStore()}
	arrF, err := Create(ctx, recF, Definition[uint16]{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
		Fill:   fillValue[uint16](0),
		Order:  OrderF,
	})
	if err != nil {
		t.Fatal(err)
	}
	arrF.Parallel = 1
	recF.gets = nil
	if err := arrF.Read(ctx, make([]uint16, 16), Whole(arrF.Shape())); err != nil {
		t.Fatal(err)
	}
	wantF := []string{"0.0", "1.0", "0.1", "1.1"}
	if !slices.Equal(recF.gets, wantF) {
		t.Fatalf("F fetch order %v, want %v", recF.gets, wantF)
	}
}

// TestNoRefetch: each overlapping chunk is fetched exactly once
// per call, and fully-covered chunks are not fetched on write.
func TestNoRefetch(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{Store: storage.NewMemStore()}
	arr, err := Create(ctx, rec, Definition[int32]{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
		Fill:   fillValue[int32](0),
	})
	if err != nil {
		t.Fatal(err)
	}
	rec.gets = nil
	if err := arr.Read(ctx, make([]int32, 12), Region{{0, 3}, {0, 4}}); err != nil {
		t.Fatal(err)
	}
	counts := make(map[string]int)
	for _, k := range rec.gets {
		counts[k]++
	}
	for k, n := range counts {
		if n != 1 {
			t.Fatalf("chunk %s fetched %d times", k, n)
		}
	}

	// a write covering chunks (0,0) and (0,1) entirely and
	// (1,0), (1,1) partially only fetches the partial ones
	rec.gets = nil
	src := make([]int32, 12)
	for i := range src {
		src[i] = int32(i + 1)
	}
	if err := arr.Write(ctx, src, Region{{0, 3}, {0, 4}}); err != nil {
		t.Fatal(err)
	}
	got := append([]string(nil), rec.gets...)
	slices.Sort(got)
	if !slices.Equal(got, []string{"1.0", "1.1"}) {
		t.Fatalf("write fetched %v, want only the partially covered chunks", got)
	}
}

type failingStore struct {
	storage.Store
	failGet bool
	failPut bool
}

var errBackend = errors.New("backend exploded")

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet && key != MetaKey {
		return nil, false, errBackend
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if f.failPut && key != MetaKey {
		return errBackend
	}
	return f.Store.Put(ctx, key, data)
}

func TestBackendFailurePropagates(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: storage.NewMemStore()}
	arr, err := Create(ctx, fs, Definition[float64]{
		Shape:  []int{8, 8},
		Chunks: []int{2, 2},
		Fill:   fillValue(0.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	fs.failGet = true
	err = arr.Read(ctx, make([]float64, 64), Whole(arr.Shape()))
	if !errors.Is(err, errBackend) {
		t.Fatalf("read error: %v", err)
	}
	err = arr.Write(ctx, make([]float64, 4), Region{{1, 3}, {1, 3}})
	if !errors.Is(err, errBackend) {
		t.Fatalf("write fetch error: %v", err)
	}
	fs.failGet = false
	fs.failPut = true
	src := make([]float64, 64)
	for i := range src {
		src[i] = 1
	}
	err = arr.Write(ctx, src, Whole(arr.Shape()))
	if !errors.Is(err, errBackend) {
		t.Fatalf("write store error: %v", err)
	}
}

func TestOutOfBounds(t *testing.T) {
	ctx := context.Background()
	arr, _ := mkArray(t, Definition[int8]{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
	})
	cases := []Region{
		{{0, 5}, {0, 4}},
		{{-1, 2}, {0, 4}},
		{{0, 4}},
		{{3, 2}, {0, 4}},
	}
	for i, region := range cases {
		err := arr.Read(ctx, make([]int8, 1), region)
		if err == nil {
			t.Errorf("case %d: no error", i)
			continue
		}
		if i != 2 && !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("case %d: %v", i, err)
		}
	}
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemStore()
	if _, err := Create(ctx, st, Definition[int32]{Shape: []int{4}, Chunks: []int{2}}); err != nil {
		t.Fatal(err)
	}
	ro, err := Open[int32](ctx, st, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := ro.Write(ctx, []int32{1}, At(0)); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Write: %v", err)
	}
	if err := ro.Resize(ctx, 8); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Resize: %v", err)
	}
	if err := ro.Append(ctx, []int32{1}, []int{1}, 0); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Append: %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemStore()
	if _, err := Open[int32](ctx, st, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing metadata: %v", err)
	}
	arr, err := Create(ctx, st, Definition[int32]{
		Shape:  []int{4},
		Chunks: []int{2},
		Fill:   fillValue[int32](9),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := arr.Write(ctx, []int32{1, 2}, Region{{1, 3}}); err != nil {
		t.Fatal(err)
	}
	// wrong element type is rejected
	if _, err := Open[float64](ctx, st, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("dtype mismatch: %v", err)
	}
	back, err := Open[int32](ctx, st, false)
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := back.Fill(); !ok || f != 9 {
		t.Fatalf("fill: %v %v", f, ok)
	}
	got := make([]int32, 4)
	if err := back.Read(ctx, got, Whole(back.Shape())); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int32{9, 1, 2, 9}) {
		t.Fatalf("readback: %v", got)
	}
}

func TestCreateRefusesPopulatedPath(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemStore()
	if err := st.Put(ctx, "junk", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_, err := Create(ctx, st, Definition[int32]{Shape: []int{1}, Chunks: []int{1}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("create on populated path: %v", err)
	}
}

func TestScalarArray(t *testing.T) {
	ctx := context.Background()
	arr, st := mkArray(t, Definition[float64]{})
	if err := arr.Write(ctx, []float64{3.25}, Region{}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := st.Has(ctx, "0"); !ok {
		t.Fatal("scalar chunk should be stored under key 0")
	}
	var out [1]float64
	if err := arr.Read(ctx, out[:], Region{}); err != nil {
		t.Fatal(err)
	}
	if out[0] != 3.25 {
		t.Fatalf("scalar readback: %v", out[0])
	}
}

func TestDirStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arr, err := Create(ctx, st, Definition[float64]{
		Shape:      []int{9, 9},
		Chunks:     []int{4, 4},
		Fill:       fillValue(0.0),
		Compressor: "zstd",
	})
	if err != nil {
		t.Fatal(err)
	}
	region := Region{{1, 8}, {3, 9}}
	src := make([]float64, region.Size())
	for i := range src {
		src[i] = float64(i) + 0.25
	}
	if err := arr.Write(ctx, src, region); err != nil {
		t.Fatal(err)
	}
	back, err := Open[float64](ctx, st, false)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]float64, region.Size())
	if err := back.Read(ctx, got, region); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, src) {
		t.Fatal("dir store readback mismatch")
	}
}
