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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"

	"github.com/zgrid/zarr"
	"github.com/zgrid/zarr/filter"
	"github.com/zgrid/zarr/storage"
)

var (
	dashv bool
	dashh bool
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logf(f string, args ...interface{}) {
	if dashv {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
}

func open(dir string) *storage.DirStore {
	st, err := storage.NewDirStore(dir)
	if err != nil {
		exitf("opening %s: %s\n", dir, err)
	}
	if dashv {
		st.Log = logf
	}
	return st
}

// definition is the YAML document accepted by the create command.
type definition struct {
	Shape      []int         `json:"shape"`
	Chunks     []int         `json:"chunks"`
	Dtype      string        `json:"dtype"`
	Fill       *float64      `json:"fill"`
	Compressor string        `json:"compressor"`
	Filters    []filter.Spec `json:"filters"`
	Order      string        `json:"order"`
}

func create(dir, deffile string) {
	buf, err := os.ReadFile(deffile)
	if err != nil {
		exitf("reading %s: %s\n", deffile, err)
	}
	var def definition
	if err := yaml.Unmarshal(buf, &def); err != nil {
		exitf("parsing %s: %s\n", deffile, err)
	}
	st := open(dir)
	if err := dispatch(def.Dtype, func(d dtyped) error {
		return d.create(context.Background(), st, &def)
	}); err != nil {
		exitf("create: %s\n", err)
	}
	logf("created %s (%v / %v, dtype %s)", dir, def.Shape, def.Chunks, def.Dtype)
}

func info(dir string) {
	ctx := context.Background()
	st := open(dir)
	raw, ok, err := st.Get(ctx, zarr.MetaKey)
	if err != nil {
		exitf("reading metadata: %s\n", err)
	}
	if !ok {
		exitf("%s: no array metadata\n", dir)
	}
	var meta zarr.ArrayMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		exitf("parsing metadata: %s\n", err)
	}
	fmt.Printf("shape:      %v\n", meta.Shape)
	fmt.Printf("chunks:     %v\n", meta.Chunks)
	fmt.Printf("dtype:      %s\n", meta.Dtype)
	comp := "none"
	if meta.Compressor != nil {
		comp = meta.Compressor.ID
	}
	fmt.Printf("compressor: %s\n", comp)
	if len(meta.Filters) > 0 {
		fmt.Printf("filters:    ")
		for i := range meta.Filters {
			if i > 0 {
				fmt.Printf(", ")
			}
			fmt.Printf("%s", meta.Filters[i].ID)
		}
		fmt.Printf("\n")
	}
	fmt.Printf("fill:       %s\n", string(meta.FillValue))
	fmt.Printf("order:      %s\n", meta.Order)
	size, err := storage.StoredSize(ctx, st)
	if err != nil {
		exitf("sizing %s: %s\n", dir, err)
	}
	fmt.Printf("stored:     %d bytes\n", size)
	if !dashv {
		return
	}
	keys, err := st.List(ctx)
	if err != nil {
		exitf("listing %s: %s\n", dir, err)
	}
	for _, k := range keys {
		if k == zarr.MetaKey {
			continue
		}
		etag, ok, err := storage.ETag(ctx, st, k)
		if err != nil {
			exitf("digesting %s: %s\n", k, err)
		}
		if !ok {
			continue
		}
		fmt.Printf("chunk %-12s %s\n", k, etag)
	}
}

func resize(dir string, args []string) {
	ctx := context.Background()
	st := open(dir)
	shape := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			exitf("bad extent %q: %s\n", a, err)
		}
		shape[i] = n
	}
	raw, ok, err := st.Get(ctx, zarr.MetaKey)
	if err != nil || !ok {
		exitf("%s: no array metadata\n", dir)
	}
	var meta zarr.ArrayMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		exitf("parsing metadata: %s\n", err)
	}
	if err := dispatch(meta.Dtype, func(d dtyped) error {
		return d.resize(ctx, st, shape)
	}); err != nil {
		exitf("resize: %s\n", err)
	}
	logf("resized %s to %v", dir, shape)
}

// dtyped adapts the generic array entry points to the
// dtype string stored in the metadata document.
type dtyped interface {
	create(ctx context.Context, st storage.Store, def *definition) error
	resize(ctx context.Context, st storage.Store, shape []int) error
}

type typed[T zarr.Scalar] struct{}

func (typed[T]) create(ctx context.Context, st storage.Store, def *definition) error {
	zd := zarr.Definition[T]{
		Shape:      def.Shape,
		Chunks:     def.Chunks,
		Compressor: def.Compressor,
		Filters:    def.Filters,
	}
	if def.Fill != nil {
		v := T(*def.Fill)
		zd.Fill = &v
	}
	switch def.Order {
	case "", "C":
	case "F":
		zd.Order = zarr.OrderF
	default:
		return fmt.Errorf("bad order %q", def.Order)
	}
	_, err := zarr.Create(ctx, st, zd)
	return err
}

func (typed[T]) resize(ctx context.Context, st storage.Store, shape []int) error {
	arr, err := zarr.Open[T](ctx, st, true)
	if err != nil {
		return err
	}
	if dashv {
		arr.Logf = logf
	}
	return arr.Resize(ctx, shape...)
}

func dispatch(dtype string, fn func(dtyped) error) error {
	switch dtype {
	case "|i1", "i1":
		return fn(typed[int8]{})
	case "<i2", "i2":
		return fn(typed[int16]{})
	case "<i4", "i4":
		return fn(typed[int32]{})
	case "<i8", "i8":
		return fn(typed[int64]{})
	case "|u1", "u1":
		return fn(typed[uint8]{})
	case "<u2", "u2":
		return fn(typed[uint16]{})
	case "<u4", "u4":
		return fn(typed[uint32]{})
	case "<u8", "u8":
		return fn(typed[uint64]{})
	case "<f4", "f4":
		return fn(typed[float32]{})
	case "<f8", "f8":
		return fn(typed[float64]{})
	default:
		return fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s create <dir> <def.yaml>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        create a new array from a definition\n")
		fmt.Fprintf(os.Stderr, "    %s [-v] info <dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        describe an array (-v adds per-chunk digests)\n")
		fmt.Fprintf(os.Stderr, "    %s resize <dir> <extent>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        change the shape of an array\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		if len(args) != 3 {
			exitf("usage: create <dir> <def.yaml>\n")
		}
		create(args[1], args[2])
	case "info":
		if len(args) != 2 {
			exitf("usage: info <dir>\n")
		}
		info(args[1])
	case "resize":
		if len(args) < 2 {
			exitf("usage: resize <dir> <extent>...\n")
		}
		resize(args[1], args[2:])
	default:
		exitf("unknown command %q\n", args[0])
	}
}
