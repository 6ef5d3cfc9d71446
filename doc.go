// Package axisdb provides an embedded multi-dimensional array storage
// engine with dimension labels.
//
// Arrays are dense or sparse grids of typed cells addressed by integer
// dimension indices. A dimension label attaches an external continuous
// coordinate system to one dimension, so callers can address it by label
// value instead of index. Each label is stored as a pair of sibling arrays:
// a dense indexed array mapping index -> label and a sparse labelled array
// mapping label -> index.
//
// # Quick Start
//
// Create an array with an increasing label on its only dimension:
//
//	e := axisdb.New()
//	defer e.Close()
//
//	dim := schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))
//	label := schema.NewLabelReference("height", 0, schema.IncreasingLabels,
//	    datatype.Uint64, ranges.Make[uint64](0, 400))
//	s, _ := schema.New(schema.Dense,
//	    []schema.Dimension{dim},
//	    []schema.Attribute{schema.NewAttribute("a", datatype.Float64)},
//	    []schema.LabelReference{label})
//	_ = e.CreateArray("./data/example", s)
//
// Write the label, then read back by label range:
//
//	arr, _ := e.OpenArray("./data/example", storage.QueryTypeWrite)
//	w, _ := arr.NewQuery()
//	_ = w.SetDataBuffer("height", query.BufferOf(labels))
//	_ = w.Submit(ctx)
//	arr.Close()
//
//	arr, _ = e.OpenArray("./data/example", storage.QueryTypeRead)
//	r, _ := arr.NewQuery()
//	_ = r.AddLabelRange(0, "height", ranges.Make[uint64](20, 30))
//	_ = r.SetDataBuffer("a", query.BufferOf(out))
//	_ = r.Submit(ctx)
//
// Label ranges resolve to index ranges before the parent query runs, by
// bounded searches against the sorted labelled array.
package axisdb
