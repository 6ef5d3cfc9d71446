package query

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/axisdb/axisdb/internal/conv"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
)

// sparseCell locates one visible cell inside a fragment.
type sparseCell struct {
	coord    []byte
	fragment *storage.Fragment
	index    uint64
}

func (q *Query) sparseRead() error {
	if q.schema.DimNum() != 1 {
		return fmt.Errorf("sparse reads support exactly one dimension, schema has %d",
			q.schema.DimNum())
	}
	dim := q.schema.Dimensions[0]
	size := dim.Type.Size()

	var rs []ranges.Range
	if q.sa == nil {
		rs = []ranges.Range{dim.Domain}
	} else {
		if q.sa.IsEmpty(0) {
			q.finishEmpty()
			return nil
		}
		var err error
		rs, err = q.sa.RangesForDim(0)
		if err != nil {
			return err
		}
	}
	fragments, err := q.array.Fragments()
	if err != nil {
		return err
	}

	// Newest fragment wins per coordinate. Cell identity is the coordinate's
	// cell delta from the domain lower bound, a dense uint64 key.
	seen := roaring64.New()
	lo := dim.Domain.Start(size)
	var cells []sparseCell
	for fi := len(fragments) - 1; fi >= 0; fi-- {
		frag := fragments[fi]
		coords, ok := frag.Fields[dim.Name]
		if !ok {
			continue
		}
		matched := roaring.New()
		for i := uint64(0); i < frag.NumCells; i++ {
			coord := coords[i*size : (i+1)*size]
			key := cellDelta(dim.Type, coord, lo)
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
			for _, r := range rs {
				if ranges.ContainsValue(dim.Type, r, coord) {
					pos, err := conv.Uint64ToUint32(i)
					if err != nil {
						return fmt.Errorf("fragment %q: %w", frag.Name, err)
					}
					matched.Add(pos)
					break
				}
			}
		}
		it := matched.Iterator()
		for it.HasNext() {
			i := uint64(it.Next())
			cells = append(cells, sparseCell{
				coord:    coords[i*size : (i+1)*size],
				fragment: frag,
				index:    i,
			})
		}
	}

	sort.Slice(cells, func(i, j int) bool {
		return ranges.CompareValues(dim.Type, cells[i].coord, cells[j].coord) < 0
	})

	total := uint64(len(cells))
	maxCells, err := q.maxCellsForBuffers()
	if err != nil {
		return err
	}
	if q.cursor >= total {
		q.finishEmpty()
		return nil
	}
	emit := total - q.cursor
	if emit > maxCells {
		emit = maxCells
	}

	for c := uint64(0); c < emit; c++ {
		cell := cells[q.cursor+c]
		for name, b := range q.buffers {
			if name == dim.Name {
				copy(b.Data[c*size:(c+1)*size], cell.coord)
				continue
			}
			attr, err := q.schema.Attribute(name)
			if err != nil {
				return err
			}
			src, ok := cell.fragment.Fields[name]
			if !ok {
				return fmt.Errorf("fragment %q has no data for attribute %q",
					cell.fragment.Name, name)
			}
			asize := attr.Type.Size()
			copy(b.Data[c*asize:(c+1)*asize], src[cell.index*asize:(cell.index+1)*asize])
		}
	}

	for name, b := range q.buffers {
		dt, _ := q.schema.FieldType(name)
		b.setSize(emit * dt.Size())
	}
	q.cursor += emit
	q.hasResults = emit > 0
	if q.cursor < total {
		q.status = StatusIncomplete
	} else {
		q.status = StatusCompleted
	}
	return nil
}

func (q *Query) sparseWrite() error {
	if q.layout != LayoutUnordered && q.layout != LayoutGlobalOrder {
		return fmt.Errorf("%w: sparse writes require UNORDERED, got %s", ErrBadLayout, q.layout)
	}
	if q.schema.DimNum() != 1 {
		return fmt.Errorf("sparse writes support exactly one dimension, schema has %d",
			q.schema.DimNum())
	}
	dim := q.schema.Dimensions[0]
	size := dim.Type.Size()
	coordBuf, ok := q.buffers[dim.Name]
	if !ok {
		return fmt.Errorf("%w: sparse writes require a %q coordinate buffer",
			ErrInvalidBuffer, dim.Name)
	}
	numCells := coordBuf.capacity() / size
	for i := uint64(0); i < numCells; i++ {
		coord := coordBuf.Data[i*size : (i+1)*size]
		if !ranges.ContainsValue(dim.Type, dim.Domain, coord) {
			return fmt.Errorf("%w: coordinate %d outside the %q domain",
				ranges.ErrOutOfDomain, i, dim.Name)
		}
	}
	fields := make(map[string][]byte, len(q.buffers))
	for name, b := range q.buffers {
		dt, err := q.schema.FieldType(name)
		if err != nil {
			return err
		}
		want := numCells * dt.Size()
		if b.capacity() != want {
			return fmt.Errorf("%w: field %q holds %d bytes for %d cells, want %d",
				ErrInvalidBuffer, name, b.capacity(), numCells, want)
		}
		data := make([]byte, want)
		copy(data, b.Data[:want])
		fields[name] = data
		b.setSize(want)
	}
	name := q.fragmentName
	if name == "" {
		name = storage.GenerateFragmentName(q.array.TimestampEnd(), schema.FormatVersion)
	}
	if err := q.array.WriteFragment(name, numCells, fields); err != nil {
		return err
	}
	q.status = StatusCompleted
	return nil
}
