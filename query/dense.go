package query

import (
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/internal/bytesconv"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
)

// cellDelta returns the number of cells between the domain lower bound lo
// and the value v, both raw scalars of datatype dt.
func cellDelta(dt datatype.Datatype, v, lo []byte) uint64 {
	switch dt {
	case datatype.Uint8:
		return uint64(bytesconv.Load[uint8](v)) - uint64(bytesconv.Load[uint8](lo))
	case datatype.Uint16:
		return uint64(bytesconv.Load[uint16](v)) - uint64(bytesconv.Load[uint16](lo))
	case datatype.Uint32:
		return uint64(bytesconv.Load[uint32](v)) - uint64(bytesconv.Load[uint32](lo))
	case datatype.Uint64:
		return bytesconv.Load[uint64](v) - bytesconv.Load[uint64](lo)
	case datatype.Int8:
		return uint64(int64(bytesconv.Load[int8](v)) - int64(bytesconv.Load[int8](lo)))
	case datatype.Int16:
		return uint64(int64(bytesconv.Load[int16](v)) - int64(bytesconv.Load[int16](lo)))
	case datatype.Int32:
		return uint64(int64(bytesconv.Load[int32](v)) - int64(bytesconv.Load[int32](lo)))
	default:
		return uint64(bytesconv.Load[int64](v) - bytesconv.Load[int64](lo))
	}
}

// offsetValue encodes the scalar lo + off into dst.
func offsetValue(dt datatype.Datatype, lo []byte, off uint64, dst []byte) {
	switch dt {
	case datatype.Uint8:
		bytesconv.Store(dst, bytesconv.Load[uint8](lo)+uint8(off))
	case datatype.Uint16:
		bytesconv.Store(dst, bytesconv.Load[uint16](lo)+uint16(off))
	case datatype.Uint32:
		bytesconv.Store(dst, bytesconv.Load[uint32](lo)+uint32(off))
	case datatype.Uint64:
		bytesconv.Store(dst, bytesconv.Load[uint64](lo)+off)
	case datatype.Int8:
		bytesconv.Store(dst, bytesconv.Load[int8](lo)+int8(off))
	case datatype.Int16:
		bytesconv.Store(dst, bytesconv.Load[int16](lo)+int16(off))
	case datatype.Int32:
		bytesconv.Store(dst, bytesconv.Load[int32](lo)+int32(off))
	default:
		bytesconv.Store(dst, bytesconv.Load[int64](lo)+int64(off))
	}
}

// dimSelection is the resolved selection on one dense dimension: absolute
// cell-offset intervals relative to the domain lower bound, in range order.
type dimSelection struct {
	intervals [][2]uint64
	count     uint64
}

func (s *dimSelection) absOffset(sel uint64) uint64 {
	for _, iv := range s.intervals {
		n := iv[1] - iv[0] + 1
		if sel < n {
			return iv[0] + sel
		}
		sel -= n
	}
	// Unreachable when sel < count.
	return 0
}

// resolveSelection computes the per-dimension selections of a read, or nil
// when a dimension is explicitly initialized with no selection.
func (q *Query) resolveSelection() ([]*dimSelection, error) {
	sels := make([]*dimSelection, q.schema.DimNum())
	for d, dim := range q.schema.Dimensions {
		var rs []ranges.Range
		if q.sa == nil {
			rs = []ranges.Range{dim.Domain}
		} else {
			if q.sa.IsEmpty(d) {
				return nil, nil
			}
			var err error
			rs, err = q.sa.RangesForDim(d)
			if err != nil {
				return nil, err
			}
		}
		sel := &dimSelection{}
		size := dim.Type.Size()
		lo := dim.Domain.Start(size)
		for _, r := range rs {
			a := cellDelta(dim.Type, r.Start(size), lo)
			b := cellDelta(dim.Type, r.End(size), lo)
			if b < a {
				continue
			}
			sel.intervals = append(sel.intervals, [2]uint64{a, b})
			sel.count += b - a + 1
		}
		if sel.count == 0 {
			return nil, nil
		}
		sels[d] = sel
	}
	return sels, nil
}

// maxCellsForBuffers returns how many whole cells fit in every bound buffer.
func (q *Query) maxCellsForBuffers() (uint64, error) {
	var maxCells uint64
	first := true
	for name, b := range q.buffers {
		dt, err := q.schema.FieldType(name)
		if err != nil {
			return 0, err
		}
		cells := b.capacity() / dt.Size()
		if first || cells < maxCells {
			maxCells = cells
			first = false
		}
	}
	return maxCells, nil
}

// finishEmpty completes a read that selects nothing.
func (q *Query) finishEmpty() {
	for _, b := range q.buffers {
		b.setSize(0)
	}
	q.hasResults = false
	q.status = StatusCompleted
}

func (q *Query) denseRead() error {
	sels, err := q.resolveSelection()
	if err != nil {
		return err
	}
	fragments, err := q.array.Fragments()
	if err != nil {
		return err
	}
	if sels == nil || len(fragments) == 0 {
		q.finishEmpty()
		return nil
	}
	// Dense fragments cover the full domain; the newest one wins.
	source := fragments[len(fragments)-1]

	// Row-major strides over the full domain.
	nd := q.schema.DimNum()
	strides := make([]uint64, nd)
	strides[nd-1] = 1
	for d := nd - 2; d >= 0; d-- {
		size, err := q.schema.Dimensions[d+1].DomainSize()
		if err != nil {
			return err
		}
		strides[d] = strides[d+1] * size
	}

	total := uint64(1)
	for _, sel := range sels {
		total *= sel.count
	}
	maxCells, err := q.maxCellsForBuffers()
	if err != nil {
		return err
	}
	if q.cursor >= total {
		q.finishEmpty()
		return nil
	}
	remaining := total - q.cursor
	emit := remaining
	if emit > maxCells {
		emit = maxCells
	}

	abs := make([]uint64, nd)
	for c := uint64(0); c < emit; c++ {
		sel := q.cursor + c
		// Decompose the row-major selection index into per-dim offsets.
		for d := nd - 1; d >= 0; d-- {
			abs[d] = sels[d].absOffset(sel % sels[d].count)
			sel /= sels[d].count
		}
		var gOff uint64
		for d := 0; d < nd; d++ {
			gOff += abs[d] * strides[d]
		}
		for name, b := range q.buffers {
			if q.schema.IsDimension(name) {
				d := dimIndex(q.schema, name)
				dim := q.schema.Dimensions[d]
				size := dim.Type.Size()
				offsetValue(dim.Type, dim.Domain.Start(size), abs[d], b.Data[c*size:])
				continue
			}
			attr, err := q.schema.Attribute(name)
			if err != nil {
				return err
			}
			src, ok := source.Fields[name]
			if !ok {
				return fmt.Errorf("fragment %q has no data for attribute %q", source.Name, name)
			}
			size := attr.Type.Size()
			copy(b.Data[c*size:(c+1)*size], src[gOff*size:(gOff+1)*size])
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

func dimIndex(s *schema.ArraySchema, name string) int {
	for i, d := range s.Dimensions {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (q *Query) denseWrite() error {
	if q.layout != LayoutRowMajor {
		return fmt.Errorf("%w: dense writes require ROW_MAJOR, got %s", ErrBadLayout, q.layout)
	}
	if q.sa != nil {
		for d := 0; d < q.sa.DimNum(); d++ {
			if !q.sa.IsDefault(d) {
				return fmt.Errorf("%w: dimension %d carries explicit ranges", ErrNotFullDomain, d)
			}
		}
	}
	numCells := uint64(1)
	for _, dim := range q.schema.Dimensions {
		n, err := dim.DomainSize()
		if err != nil {
			return err
		}
		numCells *= n
	}
	fields := make(map[string][]byte, len(q.buffers))
	for name, b := range q.buffers {
		attr, err := q.schema.Attribute(name)
		if err != nil {
			return fmt.Errorf("dense writes accept attribute buffers only: %w", err)
		}
		want := numCells * attr.Type.Size()
		if b.capacity() != want {
			return fmt.Errorf("%w: attribute %q holds %d bytes, the full domain needs %d",
				ErrInvalidBuffer, name, b.capacity(), want)
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
