package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axisdb/axisdb/schema"
)

const schemaFileName = "__schema.json"

// Names of the label sibling arrays and the stored label declaration,
// relative to a dimension label directory.
const (
	IndexedArrayName    = "indexed"
	LabelledArrayName   = "labelled"
	LabelSchemaFileName = "__label.json"
)

var (
	// ErrArrayNotOpen is returned when an operation requires an open array.
	ErrArrayNotOpen = errors.New("array is not open")

	// ErrArrayAlreadyOpen is returned when opening an array twice.
	ErrArrayAlreadyOpen = errors.New("array is already open")

	// ErrUnsupportedEncryption is returned for any encryption type other
	// than NoEncryption.
	ErrUnsupportedEncryption = errors.New("encryption is not supported")

	// ErrNoSuchArray is returned when the array directory does not exist.
	ErrNoSuchArray = errors.New("array does not exist")
)

// Create materializes a new array at uri: the directory, the serialized
// schema, and the sibling arrays of every declared dimension label.
func Create(c *Context, uri string, s *schema.ArraySchema) error {
	if err := s.Check(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(uri, schemaFileName)); err == nil {
		return fmt.Errorf("array already exists at %q", uri)
	}
	if err := os.MkdirAll(uri, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(uri, schemaFileName), data, 0o644); err != nil {
		return err
	}

	// Create the sibling arrays of each dimension label.
	for _, ref := range s.DimensionLabels {
		parentDim := s.Dimensions[ref.DimensionIndex]
		var indexed *schema.ArraySchema
		if ref.Order == schema.UnorderedLabels {
			indexed, err = ref.UnorderedIndexedArraySchema(parentDim)
		} else {
			indexed, err = ref.IndexedArraySchema(parentDim)
		}
		if err != nil {
			return err
		}
		labelled, err := ref.LabelledArraySchema(parentDim)
		if err != nil {
			return err
		}
		labelURI := filepath.Join(uri, filepath.FromSlash(ref.URI))
		if err := Create(c, filepath.Join(labelURI, IndexedArrayName), indexed); err != nil {
			return err
		}
		if err := Create(c, filepath.Join(labelURI, LabelledArrayName), labelled); err != nil {
			return err
		}
		// The stored declaration is what opened labels are validated against.
		refData, err := json.MarshalIndent(ref, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(labelURI, LabelSchemaFileName), refData, 0o644); err != nil {
			return err
		}
	}
	c.logger.Debug("array created", "uri", uri, "type", s.Type.String())
	return nil
}

// Array is one physical array: a schema plus the fragments visible in the
// timestamp window it was opened under.
type Array struct {
	ctx *Context
	uri string

	mu        sync.Mutex
	open      bool
	queryType QueryType
	tsStart   uint64
	tsEnd     uint64
	schema    *schema.ArraySchema
	fragments []*Fragment
}

// NewArray creates a handle on the array at uri. The handle is closed until
// Open is called.
func NewArray(c *Context, uri string) *Array {
	return &Array{ctx: c, uri: uri}
}

// URI returns the array location.
func (a *Array) URI() string { return a.uri }

// Open loads the schema and the fragments whose timestamps fall in
// [tsStart, tsEnd]. A tsEnd of zero means the current time.
func (a *Array) Open(qt QueryType, tsStart, tsEnd uint64, enc EncryptionType, key []byte) error {
	if !qt.IsValid() {
		return fmt.Errorf("unknown query type %s", qt)
	}
	if enc != NoEncryption || len(key) != 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedEncryption, enc)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return fmt.Errorf("%w: %q", ErrArrayAlreadyOpen, a.uri)
	}
	data, err := os.ReadFile(filepath.Join(a.uri, schemaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrNoSuchArray, a.uri)
		}
		return err
	}
	var s schema.ArraySchema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid schema at %q: %w", a.uri, err)
	}
	if tsEnd == 0 {
		tsEnd = uint64(time.Now().UnixMilli())
	}
	fragments, err := loadFragments(filepath.Join(a.uri, fragmentsDirName), tsStart, tsEnd)
	if err != nil {
		return err
	}
	a.ctx.stats.FragmentsLoaded.Add(uint64(len(fragments)))

	a.open = true
	a.queryType = qt
	a.tsStart = tsStart
	a.tsEnd = tsEnd
	a.schema = &s
	a.fragments = fragments
	a.ctx.logger.Debug("array opened",
		"uri", a.uri, "query_type", qt.String(), "fragments", len(fragments))
	return nil
}

// Close releases the open state. Idempotent.
func (a *Array) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	a.schema = nil
	a.fragments = nil
}

// IsOpen reports whether the array is open.
func (a *Array) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// IsEmpty reports whether the array has no visible fragments.
func (a *Array) IsEmpty() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return false, fmt.Errorf("%w: %q", ErrArrayNotOpen, a.uri)
	}
	return len(a.fragments) == 0, nil
}

// Schema returns the latest schema of the open array.
func (a *Array) Schema() (*schema.ArraySchema, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, fmt.Errorf("%w: %q", ErrArrayNotOpen, a.uri)
	}
	return a.schema, nil
}

// QueryType returns the mode the array was opened under.
func (a *Array) QueryType() (QueryType, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return 0, fmt.Errorf("%w: %q", ErrArrayNotOpen, a.uri)
	}
	return a.queryType, nil
}

// TimestampStart returns the opened window start.
func (a *Array) TimestampStart() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tsStart
}

// TimestampEnd returns the opened window end.
func (a *Array) TimestampEnd() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tsEnd
}

// Fragments returns the visible fragments, oldest first.
func (a *Array) Fragments() ([]*Fragment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, fmt.Errorf("%w: %q", ErrArrayNotOpen, a.uri)
	}
	return a.fragments, nil
}

// WriteFragment persists a fragment under the given name and makes it
// visible on this handle. The fragment timestamp is taken from the name so
// that paired writes sharing a name share a timestamp.
func (a *Array) WriteFragment(name string, numCells uint64, fields map[string][]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return fmt.Errorf("%w: %q", ErrArrayNotOpen, a.uri)
	}
	if a.queryType != QueryTypeWrite && a.queryType != QueryTypeModifyExclusive {
		return fmt.Errorf("cannot write fragment to array opened for %s", a.queryType)
	}
	ts, err := parseFragmentName(name)
	if err != nil {
		return err
	}
	f := &Fragment{Name: name, Timestamp: ts, NumCells: numCells, Fields: fields}
	dir := filepath.Join(a.uri, fragmentsDirName)
	if err := writeFragmentFile(dir, f, a.ctx.compression, schema.FormatVersion, a.ctx.fsync); err != nil {
		return err
	}
	a.fragments = append(a.fragments, f)
	a.ctx.stats.FragmentsWritten.Add(1)
	a.ctx.logger.Debug("fragment written",
		"uri", a.uri, "fragment", name, "cells", numCells)
	return nil
}
