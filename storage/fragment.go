package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/axisdb/axisdb/internal/tilecodec"
)

const (
	fragmentsDirName = "__fragments"
	fragmentExt      = ".frag"

	fragmentMagic = uint32(0x41584652) // "AXFR"
)

// ErrCorruptFragment is returned when a fragment file fails validation.
var ErrCorruptFragment = errors.New("corrupt fragment")

// Fragment is one timestamped append to an array: a cell count plus the raw
// bytes of every written field.
type Fragment struct {
	Name      string
	Timestamp uint64
	NumCells  uint64
	Fields    map[string][]byte
}

// GenerateFragmentName builds a fragment name embedding the write timestamp
// and the format version. Paired label writes pass one generated name to
// both sibling arrays so their fragments match.
func GenerateFragmentName(timestamp uint64, formatVersion uint32) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("__%d_%d_%s_%d", timestamp, timestamp, id, formatVersion)
}

// parseFragmentName extracts the start timestamp from a fragment name.
func parseFragmentName(name string) (uint64, error) {
	parts := strings.Split(strings.TrimPrefix(name, "__"), "_")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: bad fragment name %q", ErrCorruptFragment, name)
	}
	ts, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad fragment timestamp in %q", ErrCorruptFragment, name)
	}
	return ts, nil
}

// encode serializes the fragment with the given block compression.
//
// Layout (little endian):
//
//	magic u32 | version u32 | timestamp u64 | numCells u64 |
//	compression u8 | numFields u32 |
//	repeat: nameLen u16 | name | block
func (f *Fragment) encode(comp tilecodec.Compression, version uint32) ([]byte, error) {
	names := make([]string, 0, len(f.Fields))
	for name := range f.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint32(buf, fragmentMagic)
	buf = binary.LittleEndian.AppendUint32(buf, version)
	buf = binary.LittleEndian.AppendUint64(buf, f.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, f.NumCells)
	buf = append(buf, byte(comp))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(names)))
	for _, name := range names {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		block, err := tilecodec.EncodeBlock(f.Fields[name], comp)
		if err != nil {
			return nil, err
		}
		buf = append(buf, block...)
	}
	return buf, nil
}

// decodeFragment parses an encoded fragment.
func decodeFragment(name string, data []byte) (*Fragment, error) {
	if len(data) < 29 {
		return nil, fmt.Errorf("%w: truncated fragment %q", ErrCorruptFragment, name)
	}
	if binary.LittleEndian.Uint32(data[0:]) != fragmentMagic {
		return nil, fmt.Errorf("%w: bad magic in %q", ErrCorruptFragment, name)
	}
	f := &Fragment{
		Name:      name,
		Timestamp: binary.LittleEndian.Uint64(data[8:]),
		NumCells:  binary.LittleEndian.Uint64(data[16:]),
		Fields:    make(map[string][]byte),
	}
	comp := tilecodec.Compression(data[24])
	numFields := binary.LittleEndian.Uint32(data[25:])
	off := 29
	for i := uint32(0); i < numFields; i++ {
		if len(data) < off+2 {
			return nil, fmt.Errorf("%w: truncated field header in %q", ErrCorruptFragment, name)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if len(data) < off+nameLen {
			return nil, fmt.Errorf("%w: truncated field name in %q", ErrCorruptFragment, name)
		}
		fieldName := string(data[off : off+nameLen])
		off += nameLen
		block, consumed, err := tilecodec.DecodeBlock(data[off:], comp)
		if err != nil {
			return nil, fmt.Errorf("fragment %q field %q: %w", name, fieldName, err)
		}
		f.Fields[fieldName] = block
		off += consumed
	}
	return f, nil
}

// writeFragmentFile persists an encoded fragment atomically.
func writeFragmentFile(dir string, f *Fragment, comp tilecodec.Compression, version uint32, fsync bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := f.encode(comp, version)
	if err != nil {
		return err
	}
	final := filepath.Join(dir, f.Name+fragmentExt)
	tmp := final + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if fsync {
		if err := file.Sync(); err != nil {
			file.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, final)
}

// loadFragments reads every fragment in dir whose timestamp falls inside
// the window [tsStart, tsEnd], sorted oldest first.
func loadFragments(dir string, tsStart, tsEnd uint64) ([]*Fragment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Fragment
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fragmentExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fragmentExt)
		ts, err := parseFragmentName(name)
		if err != nil {
			return nil, err
		}
		if ts < tsStart || ts > tsEnd {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		f, err := decodeFragment(name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
