// Package tilecodec encodes the per-field tile blocks of a fragment:
// optional block compression plus an xxhash64 integrity checksum.
package tilecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio).
	CompressionZSTD Compression = 2
)

var (
	// ErrCorruptBlock is returned when a block fails structural validation.
	ErrCorruptBlock = errors.New("corrupt tile block")
	// ErrChecksum is returned when a block fails checksum validation.
	ErrChecksum = errors.New("tile block checksum mismatch")
)

// Block layout:
//
//	[UncompressedSize uint32][CompressedSize uint32][Checksum uint64][Data...]
//
// CompressedSize == 0 marks an uncompressed block. The checksum covers the
// uncompressed bytes.
const blockHeaderSize = 16

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// EncodeBlock encodes one field block with the given compression.
func EncodeBlock(data []byte, c Compression) ([]byte, error) {
	sum := xxhash.Sum64(data)

	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionNone:
	default:
		return nil, fmt.Errorf("unknown compression type %d", c)
	}

	// Fall back to the raw bytes when compression does not pay off.
	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		binary.LittleEndian.PutUint64(out[8:], sum)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	binary.LittleEndian.PutUint64(out[8:], sum)
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// DecodeBlock decodes one field block, verifying its checksum. It returns
// the uncompressed bytes and the number of encoded bytes consumed.
func DecodeBlock(data []byte, c Compression) ([]byte, int, error) {
	if len(data) < blockHeaderSize {
		return nil, 0, fmt.Errorf("%w: truncated header", ErrCorruptBlock)
	}
	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])
	sum := binary.LittleEndian.Uint64(data[8:])

	var (
		out      []byte
		consumed int
		err      error
	)
	if compressedSize == 0 {
		consumed = blockHeaderSize + int(uncompressedSize)
		if len(data) < consumed {
			return nil, 0, fmt.Errorf("%w: truncated block", ErrCorruptBlock)
		}
		out = make([]byte, uncompressedSize)
		copy(out, data[blockHeaderSize:consumed])
	} else {
		consumed = blockHeaderSize + int(compressedSize)
		if len(data) < consumed {
			return nil, 0, fmt.Errorf("%w: truncated block", ErrCorruptBlock)
		}
		payload := data[blockHeaderSize:consumed]
		switch c {
		case CompressionLZ4:
			out = make([]byte, uncompressedSize)
			var n int
			n, err = lz4.UncompressBlock(payload, out)
			if err == nil && uint32(n) != uncompressedSize {
				err = fmt.Errorf("%w: unexpected decoded size", ErrCorruptBlock)
			}
		case CompressionZSTD:
			dec := getZstdDecoder()
			out, err = dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
			zstdDecoderPool.Put(dec)
		default:
			err = fmt.Errorf("%w: compressed block with compression NONE", ErrCorruptBlock)
		}
		if err != nil {
			return nil, 0, err
		}
	}

	if xxhash.Sum64(out) != sum {
		return nil, 0, ErrChecksum
	}
	return out, consumed, nil
}
