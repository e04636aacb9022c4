package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

func mustNewZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	return dec
}

var zstdEncPool = sync.Pool{
	New: func() any {
		return mustNewZstdEncoder()
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		return mustNewZstdDecoder()
	},
}

func compressZstd(data []byte) []byte {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(data, nil)
	zstdEncPool.Put(enc)
	return out
}

func decompressZstd(data []byte) ([]byte, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(data, nil)
	zstdDecPool.Put(dec)
	return out, err
}

// ReadFrameFile reads the raw samples of a frame file outside any store.
// Files ending in .zst are decompressed.
func ReadFrameFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Name: path}
		}
		return nil, fmt.Errorf("failed to read frame file: %w", err)
	}
	if !IsCompressed(path) {
		return data, nil
	}
	raw, err := decompressZstd(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return raw, nil
}

// WriteFrameFile writes raw samples to path, compressing for .zst.
func WriteFrameFile(path string, raw []byte) error {
	data := raw
	if IsCompressed(path) {
		data = compressZstd(raw)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write frame file: %w", err)
	}
	return nil
}
