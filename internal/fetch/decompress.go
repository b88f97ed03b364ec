package fetch

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/BadgerOps/mirrorlist/internal/safety"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	gzipMagic = []byte{0x1f, 0x8b}
)

// decompress detects a compressed payload by magic number and expands it,
// bounded by limit. Some mirrors publish lists and READMEs compressed;
// anything else is returned as-is.
func decompress(data []byte, limit int64) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	case bytes.HasPrefix(data, xzMagic):
		r, err = xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
	case bytes.HasPrefix(data, gzipMagic):
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		r = gz
	default:
		return data, nil
	}

	out, err := safety.ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	return out, nil
}
