package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression of an input, detected from the location's extension.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

func compressionOf(location string) Compression {
	location = strings.SplitN(location, "?", 2)[0]
	switch strings.ToLower(filepath.Ext(location)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

func decompress(r io.Reader, compression Compression) (io.Reader, error) {
	switch compression {
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	default:
		return r, nil
	}
}
