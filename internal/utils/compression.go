package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies a stream compressor
type Compression int

const (
	CompressNone Compression = iota
	CompressGzip
	CompressBzip2
	CompressXz
	CompressZstd
)

// String returns the string representation of Compression
func (c Compression) String() string {
	switch c {
	case CompressGzip:
		return "gzip"
	case CompressBzip2:
		return "bzip2"
	case CompressXz:
		return "xz"
	case CompressZstd:
		return "zstd"
	default:
		return "none"
	}
}

// NewCompressWriter wraps w with the given compressor. Closing the returned
// writer flushes the compressor but does not close w.
func NewCompressWriter(c Compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressNone:
		return nopCloser{w}, nil
	case CompressGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case CompressXz:
		return xz.NewWriter(w)
	case CompressZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown compression: %d", c)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// GzipCompress compresses data using gzip
func GzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// GzipDecompress decompresses gzip data
func GzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
