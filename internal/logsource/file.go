package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression of an input file.
type Codec string

const (
	CodecNone Codec = ""
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// FileSource reads a file, decoding gzip, zstd and lz4 transparently.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return f.path }

// Open opens the file and wraps it in the decoder chosen by DetectCodec.
// Closing the result releases both the decoder and the file.
func (f *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("logsource: %w", err)
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(len(magicLZ4))
	if err != nil && !errors.Is(err, io.EOF) {
		_ = file.Close()
		return nil, fmt.Errorf("logsource: read %s: %w", f.path, err)
	}

	codec := DetectCodec(f.path, magic)
	rc, err := decode(codec, br, file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("logsource: open %s as %s: %w", f.path, codec, err)
	}
	return rc, nil
}

// DetectCodec picks the codec from the leading bytes, falling back to the
// file extension when they are inconclusive.
func DetectCodec(path string, magic []byte) Codec {
	switch {
	case bytes.HasPrefix(magic, magicGzip):
		return CodecGzip
	case bytes.HasPrefix(magic, magicZstd):
		return CodecZstd
	case bytes.HasPrefix(magic, magicLZ4):
		return CodecLZ4
	}
	if len(magic) > 0 {
		return CodecNone
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	}
	return CodecNone
}

func decode(codec Codec, r io.Reader, file *os.File) (io.ReadCloser, error) {
	switch codec {
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &decodedFile{Reader: zr, closers: []func() error{zr.Close, file.Close}}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		release := func() error { zr.Close(); return nil }
		return &decodedFile{Reader: zr, closers: []func() error{release, file.Close}}, nil
	case CodecLZ4:
		return &decodedFile{Reader: lz4.NewReader(r), closers: []func() error{file.Close}}, nil
	default:
		return &decodedFile{Reader: r, closers: []func() error{file.Close}}, nil
	}
}

type decodedFile struct {
	io.Reader
	closers []func() error
}

func (d *decodedFile) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
