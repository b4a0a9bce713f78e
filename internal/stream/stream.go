// Package stream provides line-oriented reading over plain and compressed
// blocklist files.
//
// Files ending in .gz are inflated with gzip and files ending in .zst with
// zstd; anything else is read as-is. Lines are returned including their
// terminator, at most maxLen-1 bytes at a time, so a line longer than the
// caller's bound is split across calls instead of corrupting later reads.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const bufferSize = 16384

// Reader reads successive lines from a possibly compressed file.
type Reader struct {
	name   string
	file   *os.File
	closer func() error
	br     *bufio.Reader

	line []byte
	eos  bool
	err  error
}

// Open opens name for sequential line reading, choosing a decompressor from
// its suffix.
func Open(name string) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	r := &Reader{name: name, file: f}

	switch {
	case strings.HasSuffix(name, ".gz"):
		zr, err := gzip.NewReader(bufio.NewReaderSize(f, bufferSize))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream %s: %w", name, err)
		}
		r.br = bufio.NewReaderSize(zr, bufferSize)
		r.closer = zr.Close
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream %s: %w", name, err)
		}
		r.br = bufio.NewReaderSize(zr, bufferSize)
		r.closer = func() error {
			zr.Close()
			return nil
		}
	default:
		r.br = bufio.NewReaderSize(f, bufferSize)
	}

	return r, nil
}

// Name returns the path the reader was opened with.
func (r *Reader) Name() string {
	return r.name
}

// ReadLine returns the next line, terminator included, truncated to maxLen-1
// bytes. The rest of a truncated line is returned by the following calls.
// ok is false at end of stream or after an unrecoverable read error; Err
// reports the latter.
func (r *Reader) ReadLine(maxLen int) (line string, ok bool) {
	if r.eos {
		return "", false
	}

	limit := maxLen - 1
	if limit < 1 {
		limit = 1
	}

	buf := r.line[:0]
	for len(buf) < limit {
		c, err := r.br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			r.eos = true
			break
		}
		buf = append(buf, c)
		if c == '\n' {
			break
		}
	}
	r.line = buf

	if len(buf) == 0 {
		return "", false
	}
	return string(buf), true
}

// Err returns the first non-EOF error hit while reading, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the decompressor state and the underlying file.
func (r *Reader) Close() error {
	var firstErr error
	if r.closer != nil {
		if err := r.closer(); err != nil {
			firstErr = err
		}
		r.closer = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}

// StripCRLF cuts s at its first CR or LF.
func StripCRLF(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
