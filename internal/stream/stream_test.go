package stream

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, path string, maxLen int) []string {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var lines []string
	for {
		line, ok := r.ReadLine(maxLen)
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	require.NoError(t, r.Err())
	return lines
}

func TestReadLine(t *testing.T) {
	const content = "first\nsecond\r\nthird"

	tests := []struct {
		name string
		file string
		data func(t *testing.T) []byte
	}{
		{"plain", "list.txt", func(t *testing.T) []byte { return []byte(content) }},
		{"gzip", "list.txt.gz", func(t *testing.T) []byte { return gzipBytes(t, content) }},
		{"zstd", "list.txt.zst", func(t *testing.T) []byte { return zstdBytes(t, content) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data(t))
			lines := readAll(t, path, 255)
			assert.Equal(t, []string{"first\n", "second\r\n", "third"}, lines)
		})
	}
}

func TestReadLineTruncatesLongLines(t *testing.T) {
	long := strings.Repeat("x", 20)
	path := writeFile(t, "long.txt.gz", gzipBytes(t, long+"\nnext\n"))

	lines := readAll(t, path, 8)
	require.Len(t, lines, 4)
	assert.Equal(t, "xxxxxxx", lines[0])
	assert.Equal(t, "xxxxxxx", lines[1])
	assert.Equal(t, "xxxxxx\n", lines[2])
	assert.Equal(t, "next\n", lines[3], "reads after a truncated line must stay aligned")
}

func TestReadLineEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.txt", nil)
	assert.Empty(t, readAll(t, path, 255))
}

func TestCorruptGzip(t *testing.T) {
	data := gzipBytes(t, strings.Repeat("1.2.3.4\n", 1000))
	data = data[:len(data)/2]
	path := writeFile(t, "broken.gz", data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	n := 0
	for {
		if _, ok := r.ReadLine(255); !ok {
			break
		}
		n++
	}
	assert.Less(t, n, 1000)
	assert.Error(t, r.Err())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStripCRLF(t *testing.T) {
	assert.Equal(t, "abc", StripCRLF("abc\r\n"))
	assert.Equal(t, "abc", StripCRLF("abc\n"))
	assert.Equal(t, "abc", StripCRLF("abc"))
	assert.Equal(t, "", StripCRLF("\rabc"))
}
