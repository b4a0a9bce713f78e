package blocklist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type p2bWriter struct {
	bytes.Buffer
}

func newP2B(version byte) *p2bWriter {
	w := &p2bWriter{}
	w.Write([]byte{0xff, 0xff, 0xff, 0xff, 'P', '2', 'B', version})
	return w
}

func (w *p2bWriter) u32(v uint32) *p2bWriter {
	binary.Write(&w.Buffer, binary.BigEndian, v)
	return w
}

func (w *p2bWriter) cstr(s string) *p2bWriter {
	w.WriteString(s)
	w.WriteByte(0)
	return w
}

func TestLoadP2B(t *testing.T) {
	t.Run("version 1 decodes latin1 labels", func(t *testing.T) {
		w := newP2B(1)
		w.cstr("caf\xe9").u32(0x01020300).u32(0x010203ff)
		w.cstr("second").u32(0x05000000).u32(0x05000001)

		b := New(zerolog.Nop())
		format, n, err := b.LoadFile(writeList(t, "v1.p2b", w.Bytes()), "")
		require.NoError(t, err)
		assert.Equal(t, FormatP2B, format)
		assert.Equal(t, 2, n)

		b.Finalize()
		r, _ := b.Find(0x01020304, nil)
		require.NotNil(t, r)
		assert.Equal(t, "café", r.Label)
	})

	t.Run("version 2 keeps records before a truncated one", func(t *testing.T) {
		w := newP2B(2)
		w.cstr("ok").u32(10).u32(20)
		w.cstr("broken").u32(30)

		b := New(zerolog.Nop())
		format, n, err := b.LoadFile(writeList(t, "v2.p2b", w.Bytes()), "")
		require.NoError(t, err)
		assert.Equal(t, FormatP2B, format)
		assert.Equal(t, 1, n)
	})

	t.Run("version 3 resolves label indexes", func(t *testing.T) {
		w := newP2B(3)
		w.u32(2).cstr("zero").cstr("one")
		w.u32(3)
		w.u32(1).u32(100).u32(200)
		w.u32(0).u32(300).u32(400)
		w.u32(1).u32(500).u32(600)

		b := New(zerolog.Nop())
		format, n, err := b.LoadFile(writeList(t, "v3.p2b", w.Bytes()), "")
		require.NoError(t, err)
		assert.Equal(t, FormatP2B, format)
		assert.Equal(t, 3, n)

		b.Finalize()
		r, _ := b.Find(350, nil)
		require.NotNil(t, r)
		assert.Equal(t, "zero", r.Label)
		r, _ = b.Find(550, nil)
		require.NotNil(t, r)
		assert.Equal(t, "one", r.Label)
	})

	t.Run("version 3 rejects index equal to label count", func(t *testing.T) {
		w := newP2B(3)
		w.u32(1).cstr("only")
		w.u32(2)
		w.u32(0).u32(1).u32(2)
		w.u32(1).u32(3).u32(4)

		b := New(zerolog.Nop())
		b.Append(1000, 2000, "existing")
		_, _, err := b.LoadFile(writeList(t, "bad.p2b", w.Bytes()), "")
		assert.ErrorIs(t, err, ErrBadLabelIndex)
		assert.Equal(t, 1, b.Len(), "records of the failed file are discarded")
	})

	t.Run("version 3 short range table", func(t *testing.T) {
		w := newP2B(3)
		w.u32(1).cstr("only")
		w.u32(2)
		w.u32(0).u32(1).u32(2)
		w.u32(0).u32(3)

		b := New(zerolog.Nop())
		_, _, err := b.LoadFile(writeList(t, "short.p2b", w.Bytes()), "")
		assert.ErrorIs(t, err, ErrTruncated)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("version 3 without range count has no entries", func(t *testing.T) {
		w := newP2B(3)
		w.u32(1).cstr("only")

		b := New(zerolog.Nop())
		_, _, err := b.LoadFile(writeList(t, "empty.p2b", w.Bytes()), "")
		assert.ErrorIs(t, err, ErrNoEntries)
	})

	t.Run("unknown version", func(t *testing.T) {
		w := newP2B(4)
		w.cstr("x").u32(1).u32(2)

		b := New(zerolog.Nop())
		_, _, err := b.LoadFile(writeList(t, "v4.p2b", w.Bytes()), "")
		assert.ErrorIs(t, err, ErrUnknownVersion)
		assert.Equal(t, 0, b.Len())
	})
}

func TestLoadDAT(t *testing.T) {
	content := strings.Join([]string{
		"# comment",
		"001.002.003.004 - 001.002.003.010 , 000 , Some Org",
		"10.0.0.0-10.0.0.255,100,Tight\r",
		"not a range",
		"300.0.0.0 - 300.0.0.1 , 0 , bad octet",
		"5.5.5.5 - 5.5.5.6 , 0 ,",
	}, "\n")

	b := New(zerolog.Nop())
	format, n, err := b.LoadFile(writeList(t, "list.dat", []byte(content)), "")
	require.NoError(t, err)
	assert.Equal(t, FormatDAT, format)
	assert.Equal(t, 2, n)

	b.Finalize()
	r, _ := b.Find(0x01020305, nil)
	require.NotNil(t, r)
	assert.Equal(t, "Some Org", r.Label)
	r, _ = b.Find(0x0a000080, nil)
	require.NotNil(t, r)
	assert.Equal(t, "Tight", r.Label)
}

func TestLoadGzipDAT(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for i := 0; i < 500; i++ {
		fmt.Fprintf(zw, "10.%d.0.0 - 10.%d.0.255 , 0 , net %d\n", i%256, i%256, i)
	}
	require.NoError(t, zw.Close())

	b := New(zerolog.Nop())
	format, n, err := b.LoadFile(writeList(t, "list.dat.gz", buf.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, FormatDAT, format)
	assert.Equal(t, 500, n)
}

func TestLoadP2P(t *testing.T) {
	content := strings.Join([]string{
		"Bad Guys:1.2.3.4-1.2.3.8",
		"Colon: In Label:9.9.9.9-9.9.9.9",
		"trailing:4.4.4.4-4.4.4.5 extra",
		":5.5.5.5-5.5.5.5",
		"spaced:6.6.6.6 - 6.6.6.7",
		"Another:2.0.0.0-2.0.0.255",
	}, "\n")

	b := New(zerolog.Nop())
	format, n, err := b.LoadFile(writeList(t, "list.p2p", []byte(content)), "")
	require.NoError(t, err)
	assert.Equal(t, FormatP2P, format)
	assert.Equal(t, 3, n)

	b.Finalize()
	r, _ := b.Find(0x04040405, nil)
	require.NotNil(t, r)
	assert.Equal(t, "trailing", r.Label)
	r, _ = b.Find(0x09090909, nil)
	assert.Nil(t, r)
}

func TestFormatFallback(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xfe, 'P', '2', 'B', 1})
	buf.WriteString("\n1.2.3.4 - 1.2.3.5 , x , not dat\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&buf, "range %d:10.0.%d.0-10.0.%d.255\n", i, i, i)
	}

	b := New(zerolog.Nop())
	b.Append(1, 1, "preloaded")
	format, n, err := b.LoadFile(writeList(t, "mixed.txt", buf.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, FormatP2P, format)
	assert.Equal(t, 7, n)
	assert.Equal(t, 8, b.Len())
}

func TestTextProbeLimit(t *testing.T) {
	good := "1.2.3.4 - 1.2.3.5 , 0 , found"

	t.Run("match within the probe window", func(t *testing.T) {
		lines := append(repeat("garbage", 99), good)
		b := New(zerolog.Nop())
		format, n, err := b.LoadFile(writeList(t, "ok.dat", []byte(strings.Join(lines, "\n"))), "")
		require.NoError(t, err)
		assert.Equal(t, FormatDAT, format)
		assert.Equal(t, 1, n)
	})

	t.Run("comments do not count", func(t *testing.T) {
		lines := append(repeat("# comment", 500), repeat("garbage", 99)...)
		lines = append(lines, good)
		b := New(zerolog.Nop())
		_, n, err := b.LoadFile(writeList(t, "comments.dat", []byte(strings.Join(lines, "\n"))), "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("match after the probe window", func(t *testing.T) {
		lines := append(repeat("garbage", 100), good)
		b := New(zerolog.Nop())
		_, _, err := b.LoadFile(writeList(t, "late.dat", []byte(strings.Join(lines, "\n"))), "")
		assert.ErrorIs(t, err, ErrUnknownFormat)
		assert.Equal(t, 0, b.Len())
	})
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.p2p")
	require.NoError(t, os.WriteFile(good, []byte("x:1.1.1.1-1.1.1.2\n"), 0o644))
	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("nothing here\n"), 0o644))

	b := New(zerolog.Nop())
	loaded, err := b.LoadFiles([]File{
		{Path: good},
		{Path: bad},
		{Path: filepath.Join(dir, "missing")},
	})
	assert.Equal(t, 1, loaded)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Equal(t, 1, b.Len())
}

func TestLoadFileCharset(t *testing.T) {
	path := writeList(t, "list.p2p", []byte("Zaf\x9a:1.1.1.1-1.1.1.2\n"))

	b := New(zerolog.Nop())
	_, _, err := b.LoadFile(path, "windows-1250")
	require.NoError(t, err)
	b.Finalize()
	r, _ := b.Find(0x01010101, nil)
	require.NotNil(t, r)
	assert.Equal(t, "Zafš", r.Label)

	_, _, err = b.LoadFile(path, "no-such-charset")
	assert.ErrorIs(t, err, ErrUnknownCharset)
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name  string
		parse lineParser
		line  string
		lo    uint32
		hi    uint32
		label string
		ok    bool
	}{
		{"dat spaced", parseDATLine, "1.2.3.4 - 1.2.3.5 , 0 , label", 0x01020304, 0x01020305, "label", true},
		{"dat tight", parseDATLine, "1.2.3.4-1.2.3.5,0,label", 0x01020304, 0x01020305, "label", true},
		{"dat leading blanks", parseDATLine, "  1.2.3.4 - 1.2.3.5 , 0 , label", 0x01020304, 0x01020305, "label", true},
		{"dat missing label", parseDATLine, "1.2.3.4 - 1.2.3.5 , 0 , ", 0, 0, "", false},
		{"dat missing count", parseDATLine, "1.2.3.4 - 1.2.3.5 , label", 0, 0, "", false},
		{"dat negative octet", parseDATLine, "1.2.3.-4 - 1.2.3.5 , 0 , label", 0, 0, "", false},
		{"p2p basic", parseP2PLine, "name:0.0.0.1-255.255.255.255", 1, 0xffffffff, "name", true},
		{"p2p empty label", parseP2PLine, ":0.0.0.1-0.0.0.2", 0, 0, "", false},
		{"p2p three octets", parseP2PLine, "name:1.2.3-1.2.3.4", 0, 0, "", false},
		{"p2p octet overflow", parseP2PLine, "name:1.2.3.256-1.2.3.4", 0, 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, label, ok := tt.parse(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.lo, lo)
				assert.Equal(t, tt.hi, hi)
				assert.Equal(t, tt.label, label)
			}
		})
	}
}

func TestDecoderLabel(t *testing.T) {
	utf, err := NewDecoder("UTF-8")
	require.NoError(t, err)
	assert.Equal(t, "(conversion error)", utf.Label([]byte{0xff, 0xfe}))

	long := strings.Repeat("é", 200)
	got := utf.Label([]byte(long))
	assert.LessOrEqual(t, len(got), MaxLabelLength-1)
	assert.Equal(t, 254, len(got))
	assert.True(t, strings.HasPrefix(long, got))

	latin, err := NewDecoder("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCharset, latin.Name())
	assert.Equal(t, "ü", latin.Label([]byte{0xfc}))
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
