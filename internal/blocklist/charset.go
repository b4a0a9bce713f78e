package blocklist

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	DefaultCharset  = "ISO-8859-1"
	conversionError = "(conversion error)"
)

var ErrUnknownCharset = errors.New("unknown charset")

// Decoder converts raw labels from a list's charset to UTF-8.
type Decoder struct {
	name string
	enc  encoding.Encoding
	utf8 bool
}

// NewDecoder resolves a charset name. An empty name selects ISO-8859-1.
func NewDecoder(name string) (*Decoder, error) {
	if name == "" {
		name = DefaultCharset
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return &Decoder{name: name, enc: enc, utf8: enc == unicode.UTF8}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "iso-8859-1", "iso8859-1", "latin1", "l1":
		return charmap.ISO8859_1, nil
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCharset, name)
}

func (d *Decoder) Name() string {
	return d.name
}

// Label converts raw to UTF-8 and bounds it to MaxLabelLength-1 bytes.
func (d *Decoder) Label(raw []byte) string {
	var out string
	if d.utf8 {
		if !utf8.Valid(raw) {
			return conversionError
		}
		out = string(raw)
	} else {
		b, err := d.enc.NewDecoder().Bytes(raw)
		if err != nil {
			return conversionError
		}
		out = string(b)
	}
	return truncateLabel(out, MaxLabelLength-1)
}

// truncateLabel cuts s to at most n bytes without splitting a rune.
func truncateLabel(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
