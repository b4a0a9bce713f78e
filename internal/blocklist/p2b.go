package blocklist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var p2bMagic = []byte{0xff, 0xff, 0xff, 0xff, 'P', '2', 'B'}

var errLabelTooLong = errors.New("label too long")

// loadP2B parses a PeerGuardian binary list. Versions 1 and 2 keep every
// record read before the first malformed one; version 3 is all or nothing.
func (b *Blocklist) loadP2B(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ErrBadHeader
	}
	if !bytes.Equal(header[:7], p2bMagic) {
		return ErrBadHeader
	}

	version := header[7]
	var dec *Decoder
	switch version {
	case 1:
		dec, err = NewDecoder("ISO-8859-1")
	case 2, 3:
		dec, err = NewDecoder("UTF-8")
	default:
		return fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	if err != nil {
		return err
	}

	if version == 3 {
		return b.loadP2B3(r, dec)
	}

	for {
		label, err := readCString(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Error().Err(err).Msg("P2B: error reading label")
			}
			return nil
		}
		lo, err := readUint32(r)
		if err != nil {
			b.logger.Error().Err(err).Msg("P2B: error reading range start")
			return nil
		}
		hi, err := readUint32(r)
		if err != nil {
			b.logger.Error().Err(err).Msg("P2B: error reading range end")
			return nil
		}
		b.Append(lo, hi, dec.Label(label))
	}
}

func (b *Blocklist) loadP2B3(r *bufio.Reader, dec *Decoder) error {
	nlabels, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%w: label count", ErrTruncated)
	}

	labels := make([]string, 0, min(nlabels, 1<<16))
	for i := uint32(0); i < nlabels; i++ {
		raw, err := readCString(r)
		if err != nil {
			return fmt.Errorf("%w: label %d: %v", ErrTruncated, i, err)
		}
		labels = append(labels, dec.Label(raw))
	}

	nranges, err := readUint32(r)
	if err != nil {
		return nil
	}

	for i := uint32(0); i < nranges; i++ {
		idx, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: label index of range %d", ErrTruncated, i)
		}
		if idx >= nlabels {
			return fmt.Errorf("%w: %d >= %d", ErrBadLabelIndex, idx, nlabels)
		}
		lo, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: start of range %d", ErrTruncated, i)
		}
		hi, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: end of range %d", ErrTruncated, i)
		}
		b.Append(lo, hi, labels[idx])
	}
	return nil
}

// readCString reads a NUL-terminated label of at most MaxLabelLength-1
// bytes. io.EOF is returned only when no byte was read.
func readCString(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if c == 0 {
			return buf, nil
		}
		buf = append(buf, c)
		if len(buf) >= MaxLabelLength {
			return nil, errLabelTooLong
		}
	}
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
