package blocklist

import (
	"errors"
	"fmt"
)

// Format identifies an on-disk list format.
type Format int

const (
	FormatUnknown Format = iota
	FormatP2B
	FormatDAT
	FormatP2P
)

func (f Format) String() string {
	switch f {
	case FormatP2B:
		return "PeerGuardian Binary"
	case FormatDAT:
		return "IPFilter"
	case FormatP2P:
		return "PeerGuardian Ascii"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownFormat  = errors.New("unrecognized blocklist format")
	ErrNoEntries      = errors.New("no valid entries")
	ErrBadHeader      = errors.New("not a P2B file")
	ErrUnknownVersion = errors.New("unknown P2B version")
	ErrBadLabelIndex  = errors.New("P2B label index out of range")
	ErrTruncated      = errors.New("truncated P2B record")
)

const (
	// lineLength is the read buffer for text lists, terminator included.
	lineLength = MaxLabelLength
	// textLabelLength bounds the raw label taken from a text line.
	textLabelLength = 199
	// probeLines is how many lines a text parser reads without a single
	// match before giving up on the file.
	probeLines = 100
)

// LoadFile appends the ranges of one list file, detecting its format. On
// failure the list is left as it was before the call. charset applies to the
// text formats; empty means ISO-8859-1.
func (b *Blocklist) LoadFile(path, charset string) (Format, int, error) {
	dec, err := NewDecoder(charset)
	if err != nil {
		return FormatUnknown, 0, err
	}

	logger := b.logger.With().Str("file", path).Logger()

	prev := b.Len()
	p2bErr := b.loadP2B(path)
	if p2bErr == nil && b.Len() > prev {
		n := b.Len() - prev
		logger.Debug().Msgf("%s: %d entries loaded", FormatP2B, n)
		return FormatP2B, n, nil
	}
	b.Truncate(prev)
	if p2bErr != nil && !errors.Is(p2bErr, ErrBadHeader) {
		logger.Debug().Err(p2bErr).Msg("P2B parse failed")
	}

	if err := b.loadDAT(path, dec); err == nil {
		n := b.Len() - prev
		logger.Debug().Msgf("%s: %d entries loaded", FormatDAT, n)
		return FormatDAT, n, nil
	}
	b.Truncate(prev)

	if err := b.loadP2P(path, dec); err == nil {
		n := b.Len() - prev
		logger.Debug().Msgf("%s: %d entries loaded", FormatP2P, n)
		return FormatP2P, n, nil
	}
	b.Truncate(prev)

	switch {
	case p2bErr == nil:
		return FormatUnknown, 0, fmt.Errorf("loading %s: %w", path, ErrNoEntries)
	case errors.Is(p2bErr, ErrBadHeader):
		return FormatUnknown, 0, fmt.Errorf("loading %s: %w", path, ErrUnknownFormat)
	default:
		return FormatUnknown, 0, fmt.Errorf("loading %s: %w", path, p2bErr)
	}
}

// LoadFiles loads every list in turn. Failed files are skipped and their
// errors joined; the returned count covers the files that loaded.
func (b *Blocklist) LoadFiles(files []File) (int, error) {
	var errs []error
	loaded := 0
	for _, f := range files {
		if _, _, err := b.LoadFile(f.Path, f.Charset); err != nil {
			b.logger.Warn().Err(err).Str("file", f.Path).Msg("failed to load blocklist")
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// File names a list on disk and the charset of its labels.
type File struct {
	Path    string
	Charset string
}
