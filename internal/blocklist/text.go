package blocklist

import (
	"strings"

	"github.com/jmakovicka/nfblock/internal/stream"
)

type lineParser func(line string) (lo, hi uint32, label string, ok bool)

// loadText feeds each line of a text list to parse. Comment lines are
// skipped when skipComments is set and are not counted towards the probe.
func (b *Blocklist) loadText(path string, dec *Decoder, skipComments bool, parse lineParser) error {
	r, err := stream.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	total, ok := 0, 0
	for {
		line, more := r.ReadLine(lineLength)
		if !more {
			break
		}
		if skipComments && strings.HasPrefix(line, "#") {
			continue
		}
		line = stream.StripCRLF(line)
		total++
		if ok == 0 && total > probeLines {
			return ErrNoEntries
		}

		lo, hi, label, matched := parse(line)
		if !matched {
			continue
		}
		b.Append(lo, hi, dec.Label([]byte(label)))
		ok++
	}
	if err := r.Err(); err != nil {
		b.logger.Warn().Err(err).Str("file", path).Msg("read error, keeping lines read so far")
	}

	if ok == 0 {
		return ErrNoEntries
	}
	return nil
}

func (b *Blocklist) loadDAT(path string, dec *Decoder) error {
	return b.loadText(path, dec, true, parseDATLine)
}

func (b *Blocklist) loadP2P(path string, dec *Decoder) error {
	return b.loadText(path, dec, false, parseP2PLine)
}

// parseDATLine matches "a.b.c.d - a.b.c.d , N , label".
func parseDATLine(line string) (lo, hi uint32, label string, ok bool) {
	sc := lineScanner{s: line}
	if lo, ok = sc.address(); !ok {
		return
	}
	sc.skipSpace()
	if !sc.literal('-') {
		return 0, 0, "", false
	}
	if hi, ok = sc.address(); !ok {
		return
	}
	sc.skipSpace()
	if !sc.literal(',') {
		return 0, 0, "", false
	}
	if _, ok = sc.number(); !ok {
		return
	}
	sc.skipSpace()
	if !sc.literal(',') {
		return 0, 0, "", false
	}
	sc.skipSpace()
	label = sc.rest()
	if label == "" {
		return 0, 0, "", false
	}
	return lo, hi, truncateBytes(label, textLabelLength), true
}

// parseP2PLine matches "label:a.b.c.d-a.b.c.d". The label runs to the first
// colon; anything after the second address is ignored.
func parseP2PLine(line string) (lo, hi uint32, label string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 || i > textLabelLength {
		return 0, 0, "", false
	}
	label = line[:i]

	sc := lineScanner{s: line, pos: i + 1}
	if lo, ok = sc.address(); !ok {
		return
	}
	if !sc.literal('-') {
		return 0, 0, "", false
	}
	if hi, ok = sc.address(); !ok {
		return
	}
	return lo, hi, label, true
}

func truncateBytes(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
