package blocklist

// lineScanner matches the fixed text layouts of the ipfilter and P2P formats.
// Whitespace handling follows scanf: numbers skip leading blanks, and blanks
// between fields are only allowed where the layout says so.
type lineScanner struct {
	s   string
	pos int
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func (sc *lineScanner) skipSpace() {
	for sc.pos < len(sc.s) && isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
}

func (sc *lineScanner) literal(c byte) bool {
	if sc.pos < len(sc.s) && sc.s[sc.pos] == c {
		sc.pos++
		return true
	}
	return false
}

// number reads an optionally signed decimal integer.
func (sc *lineScanner) number() (int, bool) {
	sc.skipSpace()
	neg := false
	if sc.pos < len(sc.s) && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
		neg = sc.s[sc.pos] == '-'
		sc.pos++
	}
	start := sc.pos
	n := 0
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		if n < 1<<30 {
			n = n*10 + int(sc.s[sc.pos]-'0')
		}
		sc.pos++
	}
	if sc.pos == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// address reads a dotted quad. Octets outside 0..255 fail the match.
func (sc *lineScanner) address() (uint32, bool) {
	var o [4]int
	for i := range o {
		if i > 0 && !sc.literal('.') {
			return 0, false
		}
		n, ok := sc.number()
		if !ok || n < 0 || n > 255 {
			return 0, false
		}
		o[i] = n
	}
	return assembleIP(o), true
}

func (sc *lineScanner) rest() string {
	return sc.s[sc.pos:]
}
