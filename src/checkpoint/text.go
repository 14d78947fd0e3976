package checkpoint

import (
	"bufio"
	"bytes"
	"fmt"
	"math/big"
	"strconv"

	"github.com/pkg/errors"

	"lcs35/src/session"
)

// textOrder describes one candidate field layout for the flat text format.
// Revisions of the original computed moved the position of c relative to n;
// a reader tries the canonical layout first and falls back to the legacy
// one only if the canonical layout fails to parse or fails Check (§9 Open
// Question — legacy file disambiguation).
type textOrder int

const (
	orderCanonical textOrder = iota // t, i, c, n, w, [n_validations]
	orderLegacyCN                   // t, i, n, c, w, [n_validations]
)

// looksLikeText reports whether data appears to be the flat ASCII format
// rather than a SQLite database file (which begins with a fixed 16-byte
// magic header).
func looksLikeText(data []byte) bool {
	return !bytes.HasPrefix(data, sqliteMagic)
}

// parseText decodes the flat text format, trying the canonical field order
// first and the legacy order second. Lines may be arbitrarily long (decimal
// n and w commonly exceed 600 digits); bufio.Scanner is given a growable
// buffer so it never truncates them.
func parseText(data []byte) (*session.Session, error) {
	var lastErr error
	for _, order := range []textOrder{orderCanonical, orderLegacyCN} {
		s, err := parseTextOrder(data, order)
		if err != nil {
			lastErr = err
			continue
		}
		if !session.Check(s) {
			lastErr = errors.New("checkpoint: text file failed consistency check")
			continue
		}
		return s, nil
	}
	return nil, lastErr
}

func parseTextOrder(data []byte, order textOrder) (*session.Session, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	lines := make([]string, 0, 6)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "checkpoint: reading text checkpoint")
	}
	if len(lines) < 5 {
		return nil, errors.Errorf("checkpoint: expected at least 5 fields, got %d", len(lines))
	}

	t, err := strconv.ParseUint(lines[0], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: parsing t")
	}
	i, err := strconv.ParseUint(lines[1], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: parsing i")
	}

	var cLine, nLine string
	switch order {
	case orderCanonical:
		cLine, nLine = lines[2], lines[3]
	case orderLegacyCN:
		nLine, cLine = lines[2], lines[3]
	}

	c, ok := parseDecimal(cLine)
	if !ok {
		return nil, errors.New("checkpoint: parsing c")
	}
	n, ok := parseDecimal(nLine)
	if !ok {
		return nil, errors.New("checkpoint: parsing n")
	}
	w, ok := parseDecimal(lines[4])
	if !ok {
		return nil, errors.New("checkpoint: parsing w")
	}

	s := &session.Session{T: t, I: i, C: c, N: n, W: w}
	s.RefreshNTimesC()

	// n_validations is OPTIONAL; absence must be tolerated and defaults to 0
	// (§4.2.1 field 6, Property/scenario 5).
	if len(lines) >= 6 && lines[5] != "" {
		nv, err := strconv.ParseInt(lines[5], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "checkpoint: parsing n_validations")
		}
		s.NValidations = nv
	}

	return s, nil
}

func parseDecimal(line string) (*big.Int, bool) {
	return new(big.Int).SetString(line, 10)
}

// writeText renders the flat text format in the canonical field order:
// t, i, c, n, w, n_validations — one decimal integer per LF-terminated
// line, no header or checksum (§4.2.1).
func writeText(s *session.Session) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d\n", s.T)
	fmt.Fprintf(&buf, "%d\n", s.I)
	fmt.Fprintf(&buf, "%s\n", s.C.String())
	fmt.Fprintf(&buf, "%s\n", s.N.String())
	fmt.Fprintf(&buf, "%s\n", s.W.String())
	fmt.Fprintf(&buf, "%d\n", s.NValidations)
	return buf.Bytes()
}
