package l1detections

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/banshee-data/hailstone.report/internal/monitoring"
)

// Dialect selects which flavour of the detection log a Parser accepts.
type Dialect int

const (
	// DialectUnlabeled: Frame F: X=x, Y=y, Radius=r
	DialectUnlabeled Dialect = iota
	// DialectLabeled: Frame F: ID=id, X=x, Y=y, Radius=r
	DialectLabeled
)

func (d Dialect) String() string {
	switch d {
	case DialectUnlabeled:
		return "unlabeled"
	case DialectLabeled:
		return "labeled"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// maxLineBytes bounds a single log line.
const maxLineBytes = 1 << 20

var (
	strictHeader = regexp.MustCompile(`^Frame (\d+): (.+)$`)
	looseHeader  = regexp.MustCompile(`^Frame\s+(\d+)\s*:\s*(.*)$`)
)

// Parser converts detection log lines into Records.
//
// In strict mode (the default) fields must appear as "Key=value" separated
// by ", " in the order [ID,] X, Y, Radius. Any further ", Key=value" fields
// (for example Velocity and DetectionNum written by the trajectory writer)
// are accepted and ignored. A line with no commas at all falls back to the
// legacy whitespace-delimited layout ("Frame 12: X=100 Y=200 Radius=10").
// With Loose set, fields may be separated by any run of commas and
// whitespace, in any order. In both modes a line whose ID presence does not
// match Dialect is skipped.
type Parser struct {
	Dialect Dialect
	Loose   bool
	// Logf receives one warning per skipped line. Defaults to monitoring.Logf.
	Logf monitoring.LogFunc
}

// Result is the outcome of one Parse call.
type Result struct {
	Dialect Dialect
	Records []Record
	Valid   int
	Skipped int
	Errors  []*LineError
}

// Parse reads r to EOF. The returned error is non-nil only when r itself
// fails; bad lines, including lines longer than maxLineBytes, are recorded on
// the Result instead.
func (p Parser) Parse(r io.Reader) (*Result, error) {
	res := &Result{Dialect: p.Dialect}
	logf := p.logf()
	br := bufio.NewReaderSize(r, 64*1024)

	for lineNo := 1; ; lineNo++ {
		line, tooLong, err := readLine(br)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read detection log: %w", err)
		}
		if tooLong {
			res.skip(&LineError{Line: lineNo, Text: excerpt(line), Reason: "line too long"}, logf)
			continue
		}
		p.collect(res, lineNo, line, logf)
	}
}

// ParseLines is a convenience wrapper for in-memory logs.
func (p Parser) ParseLines(lines []string) *Result {
	res := &Result{Dialect: p.Dialect}
	logf := p.logf()
	for i, line := range lines {
		if len(line) > maxLineBytes {
			res.skip(&LineError{Line: i + 1, Text: excerpt(line), Reason: "line too long"}, logf)
			continue
		}
		p.collect(res, i+1, line, logf)
	}
	return res
}

func (p Parser) logf() monitoring.LogFunc {
	if p.Logf != nil {
		return p.Logf
	}
	return monitoring.Logf
}

func (p Parser) collect(res *Result, lineNo int, line string, logf monitoring.LogFunc) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	if strings.TrimSpace(line) == "" {
		return
	}
	rec, reason := p.parseLine(line)
	if reason != "" {
		res.skip(&LineError{Line: lineNo, Text: strings.TrimSpace(line), Reason: reason}, logf)
		return
	}
	res.Records = append(res.Records, rec)
	res.Valid++
}

func (r *Result) skip(lerr *LineError, logf monitoring.LogFunc) {
	r.Errors = append(r.Errors, lerr)
	r.Skipped++
	logf("Skipping malformed line: %v", lerr)
}

// readLine returns the next line without its terminator. Bytes past
// maxLineBytes are drained and dropped, and tooLong is set. io.EOF is
// returned only when no bytes remain.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	read := false
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		read = true
		if !tooLong {
			if len(buf)+len(frag) > maxLineBytes {
				tooLong = true
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// maxExcerpt bounds the text kept on a LineError for an oversized line.
const maxExcerpt = 80

func excerpt(line string) string {
	if len(line) > maxExcerpt {
		return line[:maxExcerpt] + "..."
	}
	return line
}

// parseLine returns the record or a non-empty rejection reason.
func (p Parser) parseLine(line string) (Record, string) {
	var (
		m      []string
		fields map[string]string
		reason string
	)
	if p.Loose {
		m = looseHeader.FindStringSubmatch(strings.TrimSpace(line))
	} else {
		m = strictHeader.FindStringSubmatch(line)
	}
	if m == nil {
		return Record{}, "missing Frame header"
	}

	frame, err := strconv.Atoi(m[1])
	if err != nil {
		return Record{}, "invalid frame number"
	}

	if p.Loose {
		fields, reason = looseFields(m[2])
	} else if fields, reason = p.strictFields(m[2]); reason != "" && !strings.Contains(m[2], ",") {
		// legacy whitespace-only layout: "Frame 12: X=100 Y=200 Radius=10"
		if legacy, why := looseFields(m[2]); why == "" {
			fields, reason = legacy, ""
		}
	}
	if reason != "" {
		return Record{}, reason
	}

	id, hasID := fields["ID"]
	switch {
	case p.Dialect == DialectLabeled && !hasID:
		return Record{}, "missing ID for labeled dialect"
	case p.Dialect == DialectUnlabeled && hasID:
		return Record{}, "unexpected ID for unlabeled dialect"
	}

	var vals [3]int
	for i, key := range [...]string{"X", "Y", "Radius"} {
		raw, ok := fields[key]
		if !ok {
			return Record{}, "missing " + key
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Record{}, "invalid " + key
		}
		vals[i] = v
	}
	if vals[2] < 0 {
		return Record{}, "negative Radius"
	}

	return Record{
		ObjectID:  id,
		Detection: Detection{Frame: frame, X: vals[0], Y: vals[1], Radius: vals[2]},
	}, ""
}

// strictFields splits "K=v, K=v, ..." and enforces the canonical leading order.
func (p Parser) strictFields(body string) (map[string]string, string) {
	want := []string{"X", "Y", "Radius"}
	if p.Dialect == DialectLabeled || strings.HasPrefix(body, "ID=") {
		want = append([]string{"ID"}, want...)
	}

	parts := strings.Split(body, ", ")
	if len(parts) < len(want) {
		return nil, "too few fields"
	}
	fields := make(map[string]string, len(parts))
	for i, part := range parts {
		key, val, ok := strings.Cut(part, "=")
		if !ok || key == "" || val == "" || strings.ContainsAny(part, " \t,") {
			return nil, fmt.Sprintf("malformed field %q", part)
		}
		if i < len(want) && key != want[i] {
			return nil, fmt.Sprintf("expected %s, got %s", want[i], key)
		}
		if _, dup := fields[key]; dup {
			return nil, "duplicate field " + key
		}
		fields[key] = val
	}
	return fields, ""
}

// looseFields accepts Key=value tokens separated by any commas or whitespace.
func looseFields(body string) (map[string]string, string) {
	tokens := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(tokens) == 0 {
		return nil, "no fields"
	}
	fields := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || key == "" || val == "" {
			return nil, fmt.Sprintf("malformed field %q", tok)
		}
		if _, dup := fields[key]; dup {
			return nil, "duplicate field " + key
		}
		fields[key] = val
	}
	return fields, ""
}

// Empty reports whether no valid detections were parsed.
func (r *Result) Empty() bool { return len(r.Records) == 0 }

// Detections returns the parsed detections in input order, dropping any identity.
func (r *Result) Detections() []Detection {
	out := make([]Detection, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Detection
	}
	return out
}

// Groups buckets records by ObjectID, preserving the order in which each
// identity first appears and the input order within a group.
func (r *Result) Groups() []Group {
	index := make(map[string]int)
	var groups []Group
	for _, rec := range r.Records {
		i, ok := index[rec.ObjectID]
		if !ok {
			i = len(groups)
			index[rec.ObjectID] = i
			groups = append(groups, Group{ObjectID: rec.ObjectID})
		}
		groups[i].Detections = append(groups[i].Detections, rec.Detection)
	}
	return groups
}
