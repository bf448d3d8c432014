package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

var (
	ErrShortRow     = errors.New("row has too few columns")
	ErrMalformedRow = errors.New("malformed row")
)

type Options struct {
	Delimiter rune
	// RowDelimiter is "\n" or "\r\n". Both are read the same way; a bare "\r" inside a row is
	// kept as data.
	RowDelimiter string
	Encoding     string
	SkipHeader   bool
	Trim         bool
}

// ParseDelimiter turns a --delimiter flag into a CSV separator.
func ParseDelimiter(s string, fallback rune) (rune, error) {
	if s == "" {
		return fallback, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter %q is not allowed", s)
	}
	return r, nil
}

// ParseRowDelimiter accepts the two line endings the feeds use.
func ParseRowDelimiter(s, fallback string) (string, error) {
	switch s {
	case "":
		return fallback, nil
	case "\n", `\n`:
		return "\n", nil
	case "\r\n", `\r\n`:
		return "\r\n", nil
	}
	return "", fmt.Errorf("row delimiter %q must be \\n or \\r\\n", s)
}

// Row is one parsed record with its 1-based line number in the source. A row the CSV parser
// rejected carries Err and no fields.
type Row struct {
	Line   int
	Fields []string
	Err    error
}

// Cell returns column i, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Expect fails rows that carry fewer than n columns. Extra trailing columns are allowed.
func (r Row) Expect(n int) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Fields) < n {
		return fmt.Errorf("line %d: %w: got %d, want %d", r.Line, ErrShortRow, len(r.Fields), n)
	}
	return nil
}

type Reader struct {
	csv     *csv.Reader
	trim    bool
	skipped bool
	skip    bool
}

func NewReader(r io.Reader, opts Options) (*Reader, error) {
	if _, err := ParseRowDelimiter(opts.RowDelimiter, "\n"); err != nil {
		return nil, err
	}
	switch strings.ToLower(opts.Encoding) {
	case "", EncodingUTF8, "utf8":
	case EncodingWindows1251, "cp1251":
		r = transform.NewReader(r, charmap.Windows1251.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding %q", opts.Encoding)
	}

	csvReader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		csvReader.Comma = opts.Delimiter
	}
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = opts.Trim
	csvReader.ReuseRecord = false

	return &Reader{csv: csvReader, trim: opts.Trim, skip: opts.SkipHeader}, nil
}

// Next returns io.EOF after the last row. Blank lines are skipped by encoding/csv; rows the
// parser rejects come back with Err set so the caller can fail just that row.
func (r *Reader) Next() (Row, error) {
	for {
		fields, err := r.csv.Read()
		var parseErr *csv.ParseError
		switch {
		case errors.Is(err, io.EOF):
			return Row{}, io.EOF
		case errors.As(err, &parseErr) && parseErr.Err != io.ErrUnexpectedEOF:
			return Row{Line: parseErr.StartLine, Err: fmt.Errorf("line %d: %w: %v", parseErr.StartLine, ErrMalformedRow, parseErr.Err)}, nil
		case err != nil:
			return Row{}, fmt.Errorf("csv read error: %w", err)
		}
		line, _ := r.csv.FieldPos(0)
		if r.skip && !r.skipped {
			r.skipped = true
			continue
		}
		if r.trim {
			for i := range fields {
				fields[i] = strings.TrimSpace(fields[i])
			}
		}
		return Row{Line: line, Fields: fields}, nil
	}
}

func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func ReadAll(r io.Reader, opts Options) ([]Row, error) {
	reader, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}
	return reader.ReadAll()
}
