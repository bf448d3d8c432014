package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrSeparatorInField = errors.New("field contains the separator")

// SeparatorPolicy decides what happens to a value that contains the separator.
type SeparatorPolicy int

const (
	// ReplaceSeparator swaps every occurrence for " - ".
	ReplaceSeparator SeparatorPolicy = iota
	// RejectSeparator fails the write.
	RejectSeparator
)

type WriterOptions struct {
	Separator rune
	NewLine   string
	Policy    SeparatorPolicy
}

type Writer struct {
	csv     *csv.Writer
	sep     string
	policy  SeparatorPolicy
	headers []string
}

func NewWriter(w io.Writer, headers []string, opts WriterOptions) (*Writer, error) {
	if opts.Separator == 0 {
		opts.Separator = '|'
	}
	newLine, err := ParseRowDelimiter(opts.NewLine, "\n")
	if err != nil {
		return nil, err
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = opts.Separator
	csvWriter.UseCRLF = newLine == "\r\n"

	out := &Writer{csv: csvWriter, sep: string(opts.Separator), policy: opts.Policy, headers: headers}
	if len(headers) > 0 {
		if err := csvWriter.Write(headers); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return out, nil
}

func (w *Writer) clean(i int, value string) (string, error) {
	if strings.Contains(value, w.sep) {
		if w.policy == RejectSeparator {
			name := fmt.Sprintf("column %d", i)
			if i < len(w.headers) {
				name = w.headers[i]
			}
			return "", fmt.Errorf("%s: %q cannot contain %q: %w", name, value, w.sep, ErrSeparatorInField)
		}
		value = strings.ReplaceAll(value, w.sep, " - ")
	}
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value, nil
}

func (w *Writer) Write(record []string) error {
	cleaned := make([]string, len(record))
	for i, value := range record {
		v, err := w.clean(i, value)
		if err != nil {
			return err
		}
		cleaned[i] = v
	}
	return w.csv.Write(cleaned)
}

func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
