// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MinColumns is the column count of an open_jtalk/mecab lexicon row:
// surface, left id, right id, cost, nine feature columns.
const MinColumns = 13

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Entry is one validated lexicon row.
type Entry []string

// Surface returns the surface form.
func (e Entry) Surface() string { return e[0] }

// ParseCSV reads and validates lexicon rows from r. Blank lines are skipped
// and a leading UTF-8 BOM is tolerated. name labels errors.
func ParseCSV(r io.Reader, name string) ([]Entry, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	var entries []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &DictionaryError{Path: name, Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if err := validateRow(rec); err != nil {
			return nil, &DictionaryError{Path: name, Line: line, Err: err}
		}
		entries = append(entries, Entry(rec))
	}
}

func validateRow(rec []string) error {
	if len(rec) < MinColumns {
		return fmt.Errorf("expected at least %d columns, got %d", MinColumns, len(rec))
	}
	if strings.TrimSpace(rec[0]) == "" {
		return errors.New("surface form is empty")
	}
	for i, col := range []string{"left id", "right id", "cost"} {
		if _, err := strconv.Atoi(strings.TrimSpace(rec[i+1])); err != nil {
			return fmt.Errorf("%s %q is not an integer", col, rec[i+1])
		}
	}
	return nil
}

// ReadOverlays parses every file in paths and concatenates their entries in
// order. A missing or empty file contributes nothing.
func ReadOverlays(paths []string) ([]Entry, error) {
	var all []Entry
	for _, p := range paths {
		f, err := os.Open(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &DictionaryError{Path: p, Err: err}
		}
		entries, err := ParseCSV(f, p)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// WriteCSV writes entries as lexicon rows.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		if err := cw.Write(e); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVFile(path string, entries []Entry) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return WriteCSV(f, entries)
}
