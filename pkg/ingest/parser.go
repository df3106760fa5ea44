package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// Required header fields of an uploaded catalog file.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldCount       = "count"
)

// ParsedRow is one successfully coerced data row.
type ParsedRow struct {
	// Record is the validated row content.
	Record catalog.RawRecord
	// Raw is the row's original comma-joined content, input to the dedupe key.
	Raw []byte
	// Line is the 1-based line number in the source file, header included.
	Line int
}

// RowError is a fault confined to one data row. The reader keeps going past
// it; only file-level faults abort parsing.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// RowReader streams a header-delimited catalog file row by row. The first
// row must name at least the title, description, price and count fields, in
// any order.
type RowReader struct {
	csv     *csv.Reader
	columns map[string]int
	line    int
}

// NewRowReader reads and checks the header row. A missing or incomplete
// header is a file-level failure.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{fieldTitle, fieldDescription, fieldPrice, fieldCount} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("header is missing required field %q", required)
		}
	}

	return &RowReader{csv: cr, columns: columns, line: 1}, nil
}

// Next returns the next valid row. It returns io.EOF at the end of the file,
// a *RowError for a fault confined to one row, and any other error for a
// fault that invalidates the whole file.
func (rr *RowReader) Next() (*ParsedRow, error) {
	fields, err := rr.csv.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	rr.line++
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &RowError{Line: rr.line, Err: err}
		}
		return nil, fmt.Errorf("read row %d: %w", rr.line, err)
	}

	record, err := rr.coerce(fields)
	if err != nil {
		return nil, &RowError{Line: rr.line, Err: err}
	}

	return &ParsedRow{
		Record: record,
		Raw:    []byte(strings.Join(fields, ",")),
		Line:   rr.line,
	}, nil
}

// coerce maps one row's fields into a validated RawRecord.
func (rr *RowReader) coerce(fields []string) (catalog.RawRecord, error) {
	record := catalog.RawRecord{
		Title:       strings.TrimSpace(fields[rr.columns[fieldTitle]]),
		Description: strings.TrimSpace(fields[rr.columns[fieldDescription]]),
	}

	priceText := strings.TrimSpace(fields[rr.columns[fieldPrice]])
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return catalog.RawRecord{}, fmt.Errorf("%w: price %q is not a decimal", catalog.ErrInvalidRecord, priceText)
	}
	record.Price = price

	countText := strings.TrimSpace(fields[rr.columns[fieldCount]])
	count, err := strconv.Atoi(countText)
	if err != nil {
		return catalog.RawRecord{}, fmt.Errorf("%w: count %q is not an integer", catalog.ErrInvalidRecord, countText)
	}
	record.Count = count

	if err := record.Validate(); err != nil {
		return catalog.RawRecord{}, err
	}
	return record, nil
}
