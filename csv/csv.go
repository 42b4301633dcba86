// Package csv is a wrapper around the stdlib csv library that provides a column oriented API for the GTFS static parser.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jamespfennell/departures/constants"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// File iterates over the rows of a single GTFS static CSV file.
type File struct {
	name                   constants.StaticFile
	csvReader              *csv.Reader
	headerMap              map[string]int
	rowNumber              int
	missingRequiredColumns []string
	cells                  []string
	missingKeys            []string
	ioErr                  error
	closer                 func() error
}

// New reads the header row of the file. The reader is closed by File.Close, or immediately if the
// header cannot be read.
func New(name constants.StaticFile, reader io.ReadCloser) (*File, error) {
	csvReader := BOMAwareCSVReader(reader)
	// Some feeds pad rows with trailing commas.
	csvReader.FieldsPerRecord = -1
	header, err := csvReader.Read()
	if err == io.EOF {
		reader.Close()
		return nil, fmt.Errorf("%s contains no rows", name)
	} else if err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	csvReader.ReuseRecord = true
	m := map[string]int{}
	for i, colHeader := range header {
		m[strings.TrimSpace(colHeader)] = i
	}
	return &File{
		name:      name,
		headerMap: m,
		csvReader: csvReader,
		closer:    reader.Close,
	}, nil
}

func (f *File) Name() constants.StaticFile {
	return f.name
}

// RequiredColumn is a column whose absence, or whose empty value in a row, makes the row unusable.
type RequiredColumn struct {
	i int
	s string
	f *File
}

func (f *File) RequiredColumn(s string) RequiredColumn {
	i, ok := f.headerMap[s]
	if !ok {
		f.missingRequiredColumns = append(f.missingRequiredColumns, s)
		i = -1
	}
	return RequiredColumn{i, s, f}
}

func (f *File) MissingRequiredColumns() []string {
	return f.missingRequiredColumns
}

func (c RequiredColumn) Read() string {
	v := c.f.cell(c.i)
	if v == "" {
		c.f.missingKeys = append(c.f.missingKeys, c.s)
	}
	return v
}

// OptionalColumn is a column that may be absent from the file or empty in any row.
type OptionalColumn struct {
	i int
	f *File
}

func (f *File) OptionalColumn(s string) OptionalColumn {
	i, ok := f.headerMap[s]
	if !ok {
		i = -1
	}
	return OptionalColumn{i: i, f: f}
}

func (c OptionalColumn) Read() string {
	return c.f.cell(c.i)
}

func (c OptionalColumn) ReadOr(s string) string {
	if v := c.f.cell(c.i); v != "" {
		return v
	}
	return s
}

func (f *File) cell(i int) string {
	if i < 0 || i >= len(f.cells) {
		return ""
	}
	// The CSV reader reuses its record slice, but the strings themselves are fresh allocations.
	return strings.TrimSpace(f.cells[i])
}

// NextRow advances to the next row. It returns false at the end of the file or on a read error;
// the error is reported by Close.
func (f *File) NextRow() bool {
	cells, err := f.csvReader.Read()
	if err != nil {
		f.cells = nil
		if err != io.EOF {
			f.ioErr = fmt.Errorf("failed to read row %d of %s: %w", f.rowNumber+1, f.name, err)
		}
		return false
	}
	f.rowNumber++
	f.cells = cells
	f.missingKeys = nil
	return true
}

func (f *File) RowNumber() int {
	return f.rowNumber
}

// MissingRowKeys returns the required columns that were read as empty in the current row.
func (f *File) MissingRowKeys() []string {
	return f.missingKeys
}

func (f *File) Close() error {
	closeErr := f.closer()
	if f.ioErr != nil {
		return f.ioErr
	}
	return closeErr
}

// From: https://stackoverflow.com/a/76023436
//
// BOMAwareCSVReader will detect a UTF BOM (Byte Order Mark) at the
// start of the data and transform to UTF8 accordingly.
// If there is no BOM, it will read the data without any transformation.
func BOMAwareCSVReader(reader io.Reader) *csv.Reader {
	var transformer = unicode.BOMOverride(encoding.Nop.NewDecoder())
	return csv.NewReader(transform.NewReader(reader, transformer))
}
