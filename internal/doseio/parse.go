package doseio

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// MaxInputBytes bounds the size of a dose file.
const MaxInputBytes = 4 << 20

// Format names a dose file encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	// ErrTooLarge is returned when a file exceeds MaxInputBytes.
	ErrTooLarge = errors.New("dose file is too large")
	// ErrUnknownFormat is returned when no format can be inferred.
	ErrUnknownFormat = errors.New("unknown dose file format")
)

// ParseError lists row-level problems found while reading a file. Rows are
// indexed from zero in file order, excluding the CSV header.
type ParseError struct {
	Errors []models.FieldError
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid dose file"
	}
	return fmt.Sprintf("invalid dose file: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
}

// Options control how files are read.
type Options struct {
	// Location is applied to CSV times that carry no offset. UTC when nil.
	Location *time.Location
}

// DetectFormat infers the format from a content type or a file name.
func DetectFormat(contentType, name string) (Format, error) {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "text/csv", "application/csv":
				return FormatCSV, nil
			case "application/json":
				return FormatJSON, nil
			}
		}
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", ErrUnknownFormat
}

// Parse reads doses in the given format.
func Parse(r io.Reader, format Format, opts Options) ([]models.DoseInput, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r, opts)
	case FormatJSON:
		return ParseJSON(r)
	default:
		return nil, ErrUnknownFormat
	}
}

// ParseJSON reads a JSON array of doses, or an object with a "doses" array.
// Route and compound aliases are normalized.
func ParseJSON(r io.Reader) ([]models.DoseInput, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	var inputs []models.DoseInput
	if len(data) > 0 && data[0] == '{' {
		var wrapper struct {
			Doses []models.DoseInput `json:"doses"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, jsonError(err)
		}
		inputs = wrapper.Doses
	} else if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, jsonError(err)
	}

	for i := range inputs {
		inputs[i].Route = NormalizeRoute(inputs[i].Route)
		inputs[i].Compound = NormalizeCompound(inputs[i].Compound)
	}
	return inputs, nil
}

func jsonError(err error) error {
	return &ParseError{Errors: []models.FieldError{
		{Field: "body", Message: "invalid JSON: " + err.Error(), Code: "invalid"},
	}}
}

// ParseCSV reads a delimited file with a header row. Comma, semicolon and
// tab delimiters are detected from the header. Columns are matched by name
// and unknown columns are ignored.
func ParseCSV(r io.Reader, opts Options) ([]models.DoseInput, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Errors: []models.FieldError{
			{Field: "header", Message: "file is empty", Code: "required"},
		}}
	}
	if err != nil {
		return nil, &ParseError{Errors: []models.FieldError{
			{Field: "header", Message: err.Error(), Code: "invalid"},
		}}
	}

	columns := make(map[int]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if c := normalizeColumn(name); c != "" && !seen[c] {
			columns[i] = c
			seen[c] = true
		}
	}
	var missing []models.FieldError
	for _, c := range []string{colTime, colRoute, colCompound} {
		if !seen[c] {
			missing = append(missing, models.FieldError{
				Field: "header", Message: fmt.Sprintf("missing %s column", c), Code: "required",
			})
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Errors: missing}
	}

	var (
		inputs []models.DoseInput
		errs   []models.FieldError
	)
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, models.FieldError{
				Field: fmt.Sprintf("rows[%d]", row), Message: err.Error(), Code: "invalid",
			})
			continue
		}
		if blank(record) {
			row--
			continue
		}
		in, rowErrs := parseRecord(record, columns, loc, fmt.Sprintf("rows[%d].", row))
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		inputs = append(inputs, in)
	}

	if len(errs) > 0 {
		return nil, &ParseError{Errors: errs}
	}
	return inputs, nil
}

func parseRecord(record []string, columns map[int]string, loc *time.Location, prefix string) (models.DoseInput, []models.FieldError) {
	var (
		in    models.DoseInput
		patch models.PatchDose
		errs  []models.FieldError
		used  bool
	)
	number := func(col, value string) *float64 {
		v, err := parseNumber(value)
		if err != nil {
			errs = append(errs, models.FieldError{Field: prefix + col, Message: "must be a number", Code: "invalid"})
			return nil
		}
		return &v
	}

	for i, value := range record {
		col, ok := columns[i]
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		switch col {
		case colTime:
			at, err := parseTime(value, loc)
			if err != nil {
				errs = append(errs, models.FieldError{Field: prefix + col, Message: "must be a date or date-time", Code: "invalid"})
				continue
			}
			in.AdministeredAt = models.Timestamp(at)
		case colRoute:
			in.Route = NormalizeRoute(value)
		case colCompound:
			in.Compound = NormalizeCompound(value)
		case colRaw:
			in.RawMassMg = number(col, value)
		case colE2:
			in.E2MassMg = number(col, value)
		case colTier:
			tier := key(value)
			in.SublingualTier = &tier
		case colHold:
			in.HoldMinutes = number(col, value)
		case colTheta:
			in.Theta = number(col, value)
		case colPatchMode:
			patch.Mode = key(value)
			used = true
		case colPatchTotal:
			patch.TotalMg = number(col, value)
			used = true
		case colPatchRate:
			patch.RateUGPerDay = number(col, value)
			used = true
		case colPatchWear:
			patch.WearHours = number(col, value)
			used = true
		case colNotes:
			notes := value
			in.Notes = &notes
		}
	}

	if in.AdministeredAt.Time().IsZero() && !hasError(errs, prefix+colTime) {
		errs = append(errs, models.FieldError{Field: prefix + colTime, Message: "is required", Code: "required"})
	}
	if used {
		in.Patch = &patch
	}
	return in, errs
}

var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", value)
}

// parseNumber accepts both decimal points and decimal commas.
func parseNumber(value string) (float64, error) {
	if !strings.Contains(value, ".") {
		value = strings.Replace(value, ",", ".", 1)
	}
	return strconv.ParseFloat(value, 64)
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, count := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

// readAll reads at most MaxInputBytes. Input that is not valid UTF-8 is
// decoded as Windows-1252, which is what spreadsheet exports usually are.
func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading dose file: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, ErrTooLarge
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decoding dose file: %w", err)
		}
		data = decoded
	}
	return data, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func hasError(errs []models.FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
