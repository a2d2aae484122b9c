// Package tabular parses delimiter-separated occurrence exports into
// string-keyed rows. It never fails on character encoding (UTF-8, then
// Latin-1, then replacement decoding) and detects the field delimiter from a
// bounded sample when the caller does not supply one.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/oceanbio/occurrence-screening/internal/domain"
)

// sniffSampleSize bounds how much decoded text the delimiter sniffer
// inspects.
const sniffSampleSize = 100

// OverflowColumn collects extra fields of ragged rows that carry more values
// than the header defines.
const OverflowColumn = "_rest"

// ErrDelimiterUndetected is returned when neither comma nor tab splits the
// sample consistently. It must propagate to the caller, never be silently
// defaulted.
var ErrDelimiterUndetected = errors.New("could not detect delimiter (comma or tab)")

// candidate delimiters, in preference order on a tie.
var delimiters = []rune{',', '\t'}

// Decode converts raw bytes to text without ever failing: valid UTF-8 is
// used as-is, otherwise the bytes are decoded as Latin-1, and as a last
// resort undecodable bytes are replaced.
func Decode(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content); err == nil {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(content), string(utf8.RuneError))
}

// DetectDelimiter chooses between comma and tab by field-frequency sniffing
// on a bounded prefix of the decoded content. A delimiter is accepted when it
// splits every complete sample line into the same field count of at least
// two. Returns ErrDelimiterUndetected when no candidate is consistent.
func DetectDelimiter(content []byte) (rune, error) {
	text := Decode(content)
	truncated := len(text) > sniffSampleSize
	if truncated {
		text = text[:sniffSampleSize]
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	// A truncated sample likely ends mid-line; that fragment would skew the
	// field count, so drop it when other lines remain.
	if truncated && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}

	var sample []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			sample = append(sample, line)
		}
	}
	if len(sample) == 0 {
		return 0, fmt.Errorf("%w: empty sample", ErrDelimiterUndetected)
	}

	bestDelim := rune(0)
	bestFields := 0
	for _, delim := range delimiters {
		fields := strings.Count(sample[0], string(delim)) + 1
		if fields < 2 {
			continue
		}
		consistent := true
		for _, line := range sample[1:] {
			if strings.Count(line, string(delim))+1 != fields {
				consistent = false
				break
			}
		}
		if consistent && fields > bestFields {
			bestDelim = delim
			bestFields = fields
		}
	}
	if bestDelim == 0 {
		return 0, fmt.Errorf("%w: no candidate consistent across %d sample line(s)", ErrDelimiterUndetected, len(sample))
	}
	return bestDelim, nil
}

// Parse decodes content and parses it into rows plus the delimiter used.
// Pass delimiter 0 to auto-detect. The first line defines the column set;
// later ragged rows are tolerated (missing trailing fields default empty,
// extra fields are joined under OverflowColumn). Every value is trimmed.
func Parse(content []byte, delimiter rune) ([]domain.ParsedRow, rune, error) {
	if delimiter == 0 {
		detected, err := DetectDelimiter(content)
		if err != nil {
			return nil, 0, err
		}
		delimiter = detected
	}

	reader := csv.NewReader(strings.NewReader(Decode(content)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, delimiter, nil
	}
	if err != nil {
		return nil, delimiter, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []domain.ParsedRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, delimiter, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}

		row := make(domain.ParsedRow, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		if len(record) > len(header) {
			extra := make([]string, 0, len(record)-len(header))
			for _, v := range record[len(header):] {
				extra = append(extra, strings.TrimSpace(v))
			}
			row[OverflowColumn] = strings.Join(extra, ", ")
		}
		rows = append(rows, row)
	}

	return rows, delimiter, nil
}
