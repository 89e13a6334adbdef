package messages

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Export formats accepted by the parser.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DetectFormat infers the export format from the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q, expected .csv or .json", filepath.Base(path))
	}
}

// ParseFile reads a message export. Files may be UTF-8 or UTF-16; a byte
// order mark selects the decoding, with UTF-8 assumed otherwise.
func ParseFile(path, format string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer file.Close()

	decoded := transform.NewReader(file, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	switch format {
	case FormatCSV:
		return parseCSV(decoded)
	case FormatJSON:
		return parseJSON(decoded)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// csv headers are matched case-insensitively against these names.
var csvColumns = map[string]struct{}{
	"source":    {},
	"sender":    {},
	"recipient": {},
	"sent_at":   {},
	"body":      {},
}

func parseCSV(reader io.Reader) ([]Row, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[int]string, len(header))
	for position, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, known := csvColumns[name]; known {
			index[position] = name
		}
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("csv header has none of the expected columns (source, sender, recipient, sent_at, body)")
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		var row Row
		for position, value := range record {
			switch index[position] {
			case "source":
				row.Source = normalizeField(value)
			case "sender":
				row.Sender = normalizeField(value)
			case "recipient":
				row.Recipient = normalizeField(value)
			case "sent_at":
				row.SentAt = normalizeField(value)
			case "body":
				row.Body = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type jsonMessage struct {
	Source    string `json:"source"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	SentAt    string `json:"sent_at"`
	Body      string `json:"body"`
}

func parseJSON(reader io.Reader) ([]Row, error) {
	var records []jsonMessage
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, Row{
			Source:    normalizeField(record.Source),
			Sender:    normalizeField(record.Sender),
			Recipient: normalizeField(record.Recipient),
			SentAt:    normalizeField(record.SentAt),
			Body:      record.Body,
		})
	}
	return rows, nil
}
