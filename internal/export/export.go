// Package export renders record and alert batches as CSV, TSV, or JSON with a
// fixed column order, so repeated exports of the same batch are byte-identical.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

// ParseFormat maps a query parameter to a Format. Empty defaults to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatCSV, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatTSV:
		return FormatTSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

var recordHeader = []string{"location", "latitude", "longitude", "observedAt", "metric", "value", "unit"}

// WriteRecords encodes a record batch to w in the given format.
func WriteRecords(w io.Writer, format Format, records []models.WeatherRecord) error {
	if format == FormatJSON {
		return writeJSON(w, records)
	}

	cw := delimitedWriter(w, format)
	if err := cw.Write(recordHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Location,
			formatFloat(rec.Latitude),
			formatFloat(rec.Longitude),
			rec.ObservedAt.UTC().Format(time.RFC3339),
			string(rec.Metric),
			formatFloat(rec.Value),
			rec.Unit,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var alertHeader = []string{"location", "severity", "metric", "thresholdBreached", "observedValue", "message"}

// WriteAlerts encodes an alert batch to w in the given format.
func WriteAlerts(w io.Writer, format Format, events []models.AlertEvent) error {
	if format == FormatJSON {
		return writeJSON(w, events)
	}

	cw := delimitedWriter(w, format)
	if err := cw.Write(alertHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.Location,
			string(ev.Severity),
			string(ev.Metric),
			formatFloat(ev.ThresholdBreached),
			formatFloat(ev.ObservedValue),
			ev.Message,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write alert row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func delimitedWriter(w io.Writer, format Format) *csv.Writer {
	cw := csv.NewWriter(w)
	if format == FormatTSV {
		cw.Comma = '\t'
	}
	return cw
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
