package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Census variable names that carry a population count across vintages
// (decennial PL, ACS, population estimates).
var censusPopulationColumns = map[string]bool{
	"POP":         true,
	"P1_001N":     true,
	"B01001_001E": true,
	"POPESTIMATE": true,
}

var vintageRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// normalizeCensus handles the Census API's array-of-arrays shape: a header row
// followed by value rows. NAME becomes the location; population columns become
// records. The observation time comes from a DATE column when present,
// otherwise from the dataset vintage (e.g. "2020/dec/pl").
func normalizeCensus(dataset string, payload []byte) (Result, error) {
	doc := gjson.ParseBytes(payload)
	if !doc.IsArray() {
		return Result{}, fmt.Errorf("%w: census payload is not an array", client.ErrSchema)
	}
	rows := doc.Array()
	if len(rows) < 2 || !rows[0].IsArray() {
		return Result{}, fmt.Errorf("%w: census payload has no header row", client.ErrSchema)
	}

	header := make([]string, 0)
	for _, h := range rows[0].Array() {
		header = append(header, strings.ToUpper(strings.TrimSpace(h.String())))
	}
	nameIdx := indexOf(header, "NAME")
	dateIdx := indexOf(header, "DATE_CODE")
	if dateIdx < 0 {
		dateIdx = indexOf(header, "DATE")
	}
	vintage := vintageTime(dataset)

	var res Result
	for _, row := range rows[1:] {
		cells := row.Array()
		if nameIdx < 0 || nameIdx >= len(cells) {
			res.Skipped++
			continue
		}
		location := strings.TrimSpace(cells[nameIdx].String())
		if location == "" {
			res.Skipped++
			continue
		}

		observedAt := vintage
		if dateIdx >= 0 && dateIdx < len(cells) {
			if t, err := ParseTime(cells[dateIdx].String()); err == nil {
				observedAt = t
			}
		}
		if observedAt.IsZero() {
			res.Skipped++
			continue
		}

		emitted := false
		for i, column := range header {
			if i >= len(cells) || !isPopulationColumn(column) {
				continue
			}
			value, _, err := ParseQuantity(cells[i].String())
			if err != nil {
				continue
			}
			res.Records = append(res.Records, models.WeatherRecord{
				Location:   location,
				ObservedAt: observedAt,
				Metric:     models.MetricPopulation,
				Value:      value,
				Unit:       "persons",
			})
			emitted = true
			break
		}
		if !emitted {
			res.Skipped++
		}
	}
	return res, nil
}

func isPopulationColumn(column string) bool {
	if censusPopulationColumns[column] {
		return true
	}
	return strings.HasPrefix(column, "POPESTIMATE")
}

// vintageTime extracts the dataset vintage year ("2020/dec/pl" → 2020-01-01).
// Zero when the path carries no year, as with timeseries datasets.
func vintageTime(dataset string) time.Time {
	m := vintageRe.FindString(dataset)
	if m == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006", m)
	if err != nil {
		return time.Time{}
	}
	return t
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
