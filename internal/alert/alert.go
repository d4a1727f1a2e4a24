// Package alert evaluates threshold rules against normalized record batches.
// Evaluation is pure: the same batch and rules always yield the same events,
// in record order.
package alert

import (
	"fmt"

	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// Evaluate applies every rule to every record and returns the breaches in
// record order (rule order breaking ties within a record). Both comparators
// are strict: a value exactly at the limit never fires.
func Evaluate(records []models.WeatherRecord, rules []models.ThresholdRule) []models.AlertEvent {
	var events []models.AlertEvent
	for _, rec := range records {
		for _, rule := range rules {
			if rec.Metric != rule.Metric || !breaches(rec.Value, rule) {
				continue
			}
			ev := models.AlertEvent{
				Location:          rec.Location,
				Severity:          rule.Severity,
				Metric:            rec.Metric,
				ThresholdBreached: rule.Limit,
				ObservedValue:     rec.Value,
				Message:           message(rec, rule),
			}
			events = append(events, ev)
			observability.AlertsEmittedTotal.WithLabelValues(string(rule.Severity)).Inc()
		}
	}
	return events
}

func breaches(value float64, rule models.ThresholdRule) bool {
	switch rule.Comparator {
	case models.ComparatorGreaterThan:
		return value > rule.Limit
	case models.ComparatorLessThan:
		return value < rule.Limit
	}
	return false
}

func message(rec models.WeatherRecord, rule models.ThresholdRule) string {
	direction := "above"
	if rule.Comparator == models.ComparatorLessThan {
		direction = "below"
	}
	unit := rec.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s %s %g%s is %s the %g limit", rec.Location, rec.Metric, rec.Value, unit, direction, rule.Limit)
}
