// Package normalize converts provider-specific JSON payloads into the common
// WeatherRecord schema. Each provider has its own normalizer selected by an
// explicit dispatch; malformed individual records are skipped and counted,
// and ErrSchema is returned only when the top-level payload shape is
// unrecognized or no records could be extracted at all.
package normalize

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// Result is the outcome of normalizing one payload.
type Result struct {
	Records []models.WeatherRecord `json:"records"`
	Skipped int                    `json:"skipped"`
}

// Normalize converts one raw payload into WeatherRecords.
func Normalize(provider models.Provider, dataset string, payload []byte) (Result, error) {
	if !gjson.ValidBytes(payload) {
		return Result{}, fmt.Errorf("%w: payload is not valid JSON", client.ErrSchema)
	}

	var (
		res Result
		err error
	)
	switch provider {
	case models.ProviderCWA:
		res, err = normalizeCWA(dataset, payload)
	case models.ProviderDataGov:
		res, err = normalizeTabular(payload)
	case models.ProviderCensus:
		res, err = normalizeCensus(dataset, payload)
	default:
		return Result{}, fmt.Errorf("%w: no normalizer for provider %q", client.ErrSchema, provider)
	}
	if err != nil {
		return Result{}, err
	}

	// Per-record degradation escalates to a payload-level failure only when a
	// recognized shape yielded nothing usable.
	if len(res.Records) == 0 {
		return Result{}, fmt.Errorf("%w: no records extracted from %s payload (skipped %d)", client.ErrSchema, provider, res.Skipped)
	}

	p := string(provider)
	observability.RecordsNormalizedTotal.WithLabelValues(p).Add(float64(len(res.Records)))
	observability.RecordsSkippedTotal.WithLabelValues(p).Add(float64(res.Skipped))
	return res, nil
}
