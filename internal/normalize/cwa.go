package normalize

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
)

// metricSpec ties a CWA element name to the common schema.
type metricSpec struct {
	metric models.Metric
	unit   string
}

// Forecast element names (F-* datasets). Text elements like Wx and CI carry
// no numeric value and are intentionally absent.
var cwaForecastElements = map[string]metricSpec{
	"T":      {models.MetricTemperature, "°C"},
	"MaxT":   {models.MetricTemperature, "°C"},
	"MinT":   {models.MetricTemperature, "°C"},
	"PoP":    {models.MetricRainProbability, "%"},
	"PoP6h":  {models.MetricRainProbability, "%"},
	"PoP12h": {models.MetricRainProbability, "%"},
	"RH":     {models.MetricHumidity, "%"},
	"WS":     {models.MetricWindSpeed, "m/s"},
}

// Observation element names (O-* datasets).
var cwaObservationElements = map[string]metricSpec{
	"TEMP": {models.MetricTemperature, "°C"},
	"HUMD": {models.MetricHumidity, "%"},
	"WDSD": {models.MetricWindSpeed, "m/s"},
	"PM25": {models.MetricAirQuality, "μg/m³"},
}

// normalizeCWA dispatches on the dataset family: F-* forecast, O-* observation,
// E-* earthquake.
func normalizeCWA(dataset string, payload []byte) (Result, error) {
	root := gjson.GetBytes(payload, "cwaopendata")
	if !root.Exists() {
		// Payloads from before the agency rename still use the old root.
		root = gjson.GetBytes(payload, "cwbopendata")
	}
	if !root.Exists() {
		return Result{}, fmt.Errorf("%w: missing cwaopendata root", client.ErrSchema)
	}
	ds := root.Get("dataset")
	if !ds.Exists() {
		return Result{}, fmt.Errorf("%w: missing dataset element", client.ErrSchema)
	}

	switch {
	case strings.HasPrefix(dataset, "E-"):
		return cwaEarthquake(ds), nil
	case strings.HasPrefix(dataset, "O-"):
		return cwaObservation(ds), nil
	case strings.HasPrefix(dataset, "F-"):
		return cwaForecast(ds), nil
	}

	// Unknown dataset id: infer the family from the payload shape.
	if ds.Get("earthquake").Exists() {
		return cwaEarthquake(ds), nil
	}
	if ds.Get("location.0.weatherElement.0.time").Exists() {
		return cwaForecast(ds), nil
	}
	if ds.Get("location").Exists() {
		return cwaObservation(ds), nil
	}
	return Result{}, fmt.Errorf("%w: unrecognized CWA dataset %q", client.ErrSchema, dataset)
}

// cwaForecast handles the nested forecast shape: locations carry weather
// elements, each with time periods holding a parameter block.
func cwaForecast(ds gjson.Result) Result {
	var res Result
	for _, loc := range ds.Get("location").Array() {
		name := loc.Get("locationName").String()
		if name == "" {
			res.Skipped++
			continue
		}
		lat := loc.Get("lat").Float()
		lon := loc.Get("lon").Float()

		for _, el := range loc.Get("weatherElement").Array() {
			spec, ok := cwaForecastElements[el.Get("elementName").String()]
			if !ok {
				continue
			}
			first := el.Get("time.0")
			if !first.Exists() {
				res.Skipped++
				continue
			}
			observedAt, err := ParseTime(first.Get("startTime").String())
			if err != nil {
				res.Skipped++
				continue
			}

			// Some datasets wrap the parameter in a single-element array, and
			// temperature values ride in parameterName rather than parameterValue.
			param := first.Get("parameter")
			if param.IsArray() {
				param = param.Get("0")
			}
			raw := param.Get("parameterValue").String()
			if raw == "" {
				raw = param.Get("parameterName").String()
			}
			value, parsedUnit, err := ParseQuantity(raw)
			if err != nil {
				res.Skipped++
				continue
			}
			unit := canonicalUnit(param.Get("parameterUnit").String(), spec.unit)
			if unit == spec.unit && parsedUnit != "" {
				unit = canonicalUnit(parsedUnit, spec.unit)
			}

			res.Records = append(res.Records, models.WeatherRecord{
				Location:   CanonicalLocation(name),
				Latitude:   lat,
				Longitude:  lon,
				ObservedAt: observedAt,
				Metric:     spec.metric,
				Value:      value,
				Unit:       unit,
			})
		}
	}
	return res
}

// cwaObservation handles station observations: flat elementName/elementValue
// pairs per station. CWA encodes missing sensor readings as -99.
func cwaObservation(ds gjson.Result) Result {
	var res Result
	for _, loc := range ds.Get("location").Array() {
		name := loc.Get("locationName").String()
		if name == "" {
			res.Skipped++
			continue
		}
		observedAt, err := ParseTime(loc.Get("time.obsTime").String())
		if err != nil {
			res.Skipped++
			continue
		}
		lat := loc.Get("lat").Float()
		lon := loc.Get("lon").Float()

		for _, el := range loc.Get("weatherElement").Array() {
			spec, ok := cwaObservationElements[el.Get("elementName").String()]
			if !ok {
				continue
			}
			val := el.Get("elementValue")
			if val.IsObject() {
				val = val.Get("value")
			}
			value, parsedUnit, err := ParseQuantity(val.String())
			if err != nil || value <= -90 {
				res.Skipped++
				continue
			}
			unit := spec.unit
			if parsedUnit != "" {
				unit = canonicalUnit(parsedUnit, spec.unit)
			}

			res.Records = append(res.Records, models.WeatherRecord{
				Location:   CanonicalLocation(name),
				Latitude:   lat,
				Longitude:  lon,
				ObservedAt: observedAt,
				Metric:     spec.metric,
				Value:      value,
				Unit:       unit,
			})
		}
	}
	return res
}

// cwaEarthquake emits one magnitude and one depth record per event.
func cwaEarthquake(ds gjson.Result) Result {
	var res Result
	quakes := ds.Get("earthquake")
	if !quakes.Exists() {
		quakes = ds.Get("Earthquake")
	}
	for _, eq := range quakes.Array() {
		info := eq.Get("earthquakeInfo")
		if !info.Exists() {
			info = eq.Get("EarthquakeInfo")
		}
		location := firstString(info, "epicenter.location", "Epicenter.Location")
		if location == "" {
			res.Skipped++
			continue
		}
		observedAt, err := ParseTime(firstString(info, "originTime", "OriginTime"))
		if err != nil {
			res.Skipped++
			continue
		}
		lat := firstResult(info, "epicenter.lat", "epicenter.epicenterLat", "Epicenter.EpicenterLatitude").Float()
		lon := firstResult(info, "epicenter.lon", "epicenter.epicenterLon", "Epicenter.EpicenterLongitude").Float()

		emitted := false
		if mag := firstResult(info, "magnitude.magnitudeValue", "magnitudeValue", "EarthquakeMagnitude.MagnitudeValue"); mag.Exists() {
			res.Records = append(res.Records, models.WeatherRecord{
				Location:   location,
				Latitude:   lat,
				Longitude:  lon,
				ObservedAt: observedAt,
				Metric:     models.MetricMagnitude,
				Value:      mag.Float(),
				Unit:       "ML",
			})
			emitted = true
		}
		if depth := firstResult(info, "depth.value", "depth", "FocalDepth"); depth.Exists() {
			res.Records = append(res.Records, models.WeatherRecord{
				Location:   location,
				Latitude:   lat,
				Longitude:  lon,
				ObservedAt: observedAt,
				Metric:     models.MetricDepth,
				Value:      depth.Float(),
				Unit:       "km",
			})
			emitted = true
		}
		if !emitted {
			res.Skipped++
		}
	}
	return res
}

// canonicalUnit maps CWA unit spellings to the common ones.
func canonicalUnit(unit, fallback string) string {
	switch strings.TrimSpace(unit) {
	case "":
		return fallback
	case "C", "攝氏度":
		return "°C"
	case "百分比", "percent":
		return "%"
	case "公尺/秒":
		return "m/s"
	default:
		return unit
	}
}

func firstString(j gjson.Result, paths ...string) string {
	return firstResult(j, paths...).String()
}

func firstResult(j gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := j.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
