// Package synthetic generates deterministic hourly bikeshare records shaped
// like the Seoul bike sharing dataset, for tests and demos.
package synthetic

import (
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// Features are the feature columns in configured order.
var Features = []string{
	"hour", "temp",
	"humidity", "wind_speed",
	"visibility", "solar_rad",
	"rainfall", "snowfall", "seasons",
	"holiday", "day", "month",
}

// Target is the target column.
const Target = "rented_bike_count"

// header mirrors the cleaned source file, which carries a date column the
// pipeline ignores.
var header = append([]string{"date", Target}, Features...)

// Rows returns n hourly records starting at 2017-12-01 00:00. The target is
// always well above zero.
func Rows(n int, seed int64) []dataset.Row {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2017, time.December, 1, 0, 0, 0, 0, time.UTC)
	holidays := map[string]bool{"2017-12-25": true, "2018-01-01": true, "2018-03-01": true, "2018-05-05": true, "2018-08-15": true}

	rows := make([]dataset.Row, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		season := Season(ts.Month())
		hour := ts.Hour()

		temp := seasonalTemp(ts) + rng.NormFloat64()*2
		humidity := clamp(60+rng.NormFloat64()*15, 20, 100)
		wind := clamp(1.7+rng.NormFloat64()*0.8, 0, 6)
		visibility := clamp(1500+rng.NormFloat64()*400, 100, 2000)
		solar := 0.0
		if hour >= 7 && hour <= 18 {
			solar = clamp(math.Sin(float64(hour-6)/12*math.Pi)*(1.5+temp/30)+rng.Float64()*0.2, 0, 3.5)
		}
		rainfall := 0.0
		if rng.Float64() < 0.06 {
			rainfall = rng.Float64() * 5
		}
		snowfall := 0.0
		if season == "Winter" && rng.Float64() < 0.05 {
			snowfall = rng.Float64() * 3
		}
		holiday := "No Holiday"
		if holidays[ts.Format("2006-01-02")] {
			holiday = "Holiday"
		}

		count := 300 +
			15*(clamp(temp, -15, 35)+15) +
			500*commutePeak(hour) -
			humidity -
			50*math.Min(rainfall, 2) +
			rng.NormFloat64()*10
		if season == "Summer" {
			count += 100
		}
		if holiday == "Holiday" {
			count -= 80
		}

		rows[i] = dataset.Row{
			"date":       ts.Format("02/01/2006"),
			Target:       math.Round(count),
			"hour":       float64(hour),
			"temp":       round1(temp),
			"humidity":   math.Round(humidity),
			"wind_speed": round1(wind),
			"visibility": math.Round(visibility),
			"solar_rad":  round1(solar),
			"rainfall":   round1(rainfall),
			"snowfall":   round1(snowfall),
			"seasons":    season,
			"holiday":    holiday,
			"day":        ts.Weekday().String(),
			"month":      ts.Month().String(),
		}
	}
	return rows
}

// WinterMidnight is a cold January night with no precipitation.
func WinterMidnight() dataset.Row {
	return dataset.Row{
		"hour":       0,
		"temp":       5.0,
		"humidity":   60,
		"wind_speed": 2.0,
		"visibility": 2000,
		"solar_rad":  0.0,
		"rainfall":   0.0,
		"snowfall":   0.0,
		"seasons":    "Winter",
		"holiday":    "No Holiday",
		"day":        "Friday",
		"month":      "January",
	}
}

// WriteCSV writes rows to path with a header row.
func WriteCSV(path string, rows []dataset.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.WithStack(err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for j, col := range header {
			record[j] = format(row[col])
		}
		if err := w.Write(record); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.WithStack(err)
	}
	return f.Close()
}

// Season maps a month to its Korean meteorological season.
func Season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Winter"
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	default:
		return "Autumn"
	}
}

func seasonalTemp(ts time.Time) float64 {
	// coldest mid-January, warmest mid-July
	day := float64(ts.YearDay())
	return 12.5 - 15*math.Cos((day-15)/365*2*math.Pi) + 3*math.Sin(float64(ts.Hour()-9)/24*2*math.Pi)
}

func commutePeak(hour int) float64 {
	h := float64(hour)
	return math.Exp(-(h-8)*(h-8)/2) + 1.2*math.Exp(-(h-18)*(h-18)/4)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func format(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return ""
	}
}
