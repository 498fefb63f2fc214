package aggregator

import (
	"math"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
)

var currencyTokens = strings.NewReplacer(
	",", "",
	"₹", "", "$", "", "€", "", "£", "",
	"Rs.", "", "rs.", "", "RS.", "",
	"INR", "", "inr", "",
	"USD", "", "usd", "",
	"Rs", "", "rs", "", "RS", "",
	"/-", "",
)

// ParseMoney reads a price as written in an extraction. Thousands separators
// and currency markers are ignored. Anything that still does not parse as a
// finite number is reported as absent, never as zero.
func ParseMoney(raw string) (float64, bool) {
	s := strings.TrimSpace(currencyTokens.Replace(strings.TrimSpace(raw)))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SentimentScore maps a sentiment label to +1, -1 or 0 by substring.
func SentimentScore(label string) float64 {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "positive"):
		return 1
	case strings.Contains(l, "negative"):
		return -1
	}
	return 0
}

// round2 rounds to two places, ties to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func ptr(v float64) *float64 { return &v }

func median(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	m, err := stats.Median(vals)
	if err != nil {
		return nil
	}
	return &m
}

func mean(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	m, err := stats.Mean(vals)
	if err != nil {
		return 0, false
	}
	return m, true
}

// meanRounded is the two-place mean, nil when there is nothing to average.
func meanRounded(vals []float64) *float64 {
	m, ok := mean(vals)
	if !ok {
		return nil
	}
	return ptr(round2(m))
}

func minMax(vals []float64) (lo, hi *float64) {
	if len(vals) == 0 {
		return nil, nil
	}
	mn, _ := stats.Min(vals)
	mx, _ := stats.Max(vals)
	return &mn, &mx
}

// sampleVariance uses the n-1 denominator and needs at least two values.
func sampleVariance(vals []float64) *float64 {
	if len(vals) < 2 {
		return nil
	}
	v, err := stats.SampleVariance(vals)
	if err != nil {
		return nil
	}
	return ptr(round2(v))
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func collect(ps ...*float64) []float64 {
	out := make([]float64, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
