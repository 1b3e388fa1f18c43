// Package aggregate computes the smart score from a window of daily raw
// scores. It is a pure function: no I/O, no clock, no randomness, so repeated
// calls on the same input always agree and re-computation is safe.
package aggregate

import (
	"math"
	"sort"
)

// RawScore is one daily score entry.
type RawScore struct {
	Day      string
	RawValue float64
	MaxValue float64
}

// SmartScore is the aggregated result plus the days that contributed to it.
type SmartScore struct {
	Score       int
	TopBandDays []string
}

// topBandLimit caps how many entries the top band may contribute.
const topBandLimit = 5

// CalculateSmartScore aggregates raw scores:
//
//  1. Normalize each entry by its own ceiling.
//  2. The best entry (first wins on ties) anchors a threshold 30% of its
//     ceiling below its raw value, floored at 0.
//  3. Entries at or above the threshold form the top band, trimmed to the 5
//     highest normalized values (stable on ties).
//  4. The score is the band's mean normalized value on a 0-100 scale, damped
//     by a multiplier that grows with band size.
func CalculateSmartScore(raws []RawScore) SmartScore {
	if len(raws) == 0 {
		return SmartScore{Score: 0, TopBandDays: []string{}}
	}

	type entry struct {
		RawScore
		normalized float64
	}
	entries := make([]entry, 0, len(raws))
	for _, r := range raws {
		n := 0.0
		if r.MaxValue != 0 {
			n = r.RawValue / r.MaxValue
		}
		entries = append(entries, entry{RawScore: r, normalized: n})
	}

	top := entries[0]
	for _, e := range entries[1:] {
		if e.normalized > top.normalized {
			top = e
		}
	}

	threshold := top.RawValue - top.MaxValue*0.3
	if threshold < 0 {
		threshold = 0
	}

	band := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.RawValue >= threshold {
			band = append(band, e)
		}
	}
	if len(band) > topBandLimit {
		sort.SliceStable(band, func(i, j int) bool {
			return band[i].normalized > band[j].normalized
		})
		band = band[:topBandLimit]
	}
	if len(band) == 0 {
		return SmartScore{Score: 0, TopBandDays: []string{}}
	}

	sum := 0.0
	for _, e := range band {
		sum += e.normalized
	}
	average := sum / float64(len(band))

	multiplier := 1.0
	switch len(band) {
	case 1:
		multiplier = 0.5
	case 2:
		multiplier = 0.7
	case 3, 4:
		multiplier = 0.85
	}

	days := make([]string, 0, len(band))
	for _, e := range band {
		days = append(days, e.Day)
	}

	return SmartScore{
		Score:       int(math.Round(average * 100 * multiplier)),
		TopBandDays: days,
	}
}
