// Package snapshot groups final cluster labels and their reports into
// time-windowed ClusterSnapshots and TimedeltaSnapshots, per
// SPEC_FULL.md §4.5. Ported from original_source's snapshots.py.
package snapshot

import (
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/geo"
)

type windowKey struct {
	label int
	start time.Time
}

// Build groups non-noise reports by (label, hour-truncated window) and
// assembles one ClusterSnapshot per group, then collects groups
// sharing a window into TimedeltaSnapshots. timedeltaDays sets both
// the window width and the TimedeltaSnapshot's TimedeltaDays field.
//
// Every returned ClusterSnapshot.ReportIDs is non-empty, and no report
// appears in more than one snapshot for a given window, since windows
// partition the (label, hour) space exactly.
func Build(labels []int, reports []outbreak.Report, identityMap outbreak.IdentityMap, timedeltaDays int) []outbreak.TimedeltaSnapshot {
	groups := make(map[windowKey][]outbreak.Report)
	for i, label := range labels {
		if label == outbreak.NoiseLabel {
			continue
		}
		r := reports[i]
		start := r.Timestamp.Truncate(time.Hour)
		key := windowKey{label: label, start: start}
		groups[key] = append(groups[key], r)
	}

	windowDuration := time.Duration(timedeltaDays) * 24 * time.Hour

	byWindow := make(map[[2]time.Time][]outbreak.ClusterSnapshot)
	var windowOrder [][2]time.Time

	orderedKeys := make([]windowKey, 0, len(groups))
	for k := range groups {
		orderedKeys = append(orderedKeys, k)
	}
	sort.Slice(orderedKeys, func(i, j int) bool {
		if !orderedKeys[i].start.Equal(orderedKeys[j].start) {
			return orderedKeys[i].start.Before(orderedKeys[j].start)
		}
		return orderedKeys[i].label < orderedKeys[j].label
	})

	for _, key := range orderedKeys {
		members := groups[key]
		windowEnd := key.start.Add(windowDuration)

		clusterID, ok := identityMap[key.label]
		if !ok {
			clusterID = outbreak.ClusterID(fmt.Sprintf("temp_%d", key.label))
		}

		cs := outbreak.ClusterSnapshot{
			ClusterID:       clusterID,
			TimeWindowStart: key.start,
			TimeWindowEnd:   windowEnd,
			Centroid:        centroidOf(members),
			AvgEmbedding:    avgEmbedding(members),
			ReportIDs:       reportIDs(members),
			CommonSymptoms:  commonSymptoms(members),
			Intensity:       aggregateIntensity(members),
			Reports:         members,
		}

		wk := [2]time.Time{key.start, windowEnd}
		if _, exists := byWindow[wk]; !exists {
			windowOrder = append(windowOrder, wk)
		}
		byWindow[wk] = append(byWindow[wk], cs)
	}

	out := make([]outbreak.TimedeltaSnapshot, 0, len(windowOrder))
	for _, wk := range windowOrder {
		out = append(out, outbreak.TimedeltaSnapshot{
			TimedeltaDays:   timedeltaDays,
			TimeWindowStart: wk[0],
			TimeWindowEnd:   wk[1],
			Snapshots:       byWindow[wk],
		})
	}
	return out
}

func centroidOf(reports []outbreak.Report) [2]float64 {
	points := make([]geo.Point, len(reports))
	for i, r := range reports {
		points[i] = geo.Point{Lat: r.Lat, Lon: r.Lon}
	}
	c := geo.Centroid(points)
	return [2]float64{c.Lat, c.Lon}
}

func avgEmbedding(reports []outbreak.Report) []float64 {
	if len(reports) == 0 || len(reports[0].Embedding) == 0 {
		return nil
	}
	d := len(reports[0].Embedding)
	sum := make([]float64, d)
	for _, r := range reports {
		for i := 0; i < d && i < len(r.Embedding); i++ {
			sum[i] += r.Embedding[i]
		}
	}
	n := float64(len(reports))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

func reportIDs(reports []outbreak.Report) []int64 {
	out := make([]int64, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}

// commonSymptoms is the intersection of every member's symptom-name
// set. A single member's set passes through unchanged.
func commonSymptoms(reports []outbreak.Report) outbreak.SymptomSet {
	if len(reports) == 0 {
		return outbreak.SymptomSet{}
	}
	common := symptomNames(reports[0])
	for _, r := range reports[1:] {
		common = common.Intersect(symptomNames(r))
	}
	return common
}

// aggregateIntensity is the mean, over member reports, of the sum of
// that report's symptom intensities — computed once here so both the
// snapshot's own display and the Forecaster's VAR input column read
// the same number, rather than recomputing it from raw reports later
// (history read back from the store carries only ids and aggregates,
// never full report bodies).
func aggregateIntensity(reports []outbreak.Report) float64 {
	if len(reports) == 0 {
		return 0
	}
	var total float64
	for _, r := range reports {
		for _, v := range r.Symptoms {
			total += float64(v)
		}
	}
	return total / float64(len(reports))
}

func symptomNames(r outbreak.Report) outbreak.SymptomSet {
	names := make([]string, 0, len(r.Symptoms))
	for name := range r.Symptoms {
		names = append(names, name)
	}
	return outbreak.NewSymptomSet(names)
}
