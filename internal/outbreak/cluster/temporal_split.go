package cluster

import (
	"sort"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// SplitByTimeGap implements §4.3: any non-noise cluster whose member
// reports, sorted by time, contain a gap larger than maxGapDays is
// broken into time-contiguous segments. The first segment keeps the
// original label; later segments get fresh labels starting at
// max(labels)+1, in the order the splits occur.
//
// Ported from original_source's split_clusters_through_time, fixing
// the "labels.size" bug noted in spec.md §9: next-label selection
// always uses the maximum of the current label slice, never a length.
func SplitByTimeGap(labels []int, reports []outbreak.Report, maxGapDays int) []int {
	out := append([]int(nil), labels...)
	if len(out) == 0 {
		return out
	}

	byLabel := make(map[int][]int) // label -> indices into reports/labels
	for i, l := range out {
		if l == outbreak.NoiseLabel {
			continue
		}
		byLabel[l] = append(byLabel[l], i)
	}

	nextLabel := maxLabel(out) + 1
	maxGap := time.Duration(maxGapDays) * 24 * time.Hour

	// Stable label iteration order so ties in split assignment are
	// deterministic across runs.
	orderedLabels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		orderedLabels = append(orderedLabels, l)
	}
	sort.Ints(orderedLabels)

	for _, label := range orderedLabels {
		idxs := byLabel[label]
		sort.Slice(idxs, func(a, b int) bool {
			return reports[idxs[a]].Timestamp.Before(reports[idxs[b]].Timestamp)
		})

		segmentLabel := label
		for k := 1; k < len(idxs); k++ {
			gap := reports[idxs[k]].Timestamp.Sub(reports[idxs[k-1]].Timestamp)
			if gap > maxGap {
				segmentLabel = nextLabel
				nextLabel++
			}
			out[idxs[k]] = segmentLabel
		}
	}

	return out
}

func maxLabel(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}
