package forecast

import (
	"sort"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// Observation is one day's row of a cluster's time series: the four
// numeric columns the VAR model trains on, plus the carried-along
// embedding and symptom set that are never extrapolated.
type Observation struct {
	Time           time.Time
	ReportCount    float64
	Lat            float64
	Lon            float64
	Intensity      float64
	AvgEmbedding   []float64
	CommonSymptoms outbreak.SymptomSet
}

// buildObservations turns a cluster's snapshots into one Observation
// per snapshot, sorted by window start. Intensity is read from the
// snapshot's own Intensity field (snapshot.Build's aggregateIntensity
// output) rather than recomputed from member reports, since history
// drawn from the store carries only report ids, not full report
// bodies.
func buildObservations(snapshots []outbreak.ClusterSnapshot) []Observation {
	out := make([]Observation, len(snapshots))
	for i, s := range snapshots {
		out[i] = Observation{
			Time:           s.TimeWindowStart,
			ReportCount:    float64(s.ReportCount()),
			Lat:            s.Centroid[0],
			Lon:            s.Centroid[1],
			Intensity:      s.Intensity,
			AvgEmbedding:   s.AvgEmbedding,
			CommonSymptoms: s.CommonSymptoms,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// reindex fills the observations onto a contiguous one-per-day range
// spanning the first to the last observed day, linearly interpolating
// the numeric columns and forward-filling embedding/common symptoms
// across any gap days. Input must already be sorted ascending by Time
// and de-duplicated to one row per day.
func reindex(obs []Observation) []Observation {
	if len(obs) == 0 {
		return nil
	}
	start := obs[0].Time
	end := obs[len(obs)-1].Time
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	out := make([]Observation, days)
	present := make(map[int]Observation, len(obs))
	for _, o := range obs {
		idx := int(o.Time.Sub(start).Hours() / 24)
		present[idx] = o
	}

	var lastKnown, nextKnown int
	var haveLast bool
	for i := 0; i < days; i++ {
		t := start.AddDate(0, 0, i)
		if o, ok := present[i]; ok {
			out[i] = o
			out[i].Time = t
			lastKnown = i
			haveLast = true
			continue
		}
		// Find the next known index for linear interpolation.
		nextKnown = i
		for nextKnown < days {
			if _, ok := present[nextKnown]; ok {
				break
			}
			nextKnown++
		}
		if !haveLast || nextKnown >= days {
			// No earlier or no later anchor: carry the nearest known
			// row forward/backward without interpolating.
			anchor := obs[len(obs)-1]
			if !haveLast {
				anchor = obs[0]
			} else {
				anchor = out[lastKnown]
			}
			out[i] = anchor
			out[i].Time = t
			continue
		}
		a := out[lastKnown]
		b := present[nextKnown]
		frac := float64(i-lastKnown) / float64(nextKnown-lastKnown)
		out[i] = Observation{
			Time:           t,
			ReportCount:    lerp(a.ReportCount, b.ReportCount, frac),
			Lat:            lerp(a.Lat, b.Lat, frac),
			Lon:            lerp(a.Lon, b.Lon, frac),
			Intensity:      lerp(a.Intensity, b.Intensity, frac),
			AvgEmbedding:   a.AvgEmbedding,
			CommonSymptoms: a.CommonSymptoms,
		}
	}
	return out
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}
