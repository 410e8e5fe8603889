// Package identity assigns stable string cluster identifiers to
// run-local integer labels, maximizing continuity across successive
// runs via report-overlap matching.
package identity

import (
	"context"
	"fmt"
	"sort"

	"github.com/banshee-data/outbreak-cluster/internal/monitoring"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// matchThreshold is the minimum Jaccard overlap for a new cluster to
// inherit a previous cluster's identifier.
const matchThreshold = 0.30

// CounterSource reads the current value of the persistent cluster-id
// counter. It is consulted once per Assign call, never per mint: the
// counter is fetched, advanced purely in memory while matching runs,
// and the caller persists the resulting value atomically with the
// rest of the run (see SPEC_FULL.md §5 on the process-wide counter).
type CounterSource interface {
	GetClusterCounter(ctx context.Context) (int64, error)
}

// MappingSource loads the identity map and cluster-to-reports mapping
// produced by the latest completed run.
type MappingSource interface {
	GetIdentityMap(ctx context.Context) (outbreak.IdentityMap, outbreak.ClusterReportsMap, error)
}

// Manager is the identity.IdentityManager of SPEC_FULL.md §4.4. It
// carries a reference to the store components it needs; it holds no
// other mutable state between runs.
type Manager struct {
	Counter CounterSource
	Mapping MappingSource
}

// NewManager builds a Manager backed by the given store collaborators.
func NewManager(counter CounterSource, mapping MappingSource) *Manager {
	return &Manager{Counter: counter, Mapping: mapping}
}

// Assign maps the current label vector to persistent ClusterIds.
//
// previousReports, if non-nil, is matched against directly instead of
// consulting the store, so a caller that already holds the previous
// mapping (the tests do) skips the store read. The pipeline calls
// Assign once per run, on the labels after time-gap splitting, with
// previousReports nil. On store failure while
// loading the previous mapping, identity reverts to minting every
// cluster fresh; a warning is logged and no error is returned, per the
// "identity store unavailable" failure mode.
//
// startCounter, if non-nil, is used as the first value to mint instead
// of reading it from the counter store. The returned nextCounter is
// the value the caller must persist atomically with the run write;
// every minted id used a value in [startCounter, nextCounter).
func (m *Manager) Assign(ctx context.Context, labels []int, reports []outbreak.Report, previousReports outbreak.ClusterReportsMap, startCounter *int64) (identityMap outbreak.IdentityMap, reportsMap outbreak.ClusterReportsMap, nextCounter int64, err error) {
	newClusters := groupReportIDs(labels, reports)

	prevReports := previousReports
	if prevReports == nil && m.Mapping != nil {
		_, loaded, loadErr := m.Mapping.GetIdentityMap(ctx)
		if loadErr != nil {
			monitoring.Logf("identity: store unavailable, minting fresh ids for this run: %v", loadErr)
		} else {
			prevReports = loaded
		}
	}

	counter, err := m.resolveStartCounter(ctx, startCounter)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("identity: read cluster counter: %w", err)
	}

	result := make(outbreak.IdentityMap, len(newClusters))
	resultReports := make(outbreak.ClusterReportsMap, len(newClusters))
	used := make(map[outbreak.ClusterID]bool, len(newClusters))

	labelsInOrder := make([]int, 0, len(newClusters))
	for l := range newClusters {
		labelsInOrder = append(labelsInOrder, l)
	}
	sort.Ints(labelsInOrder)

	for _, label := range labelsInOrder {
		reportIDs := newClusters[label]
		id := bestMatch(reportIDs, prevReports, used)
		if id == "" {
			id = outbreak.ClusterID(fmt.Sprintf("cluster_%d", counter))
			counter++
		}
		used[id] = true
		result[label] = id
		resultReports[id] = reportIDs
	}

	return result, resultReports, counter, nil
}

func (m *Manager) resolveStartCounter(ctx context.Context, startCounter *int64) (int64, error) {
	if startCounter != nil {
		return *startCounter, nil
	}
	if m.Counter == nil {
		return 0, nil
	}
	return m.Counter.GetClusterCounter(ctx)
}

// groupReportIDs gathers, per non-noise label, the report ids
// belonging to it, in the order reports appear.
func groupReportIDs(labels []int, reports []outbreak.Report) map[int][]int64 {
	out := make(map[int][]int64)
	for i, l := range labels {
		if l == outbreak.NoiseLabel {
			continue
		}
		out[l] = append(out[l], reports[i].ID)
	}
	return out
}

// bestMatch finds the previous cluster with the highest Jaccard
// overlap against reportIDs, subject to matchThreshold and excluding
// ids already claimed this run. Ties are broken by lexicographically
// smallest ClusterId.
func bestMatch(reportIDs []int64, previous outbreak.ClusterReportsMap, used map[outbreak.ClusterID]bool) outbreak.ClusterID {
	if len(previous) == 0 {
		return ""
	}

	current := toSet(reportIDs)

	var best outbreak.ClusterID
	bestScore := matchThreshold

	// Ascending order so that, among equally-scored candidates, the
	// first one encountered is lexicographically smallest and a later
	// tie never displaces it.
	candidates := make([]outbreak.ClusterID, 0, len(previous))
	for id := range previous {
		candidates = append(candidates, id)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	for _, id := range candidates {
		if used[id] {
			continue
		}
		score := jaccard(current, toSet(previous[id]))
		if score > bestScore {
			best = id
			bestScore = score
		}
	}
	return best
}

func toSet(ids []int64) map[int64]struct{} {
	s := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func jaccard(a, b map[int64]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
