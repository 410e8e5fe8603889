package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/stretchr/testify/require"
)

func ptr(n int64) *int64 { return &n }

type fakeCounter struct {
	value int64
}

func (f fakeCounter) GetClusterCounter(ctx context.Context) (int64, error) {
	return f.value, nil
}

type failingCounter struct{}

func (failingCounter) GetClusterCounter(ctx context.Context) (int64, error) {
	return 0, errors.New("counter unavailable")
}

type fakeMapping struct {
	identity outbreak.IdentityMap
	reports  outbreak.ClusterReportsMap
	err      error
}

func (f fakeMapping) GetIdentityMap(ctx context.Context) (outbreak.IdentityMap, outbreak.ClusterReportsMap, error) {
	return f.identity, f.reports, f.err
}

func reportsWithIDs(ids ...int64) []outbreak.Report {
	out := make([]outbreak.Report, len(ids))
	for i, id := range ids {
		out[i] = outbreak.Report{ID: id}
	}
	return out
}

func TestAssignMintsFreshIdsWithNoPriorState(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2, 3)
	labels := []int{0, 0, 0}

	identityMap, reportsMap, next, err := m.Assign(context.Background(), labels, reports, nil, ptr(0))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_0"), identityMap[0])
	require.ElementsMatch(t, []int64{1, 2, 3}, reportsMap["cluster_0"])
	require.Equal(t, int64(1), next)
}

func TestAssignReadsStartCounterFromStoreWhenNotGivenDirectly(t *testing.T) {
	m := NewManager(fakeCounter{value: 42}, nil)
	reports := reportsWithIDs(1, 2)
	labels := []int{0, 0}

	identityMap, _, next, err := m.Assign(context.Background(), labels, reports, nil, nil)
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_42"), identityMap[0])
	require.Equal(t, int64(43), next)
}

func TestAssignInheritsIdOnStrongOverlap(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2, 3, 4)
	labels := []int{0, 0, 0, 0}
	previous := outbreak.ClusterReportsMap{
		"cluster_0": {1, 2, 3, 4, 5},
	}

	identityMap, _, next, err := m.Assign(context.Background(), labels, reports, previous, ptr(5))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_0"), identityMap[0])
	require.Equal(t, int64(5), next, "no fresh id minted, counter unchanged")
}

func TestAssignMintsFreshWhenOverlapBelowThreshold(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2)
	labels := []int{0, 0}
	previous := outbreak.ClusterReportsMap{
		"cluster_0": {1, 100, 101, 102, 103, 104, 105},
	}

	identityMap, _, next, err := m.Assign(context.Background(), labels, reports, previous, ptr(7))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_7"), identityMap[0])
	require.Equal(t, int64(8), next)
}

func TestAssignTieBreaksLexicographically(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2, 3, 4)
	labels := []int{0, 0, 0, 0}
	previous := outbreak.ClusterReportsMap{
		"cluster_5": {1, 2, 3, 4},
		"cluster_2": {1, 2, 3, 4},
	}

	identityMap, _, _, err := m.Assign(context.Background(), labels, reports, previous, ptr(9))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_2"), identityMap[0])
}

func TestAssignDoesNotReuseAClaimedId(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2, 3, 4, 5, 6)
	labels := []int{0, 0, 0, 1, 1, 1}
	previous := outbreak.ClusterReportsMap{
		"cluster_0": {1, 2, 3},
	}

	identityMap, _, next, err := m.Assign(context.Background(), labels, reports, previous, ptr(20))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_0"), identityMap[0])
	require.Equal(t, outbreak.ClusterID("cluster_20"), identityMap[1])
	require.Equal(t, int64(21), next)
}

func TestAssignFallsBackToFreshIdsWhenStoreUnavailable(t *testing.T) {
	m := NewManager(nil, fakeMapping{err: errors.New("store down")})
	reports := reportsWithIDs(1, 2)
	labels := []int{0, 0}

	identityMap, _, _, err := m.Assign(context.Background(), labels, reports, nil, ptr(3))
	require.NoError(t, err)
	require.Equal(t, outbreak.ClusterID("cluster_3"), identityMap[0])
}

func TestAssignPropagatesCounterFailureAsError(t *testing.T) {
	m := NewManager(failingCounter{}, nil)
	reports := reportsWithIDs(1, 2)
	labels := []int{0, 0}

	_, _, _, err := m.Assign(context.Background(), labels, reports, nil, nil)
	require.Error(t, err)
}

func TestAssignIgnoresNoiseLabels(t *testing.T) {
	m := NewManager(nil, nil)
	reports := reportsWithIDs(1, 2)
	labels := []int{outbreak.NoiseLabel, outbreak.NoiseLabel}

	identityMap, reportsMap, next, err := m.Assign(context.Background(), labels, reports, nil, ptr(0))
	require.NoError(t, err)
	require.Empty(t, identityMap)
	require.Empty(t, reportsMap)
	require.Equal(t, int64(0), next)
}
