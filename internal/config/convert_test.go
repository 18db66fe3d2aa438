package config

import (
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestToDomainBuildsNodesAndPartitions(t *testing.T) {
	c := &Cluster{
		Nodes: []NodeSpec{
			{Name: "n0", CPUs: 4, MemoryMB: 1024, Features: []string{"gpu"}},
			{Name: "n1", CPUs: 8, MemoryMB: 2048},
		},
		Partitions: []PartitionSpec{
			{Name: "batch", Nodes: []string{"n0", "n1"}, Share: "no", MaxTimeLimit: "2h", Default: true},
		},
	}

	nodes, parts, err := c.ToDomain()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, 0, nodes[0].Index)
	require.Equal(t, 4, nodes[0].CPUsFree)
	require.Equal(t, domain.NodeIdle, nodes[0].State)
	require.Contains(t, nodes[0].Features, "gpu")

	require.Len(t, parts, 1)
	p := parts[0]
	require.Equal(t, "batch", p.Name)
	require.Len(t, p.NodeIndices, 2)
	require.Equal(t, domain.SharePolicy{Kind: domain.ShareNo}, p.Share)
	require.Equal(t, 2*time.Hour, p.MaxTimeLimit)
	require.True(t, p.Default)
	require.Equal(t, domain.PartitionUp, p.Availability)
}

func TestToDomainRejectsUnknownNode(t *testing.T) {
	c := &Cluster{
		Nodes:      []NodeSpec{{Name: "n0", CPUs: 1}},
		Partitions: []PartitionSpec{{Name: "batch", Nodes: []string{"ghost"}}},
	}
	_, _, err := c.ToDomain()
	require.Error(t, err)
}

func TestParseShare(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.SharePolicy
	}{
		{"", domain.SharePolicy{Kind: domain.ShareExclusive}},
		{"exclusive", domain.SharePolicy{Kind: domain.ShareExclusive}},
		{"no", domain.SharePolicy{Kind: domain.ShareNo}},
		{"yes", domain.SharePolicy{Kind: domain.ShareYes, Count: 4}},
		{"yes:8", domain.SharePolicy{Kind: domain.ShareYes, Count: 8}},
		{"force:2", domain.SharePolicy{Kind: domain.ShareForce, Count: 2}},
	}
	for _, tc := range cases {
		got, err := parseShare(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}

	_, err := parseShare("bogus")
	require.Error(t, err)
	_, err = parseShare("yes:nope")
	require.Error(t, err)
}

func TestParseMaxTimeLimit(t *testing.T) {
	d, err := parseMaxTimeLimit("")
	require.NoError(t, err)
	require.Zero(t, d)

	d, err = parseMaxTimeLimit("UNLIMITED")
	require.NoError(t, err)
	require.Zero(t, d)

	d, err = parseMaxTimeLimit("90m")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	_, err = parseMaxTimeLimit("not-a-duration")
	require.Error(t, err)
}
