package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
)

// ToDomain converts the config file's declarative node/partition inventory
// into the domain types the controller's registry and partition table are
// built from.
func (c *Cluster) ToDomain() ([]domain.Node, []*domain.Partition, error) {
	nodeIndex := make(map[string]int, len(c.Nodes))
	nodes := make([]domain.Node, len(c.Nodes))
	for i, n := range c.Nodes {
		nodes[i] = domain.Node{
			Index: i, Name: n.Name, Address: n.Address,
			CPUs: n.CPUs, CPUsFree: n.CPUs, MemoryMB: n.MemoryMB, DiskMB: n.DiskMB,
			Weight: n.Weight, State: domain.NodeIdle, Features: featureSet(n.Features),
		}
		nodeIndex[n.Name] = i
	}

	parts := make([]*domain.Partition, 0, len(c.Partitions))
	for _, p := range c.Partitions {
		share, err := parseShare(p.Share)
		if err != nil {
			return nil, nil, fmt.Errorf("partition %q: %w", p.Name, err)
		}
		maxTime, err := parseMaxTimeLimit(p.MaxTimeLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("partition %q: %w", p.Name, err)
		}
		indices := make(map[int]struct{}, len(p.Nodes))
		for _, name := range p.Nodes {
			idx, ok := nodeIndex[name]
			if !ok {
				return nil, nil, fmt.Errorf("partition %q: unknown node %q", p.Name, name)
			}
			indices[idx] = struct{}{}
		}
		parts = append(parts, &domain.Partition{
			Name: p.Name, NodeIndices: indices, MinNodes: p.MinNodes, MaxNodes: p.MaxNodes,
			MaxTimeLimit: maxTime, Priority: p.Priority, Share: share,
			RootOnly: p.RootOnly, Hidden: p.Hidden, AllowedGroups: p.AllowedGroups,
			Availability: domain.PartitionUp, Default: p.Default,
		})
	}
	return nodes, parts, nil
}

func featureSet(features []string) map[string]struct{} {
	if len(features) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(features))
	for _, f := range features {
		out[f] = struct{}{}
	}
	return out
}

// parseShare parses a partition's share policy string: "exclusive", "no",
// "yes[:N]" or "force[:N]", per spec.md §3's partition share semantics.
func parseShare(raw string) (domain.SharePolicy, error) {
	if raw == "" {
		return domain.SharePolicy{Kind: domain.ShareExclusive}, nil
	}
	kind, countStr, _ := strings.Cut(raw, ":")
	count := 0
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return domain.SharePolicy{}, fmt.Errorf("invalid share count %q: %w", countStr, err)
		}
		count = n
	}
	switch kind {
	case "exclusive":
		return domain.SharePolicy{Kind: domain.ShareExclusive}, nil
	case "no":
		return domain.SharePolicy{Kind: domain.ShareNo}, nil
	case "yes":
		if count == 0 {
			count = 4
		}
		return domain.SharePolicy{Kind: domain.ShareYes, Count: count}, nil
	case "force":
		if count == 0 {
			count = 4
		}
		return domain.SharePolicy{Kind: domain.ShareForce, Count: count}, nil
	default:
		return domain.SharePolicy{}, fmt.Errorf("unknown share policy %q", raw)
	}
}

func parseMaxTimeLimit(raw string) (time.Duration, error) {
	if raw == "" || raw == "UNLIMITED" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
