// Package graph assembles per-asset valuations and their collateral into
// the global asset-backing graph and its aggregate statistics.
package graph

import (
	"sort"
	"time"

	"github.com/backingwatch/backingx/pkg/models"
)

// Node is one asset with a market-cap valuation.
type Node struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// Link is one directed backing relationship: Source is backed by Target.
// Value is the USD value of the position, nil when the underlying could not
// be priced.
type Link struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Value  *float64 `json:"value"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Stats are purely local aggregates over the assembled graph. Nothing here
// traverses, so cycles in the backing relationships cannot loop the
// assembler. Ratios are nil when their denominator is zero: an undefined
// ratio is reported as undefined, never as Inf or silent zero.
type Stats struct {
	Nodes         int      `json:"nodes"`
	Links         int      `json:"links"`
	AverageDegree float64  `json:"average_degree"`
	Roots         int      `json:"roots"`
	Leaves        int      `json:"leaves"`
	Isolated      int      `json:"isolated"`
	RootRatio     *float64 `json:"root_ratio"`
	LeafRatio     *float64 `json:"leaf_ratio"`
	GraphRatio    *float64 `json:"graph_ratio"`
}

// Snapshot is the stored record for one assembled graph.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Graph     Graph     `json:"graph"`
	Stats     Stats     `json:"stats"`
}

func (s Snapshot) Time() time.Time { return s.Timestamp }

// Asset is one valued asset entering assembly: its market-cap valuation
// plus its resolved collateral, nil for base assets backed by nothing.
type Asset struct {
	MarketCap  models.MarketCap
	Collateral *models.Relationships
}

// Assemble builds the graph from every asset holding a market-cap
// valuation: each becomes a node, and each collateral position becomes a
// link. Base assets end up as roots; assets appearing only as backing
// targets contribute in-degree but no node of their own.
func Assemble(ts time.Time, assets map[models.ID]Asset) Snapshot {
	ids := make([]models.ID, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var g Graph
	outDegree := make(map[string]int)
	inDegree := make(map[string]int)

	for _, id := range ids {
		g.Nodes = append(g.Nodes, Node{ID: id.String(), Value: assets[id].MarketCap.USD})
	}

	for _, id := range ids {
		collateral := assets[id].Collateral
		if collateral == nil {
			continue
		}
		targets := make([]string, 0, len(collateral.Breakdown))
		for target := range collateral.Breakdown {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			entry := collateral.Breakdown[target]
			g.Links = append(g.Links, Link{Source: id.String(), Target: target, Value: entry.USD})
			outDegree[id.String()]++
			inDegree[target]++
		}
	}

	stats := Stats{Nodes: len(g.Nodes), Links: len(g.Links)}

	var totalDegree int
	var rootCollateral, rootCap float64
	var leafCollateral, leafCap float64
	var allCollateral, allCap float64

	for _, id := range ids {
		a := assets[id]
		key := id.String()
		out, in := outDegree[key], inDegree[key]
		totalDegree += out + in

		collateral := 0.0
		if a.Collateral != nil && a.Collateral.USD != nil {
			collateral = *a.Collateral.USD
		}
		allCollateral += collateral
		allCap += a.MarketCap.USD

		if out == 0 {
			stats.Roots++
			rootCollateral += collateral
			rootCap += a.MarketCap.USD
		}
		if in == 0 {
			stats.Leaves++
			leafCollateral += collateral
			leafCap += a.MarketCap.USD
		}
		if out == 0 && in == 0 {
			stats.Isolated++
		}
	}

	if stats.Nodes > 0 {
		stats.AverageDegree = float64(totalDegree) / float64(stats.Nodes)
	}
	stats.RootRatio = ratio(rootCollateral, rootCap)
	stats.LeafRatio = ratio(leafCollateral, leafCap)
	stats.GraphRatio = ratio(allCollateral, allCap)

	return Snapshot{Timestamp: ts, Graph: g, Stats: stats}
}

func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	r := num / den
	return &r
}
