package workflow

import (
	"context"
	"sort"

	"github.com/backingwatch/backingx/app/tracker/activity"
	"github.com/backingwatch/backingx/pkg/models"
)

// BuildTiers lays out the pipeline. The order is a dependency contract, not
// a preference: every stage reads store outputs the stages before it wrote
// this run.
//
//	fetch + update-entities + update-systems
//	relations + supply + underlying-assets
//	market-cap
//	total-value-locked (systems, entities) + collateralization-ratio
//	collateralization-graph
//	compile (assets, entities, systems, graph)
func BuildTiers(ac *activity.Context, state *activity.State) []Tier {
	return []Tier{
		{
			assetStage("fetch", state, func(ctx context.Context, id models.ID) error {
				return ac.FetchAsset(ctx, state, id, state.Assets[id])
			}),
			entityStage("update-entities", state, func(ctx context.Context, id string) error {
				return ac.UpdateEntity(ctx, state, id, state.Entities[id])
			}),
			systemStage("update-systems", state, func(ctx context.Context, id string) error {
				return ac.UpdateSystem(ctx, state, id, state.Systems[id])
			}),
		},
		{
			assetStage("relations", state, func(ctx context.Context, id models.ID) error {
				return ac.Relations(ctx, state, id, state.Assets[id])
			}),
			assetStage("supply", state, func(ctx context.Context, id models.ID) error {
				return ac.Supply(ctx, state, id, state.Assets[id])
			}),
			assetStage("underlying-assets", state, func(ctx context.Context, id models.ID) error {
				return ac.UnderlyingAssets(ctx, state, id)
			}),
		},
		{
			assetStage("market-cap", state, func(ctx context.Context, id models.ID) error {
				return ac.MarketCap(ctx, state, id)
			}),
		},
		{
			systemStage("total-value-locked", state, func(ctx context.Context, id string) error {
				return ac.TVLSystem(ctx, state, id)
			}),
			entityStage("total-value-locked", state, func(ctx context.Context, id string) error {
				return ac.TVLEntity(ctx, state, id)
			}),
			assetStage("collateralization-ratio", state, func(ctx context.Context, id models.ID) error {
				return ac.CollateralizationRatio(ctx, state, id)
			}),
		},
		{
			{
				Name: "collateralization-graph",
				Tasks: func(context.Context) ([]Task, error) {
					return []Task{{ID: "graph", Run: func(ctx context.Context) error {
						return ac.AssembleGraph(ctx, state)
					}}}, nil
				},
			},
		},
		{
			assetStage("compile", state, func(ctx context.Context, id models.ID) error {
				return ac.CompileAsset(ctx, state, id)
			}),
			entityStage("compile", state, func(ctx context.Context, id string) error {
				return ac.CompileEntity(ctx, state, id)
			}),
			systemStage("compile", state, func(ctx context.Context, id string) error {
				return ac.CompileSystem(ctx, state, id)
			}),
			{
				Name: "compile",
				Tasks: func(context.Context) ([]Task, error) {
					return []Task{{ID: "graph", Run: func(ctx context.Context) error {
						return ac.CompileGraph(ctx, state)
					}}}, nil
				},
			},
		},
	}
}

func assetStage(name string, state *activity.State, fn func(ctx context.Context, id models.ID) error) Stage {
	return Stage{
		Name: name,
		Tasks: func(context.Context) ([]Task, error) {
			ids := state.AssetIDs()
			sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
			tasks := make([]Task, 0, len(ids))
			for _, id := range ids {
				id := id
				tasks = append(tasks, Task{ID: id.String(), Run: func(ctx context.Context) error {
					return fn(ctx, id)
				}})
			}
			return tasks, nil
		},
	}
}

func entityStage(name string, state *activity.State, fn func(ctx context.Context, id string) error) Stage {
	return flatStage(name, func() []string {
		ids := make([]string, 0, len(state.Entities))
		for id := range state.Entities {
			ids = append(ids, id)
		}
		return ids
	}, fn)
}

func systemStage(name string, state *activity.State, fn func(ctx context.Context, id string) error) Stage {
	return flatStage(name, func() []string {
		ids := make([]string, 0, len(state.Systems))
		for id := range state.Systems {
			ids = append(ids, id)
		}
		return ids
	}, fn)
}

func flatStage(name string, enumerate func() []string, fn func(ctx context.Context, id string) error) Stage {
	return Stage{
		Name: name,
		Tasks: func(context.Context) ([]Task, error) {
			ids := enumerate()
			sort.Strings(ids)
			tasks := make([]Task, 0, len(ids))
			for _, id := range ids {
				id := id
				tasks = append(tasks, Task{ID: id, Run: func(ctx context.Context) error {
					return fn(ctx, id)
				}})
			}
			return tasks, nil
		},
	}
}
