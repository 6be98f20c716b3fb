package compiler_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/backingwatch/backingx/pkg/compiler"
	"github.com/backingwatch/backingx/pkg/graph"
	"github.com/backingwatch/backingx/pkg/models"
)

func TestCompileAssetWritesDocument(t *testing.T) {
	root := t.TempDir()
	c := compiler.NewFileCompiler(zaptest.NewLogger(t), root)

	id := models.ID{System: "ethereum", Address: "0xabc"}
	now := time.Now().UTC()
	resource := compiler.AssetResource{
		Details:    models.Details{ID: id, Name: "ABC Token", Symbol: "ABC"},
		Price:      &models.Price{Timestamp: now, USD: 2},
		CompiledAt: now,
	}
	require.NoError(t, c.CompileAsset(context.Background(), resource))

	data, err := os.ReadFile(filepath.Join(root, "assets", "ethereum:0xabc.json"))
	require.NoError(t, err)

	var got compiler.AssetResource
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ABC", got.Details.Symbol)
	require.NotNil(t, got.Price)
	assert.Equal(t, 2.0, got.Price.USD)
	// Series the pipeline never derived are explicit nulls.
	assert.Nil(t, got.MarketCap)
	assert.Nil(t, got.Collateralization)
}

func TestCompileAssetReplacesDocument(t *testing.T) {
	root := t.TempDir()
	c := compiler.NewFileCompiler(zaptest.NewLogger(t), root)

	id := models.ID{System: "ethereum", Address: "0xabc"}
	for _, usd := range []float64{1, 2} {
		resource := compiler.AssetResource{
			Details: models.Details{ID: id},
			Price:   &models.Price{USD: usd},
		}
		require.NoError(t, c.CompileAsset(context.Background(), resource))
	}

	data, err := os.ReadFile(filepath.Join(root, "assets", "ethereum:0xabc.json"))
	require.NoError(t, err)
	var got compiler.AssetResource
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2.0, got.Price.USD)

	// No temp file left behind.
	_, err = os.Stat(filepath.Join(root, "assets", "ethereum:0xabc.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompileEntityKinds(t *testing.T) {
	root := t.TempDir()
	c := compiler.NewFileCompiler(zaptest.NewLogger(t), root)
	ctx := context.Background()

	require.NoError(t, c.CompileEntity(ctx, "entities", compiler.EntityResource{ID: "acme"}))
	require.NoError(t, c.CompileEntity(ctx, "systems", compiler.EntityResource{ID: "ethereum"}))

	_, err := os.Stat(filepath.Join(root, "entities", "acme.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "systems", "ethereum.json"))
	require.NoError(t, err)
}

func TestCompileGraph(t *testing.T) {
	root := t.TempDir()
	c := compiler.NewFileCompiler(zaptest.NewLogger(t), root)

	snapshot := graph.Snapshot{
		Timestamp: time.Now().UTC(),
		Graph: graph.Graph{
			Nodes: []graph.Node{{ID: "eth:a", Value: 100}},
		},
		Stats: graph.Stats{Nodes: 1, Roots: 1, Leaves: 1, Isolated: 1},
	}
	require.NoError(t, c.CompileGraph(context.Background(), snapshot))

	data, err := os.ReadFile(filepath.Join(root, "graph.json"))
	require.NoError(t, err)
	var got graph.Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1, got.Stats.Nodes)
	require.Len(t, got.Graph.Nodes, 1)
	assert.Equal(t, "eth:a", got.Graph.Nodes[0].ID)
}
