// Package compiler turns per-identifier pipeline outputs into the resource
// documents served externally. The pipeline invokes it once per identifier
// after every stage barrier has resolved.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/graph"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/utils"
)

// AssetResource is the compiled document for one asset: static details plus
// the latest value of every derived series. Absent series stay null.
type AssetResource struct {
	Details           models.Details            `json:"details"`
	Price             *models.Price             `json:"price"`
	Supply            *models.Supply            `json:"supply"`
	Backing           *models.Backing           `json:"backing"`
	MarketCap         *models.MarketCap         `json:"market_cap"`
	Relationships     *models.Relationships     `json:"relationships"`
	Collateralization *models.Collateralization `json:"collateralization"`
	CompiledAt        time.Time                 `json:"compiled_at"`
}

// EntityResource is the compiled document for one entity or system.
type EntityResource struct {
	ID         string      `json:"id"`
	Details    any         `json:"details"`
	TVL        *models.TVL `json:"tvl"`
	CompiledAt time.Time   `json:"compiled_at"`
}

// Compiler is the collaborator contract the pipeline consumes.
type Compiler interface {
	CompileAsset(ctx context.Context, resource AssetResource) error
	CompileEntity(ctx context.Context, kind string, resource EntityResource) error
	CompileGraph(ctx context.Context, snapshot graph.Snapshot) error
}

// FileCompiler writes resource documents as JSON files under an output root,
// one directory per identifier kind.
type FileCompiler struct {
	logger *zap.Logger
	root   string
}

func NewFileCompiler(logger *zap.Logger, root string) *FileCompiler {
	if root == "" {
		root = utils.Env("RESOURCES_DIR", "resources")
	}
	return &FileCompiler{logger: logger, root: root}
}

func (c *FileCompiler) CompileAsset(ctx context.Context, resource AssetResource) error {
	name := sanitize(resource.Details.ID.String()) + ".json"
	return c.write(ctx, filepath.Join(c.root, "assets", name), resource)
}

func (c *FileCompiler) CompileEntity(ctx context.Context, kind string, resource EntityResource) error {
	name := sanitize(resource.ID) + ".json"
	return c.write(ctx, filepath.Join(c.root, kind, name), resource)
}

func (c *FileCompiler) CompileGraph(ctx context.Context, snapshot graph.Snapshot) error {
	return c.write(ctx, filepath.Join(c.root, "graph.json"), snapshot)
}

// write replaces the document atomically so readers never see a torn file.
func (c *FileCompiler) write(ctx context.Context, path string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode resource %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create resource dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write resource %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish resource %s: %w", path, err)
	}
	c.logger.Debug("Compiled resource", zap.String("path", path))
	return nil
}

func sanitize(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}
