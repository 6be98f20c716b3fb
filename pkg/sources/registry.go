package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/chains"
	"github.com/backingwatch/backingx/pkg/models"
)

// Static is a Registry with a fixed universe, assembled at wiring time.
type Static struct {
	assets   map[models.ID]AssetAdapter
	entities map[string]EntityAdapter
	systems  map[string]SystemAdapter
}

func NewStatic() *Static {
	return &Static{
		assets:   make(map[models.ID]AssetAdapter),
		entities: make(map[string]EntityAdapter),
		systems:  make(map[string]SystemAdapter),
	}
}

func (s *Static) AddAsset(id models.ID, adapter AssetAdapter) { s.assets[id] = adapter }
func (s *Static) AddEntity(id string, adapter EntityAdapter)  { s.entities[id] = adapter }
func (s *Static) AddSystem(id string, adapter SystemAdapter)  { s.systems[id] = adapter }

func (s *Static) Assets(context.Context) (map[models.ID]AssetAdapter, error) {
	return s.assets, nil
}

func (s *Static) Entities(context.Context) (map[string]EntityAdapter, error) {
	return s.entities, nil
}

func (s *Static) Systems(context.Context) (map[string]SystemAdapter, error) {
	return s.systems, nil
}

// Config is the on-disk universe description loaded at startup.
type Config struct {
	Assets []struct {
		System  string `json:"system"`
		Address string `json:"address"`
		// Kind selects the adapter: "http" (default) reads every series from
		// the source API; "onchain" reads supply from the hosting chain.
		Kind    string         `json:"kind"`
		BaseURL string         `json:"base_url"`
		Details models.Details `json:"details"`
	} `json:"assets"`
	Entities []struct {
		ID      string `json:"id"`
		BaseURL string `json:"base_url"`
	} `json:"entities"`
	Systems []struct {
		models.SystemDetails
		BaseURL string `json:"base_url"`
	} `json:"systems"`
}

// LoadRegistry reads a Config file and assembles the adapter for every
// listed identifier. Onchain assets resolve their chain module through the
// dispatcher and need their system listed in the same config.
func LoadRegistry(logger *zap.Logger, dispatcher *chains.Dispatcher, path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config %s: %w", path, err)
	}

	systems := make(map[string]models.SystemDetails, len(cfg.Systems))
	for _, sys := range cfg.Systems {
		systems[sys.ID] = sys.SystemDetails
	}

	client := NewHTTPClient()
	reg := NewStatic()
	for _, a := range cfg.Assets {
		id := models.NewID(a.System, a.Address)
		switch a.Kind {
		case "", "http":
			reg.AddAsset(id, NewHTTPAsset(logger, client, id, a.BaseURL))
		case "onchain":
			system, ok := systems[a.System]
			if !ok {
				return nil, fmt.Errorf("onchain asset %s references unlisted system %q", id, a.System)
			}
			details := a.Details
			details.ID = id
			reg.AddAsset(id, NewOnChainAsset(logger, dispatcher, system, details, a.BaseURL))
		default:
			return nil, fmt.Errorf("asset %s has unknown adapter kind %q", id, a.Kind)
		}
	}
	for _, e := range cfg.Entities {
		reg.AddEntity(e.ID, NewHTTPEntity(logger, client, e.ID, e.BaseURL))
	}
	for _, sys := range cfg.Systems {
		reg.AddSystem(sys.ID, NewHTTPSystem(logger, client, sys.SystemDetails, sys.BaseURL))
	}
	return reg, nil
}

// HTTPEntity adapts a JSON source API for one entity.
type HTTPEntity struct {
	logger  *zap.Logger
	client  *resty.Client
	id      string
	baseURL string
}

func NewHTTPEntity(logger *zap.Logger, client *resty.Client, id, baseURL string) *HTTPEntity {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPEntity{logger: logger.With(zap.String("entity", id)), client: client, id: id, baseURL: baseURL}
}

func (e *HTTPEntity) GetDetails(ctx context.Context) (*models.EntityDetails, error) {
	var details models.EntityDetails
	if err := getJSON(ctx, e.logger, e.client, fmt.Sprintf("%s/v1/entities/%s/details", e.baseURL, e.id), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Update is a no-op for HTTP sources: they refresh on read.
func (e *HTTPEntity) Update(context.Context) error { return nil }

// HTTPSystem adapts a JSON source API for one system, with a static
// fallback when the system carries its own details in config.
type HTTPSystem struct {
	logger  *zap.Logger
	client  *resty.Client
	details models.SystemDetails
	baseURL string
}

func NewHTTPSystem(logger *zap.Logger, client *resty.Client, details models.SystemDetails, baseURL string) *HTTPSystem {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPSystem{
		logger:  logger.With(zap.String("system", details.ID)),
		client:  client,
		details: details,
		baseURL: baseURL,
	}
}

func (s *HTTPSystem) GetDetails(ctx context.Context) (*models.SystemDetails, error) {
	if s.baseURL == "" {
		details := s.details
		return &details, nil
	}
	var details models.SystemDetails
	if err := getJSON(ctx, s.logger, s.client, fmt.Sprintf("%s/v1/systems/%s/details", s.baseURL, s.details.ID), &details); err != nil {
		return nil, err
	}
	if details.Family == "" {
		details.Family = s.details.Family
	}
	if len(details.Endpoints) == 0 {
		details.Endpoints = s.details.Endpoints
	}
	return &details, nil
}

func (s *HTTPSystem) Update(context.Context) error { return nil }
