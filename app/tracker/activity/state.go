package activity

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/sources"
)

// State is the shared scratchpad of one pipeline run: the enumerated
// universe, details fetched this run, and underlying assets discovered from
// backing records. Concurrent tasks write disjoint identifiers, so the maps
// only need per-entry synchronization.
type State struct {
	RunTime time.Time

	Assets   map[models.ID]sources.AssetAdapter
	Entities map[string]sources.EntityAdapter
	Systems  map[string]sources.SystemAdapter

	details       *xsync.Map[string, models.Details]
	entityDetails *xsync.Map[string, models.EntityDetails]
	systemDetails *xsync.Map[string, models.SystemDetails]
	discovered    *xsync.Map[string, models.ID]
}

func NewState(runTime time.Time, assets map[models.ID]sources.AssetAdapter, entities map[string]sources.EntityAdapter, systems map[string]sources.SystemAdapter) *State {
	return &State{
		RunTime:       runTime,
		Assets:        assets,
		Entities:      entities,
		Systems:       systems,
		details:       xsync.NewMap[string, models.Details](),
		entityDetails: xsync.NewMap[string, models.EntityDetails](),
		systemDetails: xsync.NewMap[string, models.SystemDetails](),
		discovered:    xsync.NewMap[string, models.ID](),
	}
}

func (s *State) SetDetails(d models.Details)             { s.details.Store(d.ID.String(), d) }
func (s *State) SetEntityDetails(d models.EntityDetails) { s.entityDetails.Store(d.ID, d) }
func (s *State) SetSystemDetails(d models.SystemDetails) { s.systemDetails.Store(d.ID, d) }

func (s *State) Details(id models.ID) (models.Details, bool) {
	return s.details.Load(id.String())
}

func (s *State) EntityDetails(id string) (models.EntityDetails, bool) {
	return s.entityDetails.Load(id)
}

func (s *State) SystemDetails(id string) (models.SystemDetails, bool) {
	return s.systemDetails.Load(id)
}

// Discover records an asset seen as backing of a tracked asset.
func (s *State) Discover(id models.ID) {
	s.discovered.Store(id.String(), id)
}

// Discovered returns every underlying asset recorded so far this run.
func (s *State) Discovered() []models.ID {
	out := make([]models.ID, 0)
	s.discovered.Range(func(_ string, id models.ID) bool {
		out = append(out, id)
		return true
	})
	return out
}

// AssetIDs enumerates the tracked assets.
func (s *State) AssetIDs() []models.ID {
	out := make([]models.ID, 0, len(s.Assets))
	for id := range s.Assets {
		out = append(out, id)
	}
	return out
}
