// Package pipeline runs the two stages of a prospecting run: filtering the
// national registry down to the entities inside a target area, and
// enriching the survivors with contact data and a potential score.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/area"
	"github.com/carpool-pilot/prospect-cli/internal/config"
	"github.com/carpool-pilot/prospect-cli/internal/geocode"
	"github.com/carpool-pilot/prospect-cli/internal/model"
	"github.com/carpool-pilot/prospect-cli/internal/postal"
	"github.com/carpool-pilot/prospect-cli/internal/registry"
	"github.com/carpool-pilot/prospect-cli/pkg/geonorge"
)

// FilterParams holds the per-run inputs of the filter stage. Margin
// widens the postal candidate box; zero means the configured default.
type FilterParams struct {
	MinEmployees int
	MaxEmployees int
	Margin       float64
	OutputPath   string
}

// FilterStage narrows the bulk registry exports down to the entities that
// geocode inside the target area.
type FilterStage struct {
	cfg      *config.Config
	postal   *postal.Index
	resolver *geocode.Resolver
}

// NewFilterStage wires a filter stage from its dependencies.
func NewFilterStage(cfg *config.Config, idx *postal.Index, resolver *geocode.Resolver) *FilterStage {
	return &FilterStage{cfg: cfg, postal: idx, resolver: resolver}
}

// Run filters the registry exports against the area and writes the
// survivors to params.OutputPath. The summary accounts for every record
// that matched the postal pre-filter.
func (s *FilterStage) Run(ctx context.Context, ar *area.Area, params FilterParams) (*model.Summary, error) {
	log := zap.L().With(zap.String("area", ar.Name))
	summary := &model.Summary{}

	margin := s.cfg.Postal.Margin
	if params.Margin > 0 {
		margin = params.Margin
	}
	candidates := s.postal.CandidatesNear(ar.Bounds(), margin)
	log.Info("postal candidates selected",
		zap.Int("codes", len(candidates)),
		zap.Float64("margin", margin))
	if len(candidates) == 0 {
		log.Warn("no postal codes near area, writing empty result")
		if err := WriteEntities(params.OutputPath, nil); err != nil {
			return nil, err
		}
		return summary, nil
	}

	entities, counts, err := registry.Load(ctx, s.cfg.Data.EnheterPath, s.cfg.Data.UnderenheterPath, registry.Filter{
		PostalCodes:  candidates,
		MinEmployees: params.MinEmployees,
		MaxEmployees: params.MaxEmployees,
	})
	if err != nil {
		return nil, err
	}
	summary.Input = counts.Matched
	summary.OutOfRange = counts.OutOfRange
	summary.MissingAddress = counts.MissingAddress

	var inside []model.Entity
	for _, e := range entities {
		result, err := s.resolver.Resolve(ctx, geonorge.Address{
			Street:       e.Address,
			PostalCode:   e.PostalCode,
			City:         e.City,
			Municipality: e.Municipality,
		})
		if err != nil {
			return nil, err
		}
		if !result.Matched {
			summary.Unresolved++
			continue
		}
		if !ar.Contains(result.Latitude, result.Longitude) {
			summary.OutsidePolygon++
			continue
		}
		lat, lon := result.Latitude, result.Longitude
		e.Latitude = &lat
		e.Longitude = &lon
		inside = append(inside, e)
	}

	kept := dedupeByAddress(inside, summary)

	stats := s.resolver.Stats()
	summary.GeocodeCalls = stats.Calls
	summary.GeocodeCacheHits = stats.Hits
	summary.Output = len(kept)

	if err := WriteEntities(params.OutputPath, kept); err != nil {
		return nil, err
	}

	log.Info("filter complete",
		zap.Int("input", summary.Input),
		zap.Int("out_of_range", summary.OutOfRange),
		zap.Int("missing_address", summary.MissingAddress),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("outside_polygon", summary.OutsidePolygon),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("output", summary.Output),
		zap.String("path", params.OutputPath))
	return summary, nil
}

// dedupeByAddress collapses entities sharing a normalized address, keeping
// the one with the most employees. Output preserves first-seen order, which
// favors main entities over sub-units at the same address on equal counts.
func dedupeByAddress(entities []model.Entity, summary *model.Summary) []model.Entity {
	seen := make(map[string]int, len(entities))
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		key := e.NormalizedAddress()
		if at, ok := seen[key]; ok {
			summary.Duplicates++
			if e.Employees > out[at].Employees {
				out[at] = e
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	return out
}
