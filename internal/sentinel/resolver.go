package sentinel

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/stac"
)

// Catalog is the scene search the resolver queries.
type Catalog interface {
	Search(ctx context.Context, req stac.SearchRequest) (*stac.SearchResponse, error)
}

type ResolverConfig struct {
	Collection    string
	ToleranceDays int
	MaxCloudCover float64
	Limit         int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Collection:    "SENTINEL-2",
		ToleranceDays: 15,
		MaxCloudCover: 70,
		Limit:         50,
	}
}

// Scene is the acquisition chosen for a requested date.
type Scene struct {
	ID         string
	Datetime   string
	Date       model.Date
	CloudCover *float64
}

// Resolver finds the acquisition closest in time to a requested date.
type Resolver struct {
	catalog Catalog
	config  ResolverConfig
	logger  *zap.Logger
}

func NewResolver(catalog Catalog, config ResolverConfig, logger *zap.Logger) *Resolver {
	return &Resolver{catalog: catalog, config: config, logger: logger}
}

func (r *Resolver) ToleranceDays() int {
	return r.config.ToleranceDays
}

// Resolve returns the scene over bbox nearest to target within the tolerance
// window. A nil scene with a nil error means no usable imagery exists.
func (r *Resolver) Resolve(ctx context.Context, bbox orb.Bound, target model.Date) (*Scene, error) {
	if _, err := model.ParseDate(string(target)); err != nil {
		return nil, err
	}

	tol := r.config.ToleranceDays
	req := stac.SearchRequest{
		Collections: []string{r.config.Collection},
		BBox:        model.BBox(bbox),
		Datetime: fmt.Sprintf("%sT00:00:00Z/%sT23:59:59Z",
			target.AddDays(-tol), target.AddDays(tol)),
		Limit:      r.config.Limit,
		Filter:     stac.CloudCoverFilter(r.config.MaxCloudCover),
		FilterLang: "cql2-json",
	}

	resp, err := r.catalog.Search(ctx, req)
	if err != nil {
		r.logger.Warn("filtered catalog search failed, retrying without cloud filter",
			zap.String("date", target.String()), zap.Error(err))
		req.Filter = nil
		req.FilterLang = ""
		resp, err = r.catalog.Search(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scene search for %s failed: %w", target, err)
		}
	}

	scene := nearestScene(resp.Features, target, tol)
	if scene == nil {
		r.logger.Info("no scene within tolerance", zap.String("date", target.String()), zap.Int("tolerance_days", tol))
		return nil, nil
	}
	r.logger.Debug("resolved scene",
		zap.String("requested", target.String()),
		zap.String("resolved", scene.Date.String()),
		zap.String("scene", scene.ID))
	return scene, nil
}

// nearestScene picks the item with the smallest day distance to target. Ties
// go to the lowest cloud cover (unknown cover last), then to catalog order.
func nearestScene(items []stac.Item, target model.Date, toleranceDays int) *Scene {
	var best *Scene
	bestDistance := 0
	bestCloud := 0.0

	for _, item := range items {
		if len(item.Properties.Datetime) < len(model.DateLayout) {
			continue
		}
		date, err := model.ParseDate(item.Properties.Datetime[:len(model.DateLayout)])
		if err != nil {
			continue
		}
		distance := model.DaysBetween(date, target)
		if distance > toleranceDays {
			continue
		}
		cloud := math.Inf(1)
		if item.Properties.CloudCover != nil {
			cloud = *item.Properties.CloudCover
		}

		if best == nil || distance < bestDistance || (distance == bestDistance && cloud < bestCloud) {
			best = &Scene{
				ID:         item.ID,
				Datetime:   item.Properties.Datetime,
				Date:       date,
				CloudCover: item.Properties.CloudCover,
			}
			bestDistance = distance
			bestCloud = cloud
		}
	}
	return best
}
