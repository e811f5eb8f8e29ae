package sentinel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/openeo"
)

// ErrBackendUnavailable marks a request that was not sent because the
// processing back-end is considered down. Nothing was learned about the date.
var ErrBackendUnavailable = errors.New("processing back-end unavailable")

// Processor runs a process graph synchronously and returns the result body.
type Processor interface {
	Execute(ctx context.Context, graph openeo.ProcessGraph) ([]byte, error)
}

type AggregatorConfig struct {
	Collection    string
	MaxCloudCover float64
	// BreakerFailures consecutive failures open the breaker; 0 disables it.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Collection:      "SENTINEL2_L2A",
		MaxCloudCover:   90,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}
}

// Aggregator computes the mean NDVI of many polygons for one acquisition date
// in a single processing request.
type Aggregator struct {
	processor Processor
	config    AggregatorConfig
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

func NewAggregator(processor Processor, config AggregatorConfig, logger *zap.Logger) *Aggregator {
	a := &Aggregator{processor: processor, config: config, logger: logger}
	if config.BreakerFailures > 0 {
		a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openeo",
			MaxRequests: 1,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.BreakerFailures
			},
			IsSuccessful: backendHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return a
}

// Aggregate returns an NDVI per polygon id for the acquisition on date.
// Every polygon id is present; nil marks a value the back-end did not deliver.
func (a *Aggregator) Aggregate(ctx context.Context, date model.Date, polygons []model.Polygon) (map[string]*float64, error) {
	ids := make([]string, len(polygons))
	for i, p := range polygons {
		ids[i] = p.ID
	}
	if len(polygons) == 0 {
		return map[string]*float64{}, nil
	}

	graph := BuildNDVIGraph(a.config.Collection, a.config.MaxCloudCover, date, polygons)

	raw, err := a.execute(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("aggregation for %s failed: %w", date, err)
	}

	agg := DecodeAggregation(raw)
	if agg.Shape == ShapeUnknown {
		a.logger.Warn("unrecognized aggregation response", zap.String("date", date.String()), zap.Int("bytes", len(raw)))
	} else if len(agg.Elements) != len(polygons) {
		a.logger.Warn("aggregation length mismatch",
			zap.String("date", date.String()),
			zap.Int("polygons", len(polygons)),
			zap.Int("values", len(agg.Elements)))
	}
	return agg.Map(ids), nil
}

func (a *Aggregator) execute(ctx context.Context, graph openeo.ProcessGraph) ([]byte, error) {
	if a.breaker == nil {
		return a.processor.Execute(ctx, graph)
	}
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.processor.Execute(ctx, graph)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// backendHealthy reports whether err leaves the breaker closed. A 4xx answer
// rejects one request, not the back-end, and a cancelled run says nothing
// about it either.
func backendHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var httpErr *openeo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status < 500
	}
	return false
}

// BuildNDVIGraph builds load_collection -> NDVI -> temporal mean ->
// aggregate_spatial(mean) -> save_result(JSON) for one day.
func BuildNDVIGraph(collection string, maxCloudCover float64, date model.Date, polygons []model.Polygon) openeo.ProcessGraph {
	bound := model.UnionBound(polygons)

	fc := geojson.NewFeatureCollection()
	for _, p := range polygons {
		f := geojson.NewFeature(p.Geometry)
		f.ID = p.ID
		f.Properties["fid"] = p.ID
		fc.Append(f)
	}

	cloudFilter := openeo.ProcessGraph{
		"cc": {
			ProcessID: "lte",
			Arguments: map[string]interface{}{"x": openeo.FromParameter("value"), "y": maxCloudCover},
			Result:    true,
		},
	}

	return openeo.ProcessGraph{
		"load": {
			ProcessID: "load_collection",
			Arguments: map[string]interface{}{
				"id": collection,
				"spatial_extent": openeo.SpatialExtent{
					West: bound.Min[0], South: bound.Min[1],
					East: bound.Max[0], North: bound.Max[1],
				},
				"temporal_extent": []string{date.String(), date.AddDays(1).String()},
				"bands":           []string{"B04", "B08"},
				"properties": map[string]interface{}{
					"eo:cloud_cover": openeo.Callback(cloudFilter),
				},
			},
		},
		"ndvi": {
			ProcessID: "reduce_dimension",
			Arguments: map[string]interface{}{
				"data":      openeo.FromNode("load"),
				"dimension": "bands",
				"reducer":   openeo.Callback(openeo.NormalizedDifferenceReducer(1, 0)),
			},
		},
		"mean_t": {
			ProcessID: "reduce_dimension",
			Arguments: map[string]interface{}{
				"data":      openeo.FromNode("ndvi"),
				"dimension": "t",
				"reducer":   openeo.Callback(openeo.SimpleReducer("mean")),
			},
		},
		"agg": {
			ProcessID: "aggregate_spatial",
			Arguments: map[string]interface{}{
				"data":       openeo.FromNode("mean_t"),
				"geometries": fc,
				"reducer":    openeo.Callback(openeo.SimpleReducer("mean")),
			},
		},
		"save": {
			ProcessID: "save_result",
			Arguments: map[string]interface{}{
				"data":   openeo.FromNode("agg"),
				"format": "JSON",
			},
			Result: true,
		},
	}
}
