// Package loader turns uploaded boundary files into polygons.
package loader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoPolygons        = errors.New("no polygon geometries found")
)

// Feature is a decoded record before ids are assigned.
type Feature struct {
	Properties model.Properties
	Geometry   orb.Geometry
}

// VectorReader reads OGR-backed formats (Shapefile, KML). Paths may use GDAL
// virtual file systems such as /vsizip/.
type VectorReader interface {
	ReadFeatures(path string) ([]Feature, error)
}

type Loader struct {
	vector VectorReader
	logger *zap.Logger
}

// New returns a loader. vector may be nil, in which case only GeoJSON
// inputs are accepted.
func New(vector VectorReader, logger *zap.Logger) *Loader {
	return &Loader{vector: vector, logger: logger}
}

// Load reads one file and numbers its polygons from firstID on.
func (l *Loader) Load(path string, firstID int) ([]model.Polygon, error) {
	features, err := l.read(path)
	if err != nil {
		return nil, err
	}
	return l.number(path, features, firstID)
}

// LoadFiles reads all paths concurrently and numbers the polygons in path
// order, continuing from firstID.
func (l *Loader) LoadFiles(ctx context.Context, paths []string, firstID int) ([]model.Polygon, error) {
	decoded := make([][]Feature, len(paths))

	g, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			features, err := l.read(path)
			if err != nil {
				return err
			}
			decoded[i] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var polygons []model.Polygon
	next := firstID
	for i, features := range decoded {
		batch, err := l.number(paths[i], features, next)
		if err != nil {
			return nil, err
		}
		polygons = append(polygons, batch...)
		next += len(batch)
	}
	return polygons, nil
}

func (l *Loader) number(path string, features []Feature, firstID int) ([]model.Polygon, error) {
	polygons := make([]model.Polygon, 0, len(features))
	skipped := 0
	for _, f := range features {
		if !model.IsPolygonal(f.Geometry) {
			skipped++
			continue
		}
		polygons = append(polygons, model.Polygon{
			ID:         strconv.Itoa(firstID + len(polygons)),
			Properties: f.Properties,
			Geometry:   f.Geometry,
		})
	}
	if skipped > 0 {
		l.logger.Info("skipped non-polygon features", zap.String("file", path), zap.Int("count", skipped))
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoPolygons)
	}
	l.logger.Info("loaded polygons", zap.String("file", path), zap.Int("count", len(polygons)))
	return polygons, nil
}

func (l *Loader) read(path string) ([]Feature, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return DecodeGeoJSON(data)
	case ".kml", ".shp":
		return l.readVector(path)
	case ".kmz":
		member, err := findMember(path, ".kml")
		if err != nil {
			return nil, err
		}
		return l.readVector(vsizip(path, member))
	case ".zip":
		return l.readZip(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (l *Loader) readVector(path string) ([]Feature, error) {
	if l.vector == nil {
		return nil, fmt.Errorf("%w: %s needs the GDAL reader", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return l.vector.ReadFeatures(path)
}

// readZip opens the first Shapefile, KML or GeoJSON member of an archive.
func (l *Loader) readZip(path string) ([]Feature, error) {
	if member, err := findMember(path, ".shp"); err == nil {
		return l.readVector(vsizip(path, member))
	}
	if member, err := findMember(path, ".kml"); err == nil {
		return l.readVector(vsizip(path, member))
	}
	for _, ext := range []string{".geojson", ".json"} {
		member, err := findMember(path, ext)
		if err != nil {
			continue
		}
		data, err := readMember(path, member)
		if err != nil {
			return nil, err
		}
		return DecodeGeoJSON(data)
	}
	return nil, fmt.Errorf("%w: %s contains no shp, kml or geojson", ErrUnsupportedFormat, filepath.Base(path))
}

func findMember(archive, ext string) (string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(filepath.Base(f.Name), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(f.Name), ext) {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("no %s member in %s", ext, filepath.Base(archive))
}

func readMember(archive, name string) ([]byte, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func vsizip(archive, member string) string {
	abs, err := filepath.Abs(archive)
	if err != nil {
		abs = archive
	}
	return "/vsizip/" + abs + "/" + member
}
