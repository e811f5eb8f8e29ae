package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/session"
)

func (a *App) loadFiles(ctx context.Context, appendFiles bool) error {
	a.console.PrintWarning("- Supported files: .geojson, .json, .kml, .kmz and .zip (Shapefile, KML or GeoJSON inside).\n- Only Polygon and MultiPolygon features are kept.")

	input, err := a.console.ReadRequired("Enter file paths separated by commas: ")
	if err != nil {
		return err
	}
	paths := SplitList(input)

	firstID := 0
	if appendFiles {
		firstID = a.session.NextID()
	}
	polygons, err := a.loader.LoadFiles(ctx, paths, firstID)
	if err != nil {
		return err
	}

	if appendFiles {
		a.session.AppendDataset(polygons)
	} else {
		a.session.ReplaceDataset(polygons)
	}
	a.logger.Info("dataset loaded",
		zap.Strings("paths", paths),
		zap.Int("polygons", len(polygons)),
		zap.Bool("appended", appendFiles))
	a.console.PrintSuccess(fmt.Sprintf("Loaded %d polygons from %d files.", len(polygons), len(paths)))
	return nil
}

func (a *App) showDataset(context.Context) error {
	if len(a.session.Dataset) == 0 {
		return fmt.Errorf("no polygons loaded")
	}
	for _, p := range a.session.Dataset {
		mark := " "
		if a.session.Selection.Contains(p.ID) {
			mark = "*"
		}
		fields := make([]string, 0, len(p.Properties))
		for _, prop := range p.Properties {
			fields = append(fields, fmt.Sprintf("%s=%s", prop.Key, prop.Value))
		}
		a.console.Printf("%s %-6s %10.2f da  %s\n", mark, p.ID, p.AreaDecares(), strings.Join(fields, ", "))
	}
	a.console.Printf("\n%d polygons, %d selected (*)\n", len(a.session.Dataset), a.session.Selection.Len())
	return nil
}

func (a *App) selectionMenu(ctx context.Context) error {
	if len(a.session.Dataset) == 0 {
		return fmt.Errorf("no polygons loaded")
	}
	choice, err := a.console.ReadChoice("Choose a selection action: ", []string{
		"Select all",
		"Clear the selection",
		"Toggle polygon ids",
		"Select by attribute values",
		"Select polygons touching an area",
	})
	if err != nil {
		return err
	}

	switch choice {
	case 0:
		a.session.Selection.SelectAll(a.session.Dataset)
	case 1:
		a.session.Selection.Clear()
	case 2:
		err = a.toggleIDs()
	case 3:
		err = a.selectByValues()
	case 4:
		err = a.selectDrawn(ctx)
	}
	if err != nil {
		return err
	}
	a.console.PrintSuccess(fmt.Sprintf("%d polygons selected.", len(a.session.SelectedPolygons())))
	return nil
}

func (a *App) toggleIDs() error {
	input, err := a.console.ReadRequired("Enter polygon ids separated by commas: ")
	if err != nil {
		return err
	}
	var unknown []string
	for _, id := range SplitList(input) {
		if _, ok := a.session.Polygon(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		a.session.Selection.Toggle(id)
	}
	if len(unknown) > 0 {
		a.console.PrintWarning("Unknown ids ignored: " + strings.Join(unknown, ", "))
	}
	return nil
}

func (a *App) selectByValues() error {
	keys := session.FilterableKeys(a.session.Dataset)
	if len(keys) == 0 {
		return fmt.Errorf("no text attributes to filter on")
	}
	k, err := a.console.ReadChoice("Choose an attribute: ", keys)
	if err != nil {
		return err
	}
	values := session.DistinctValues(a.session.Dataset, keys[k])
	for i, v := range values {
		a.console.Printf("%d. %s\n", i+1, v)
	}
	input, err := a.console.ReadRequired("Enter value numbers separated by commas: ")
	if err != nil {
		return err
	}

	var chosen []string
	for _, part := range SplitList(input) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > len(values) {
			return fmt.Errorf("invalid value number: %s", part)
		}
		chosen = append(chosen, values[n-1])
	}
	a.session.Selection.SelectByValues(a.session.Dataset, keys[k], chosen)
	return nil
}

// selectDrawn accepts a west,south,east,north box or a polygon file whose
// shapes are used as the drawn areas.
func (a *App) selectDrawn(ctx context.Context) error {
	input, err := a.console.ReadRequired("Enter west,south,east,north or a polygon file path: ")
	if err != nil {
		return err
	}

	var areas []orb.Geometry
	if bound, ok := parseBound(input); ok {
		areas = append(areas, bound)
	} else {
		drawn, err := a.loader.LoadFiles(ctx, []string{input}, 0)
		if err != nil {
			return err
		}
		for _, p := range drawn {
			areas = append(areas, p.Geometry)
		}
	}

	matched := 0
	for _, area := range areas {
		matched += len(a.session.Selection.SelectDrawn(a.session.Dataset, area))
	}
	if matched == 0 {
		a.console.PrintWarning("No polygon touches the area.")
	}
	return nil
}

func parseBound(input string) (orb.Bound, bool) {
	parts := SplitList(input)
	if len(parts) != 4 {
		return orb.Bound{}, false
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return orb.Bound{}, false
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, true
}
