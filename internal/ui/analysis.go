package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/delivery"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/properties"
	"github.com/forest-guardian/agrosense-ndvi/internal/session"
	"github.com/forest-guardian/agrosense-ndvi/output"
)

func (a *App) runAnalysis(ctx context.Context) error {
	report, err := a.session.Analyze(ctx)
	switch {
	case errors.Is(err, session.ErrBusy):
		return fmt.Errorf("an analysis is already running")
	case errors.Is(err, delivery.ErrEmptySelection):
		return fmt.Errorf("select at least one polygon first")
	case errors.Is(err, delivery.ErrNoDates):
		return fmt.Errorf("add at least one date first")
	case err != nil:
		return err
	}

	if report.AllComputed {
		a.console.PrintSuccess("All selected polygons are already analyzed for every date.")
		return nil
	}

	if len(report.Warnings) > 0 {
		a.console.PrintWarning(strings.Join(report.Warnings, "\n"))
	}
	for _, e := range report.Errors {
		a.console.PrintError(e)
	}
	a.logger.Info("analysis finished",
		zap.String("run_id", report.RunID),
		zap.Int("network_calls", report.NetworkCalls))
	a.console.PrintSuccess(report.Summary())
	return nil
}

func (a *App) activeDate() error {
	if a.session.ActiveDate != "" {
		return nil
	}
	d, err := a.pickDate("Choose the date: ")
	if err != nil {
		return err
	}
	a.session.ActiveDate = d
	return nil
}

func (a *App) showMetrics(context.Context) error {
	if err := a.activeDate(); err != nil {
		return err
	}
	m := a.session.Metrics(a.session.ActiveDate)

	a.console.PrintTitle("Metrics for " + string(m.Date))
	if len(m.Resolved) > 0 {
		a.console.Printf("Scene date:      %s\n", joinDates(m.Resolved))
	}
	a.console.Printf("Selected:        %d\n", m.Selected)
	a.console.Printf("With NDVI:       %d\n", m.Valued)
	if m.Mean != nil {
		a.console.Printf("Mean NDVI:       %.3f (%s)\n", *m.Mean, properties.NDVIStatus(m.Mean))
	} else {
		a.console.Printf("Mean NDVI:       -\n")
	}
	a.console.Printf("%-16s %d\n", properties.StatusPlanted+":", m.Planted)
	a.console.Printf("%-16s %d\n", properties.StatusBare+":", m.Bare)
	return nil
}

func (a *App) showTimeSeries(context.Context) error {
	series := a.session.TimeSeries()
	if len(series) == 0 {
		return fmt.Errorf("no NDVI values for the selected polygons")
	}
	for _, s := range series {
		a.console.PrintTitle(s.Label)
		for _, pt := range s.Points {
			v := pt.NDVI
			line := fmt.Sprintf("  %s  %6.3f  %s", pt.Date, v, properties.NDVIStatus(&v))
			if pt.Resolved != "" {
				line += fmt.Sprintf("  (scene %s)", pt.Resolved)
			}
			a.console.Println(line)
		}
	}
	return nil
}

func joinDates(dates []model.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = string(d)
	}
	return strings.Join(parts, ", ")
}

func (a *App) clearDate(context.Context) error {
	d, err := a.pickDate("Choose the date to clear: ")
	if err != nil {
		return err
	}
	n := a.session.ClearDate(d)
	a.console.PrintSuccess(fmt.Sprintf("%d results of %s removed; the next run recomputes them.", n, d))
	return nil
}

func (a *App) renderMap(context.Context) error {
	if len(a.session.Dataset) == 0 {
		return fmt.Errorf("no polygons loaded")
	}
	if err := a.activeDate(); err != nil {
		return err
	}

	polygons := a.session.SelectedPolygons()
	if len(polygons) == 0 {
		polygons = a.session.Dataset
	}
	name := fmt.Sprintf("agrosense_%s_ndvi_%s", a.now().Format("20060102_1504"), a.session.ActiveDate)
	path, err := output.WriteNDVIMap(filepath.Join(a.options.MapDir, name), polygons, a.session.Store, a.session.ActiveDate, output.DefaultMapOptions())
	if err != nil {
		return err
	}
	a.console.PrintSuccess("NDVI map located at: " + path)
	return nil
}
