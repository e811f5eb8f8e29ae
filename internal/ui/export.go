package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/forest-guardian/agrosense-ndvi/internal/export"
)

func (a *App) exportResults(context.Context) error {
	if a.session.Store.Len() == 0 {
		return fmt.Errorf("nothing to export, run the analysis first")
	}

	kind, err := a.console.ReadChoice("Choose the table: ", []string{
		"One row per parcel, one column per date",
		"Time series, one row per parcel and date",
	})
	if err != nil {
		return err
	}
	format, err := a.console.ReadChoice("Choose the format: ", []string{"Excel (.xlsx)", "CSV (.csv)", "Both"})
	if err != nil {
		return err
	}

	in := export.Input{
		Dataset:   a.session.Dataset,
		Selection: a.session.Selection.IDs(a.session.Dataset),
		Dates:     a.session.Dates.Dates(),
		Store:     a.session.Store,
	}
	table := export.ParcelTable(in)
	if kind == 1 {
		table = export.TimeSeriesTable(in)
	}

	formats := [][]export.Format{
		{export.FormatXLSX},
		{export.FormatCSV},
		{export.FormatXLSX, export.FormatCSV},
	}[format]

	paths, err := export.WriteFiles(a.options.ExportDir, table, formats, a.now())
	if err != nil {
		return err
	}
	a.console.PrintSuccess("Exported to:\n" + strings.Join(paths, "\n"))
	return nil
}
