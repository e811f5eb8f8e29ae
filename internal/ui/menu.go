package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/session"
)

// Loader reads polygon files numbering polygons from firstID.
type Loader interface {
	LoadFiles(ctx context.Context, paths []string, firstID int) ([]model.Polygon, error)
}

// SessionStore persists session snapshots by name.
type SessionStore interface {
	Set(key string, st session.State) error
	Load(key string) (session.State, time.Time, error)
	Keys() ([]string, error)
	Delete(key string) error
}

type Options struct {
	ExportDir string
	MapDir    string
}

type App struct {
	console  *Console
	session  *session.Session
	loader   Loader
	sessions SessionStore
	options  Options
	logger   *zap.Logger
	now      func() time.Time
}

func NewApp(console *Console, sess *session.Session, loader Loader, sessions SessionStore, options Options, logger *zap.Logger) *App {
	return &App{
		console:  console,
		session:  sess,
		loader:   loader,
		sessions: sessions,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}
}

var errExit = errors.New("exit")

type menuOption struct {
	title   string
	handler func(ctx context.Context) error
}

func (a *App) menuOptions() []menuOption {
	return []menuOption{
		{"Load polygon files (replaces the dataset)", func(ctx context.Context) error { return a.loadFiles(ctx, false) }},
		{"Append polygon files to the dataset", func(ctx context.Context) error { return a.loadFiles(ctx, true) }},
		{"View the loaded polygons", a.showDataset},
		{"Select polygons", a.selectionMenu},
		{"Manage analysis dates", a.datesMenu},
		{"Run the NDVI analysis", a.runAnalysis},
		{"View metrics for a date", a.showMetrics},
		{"View NDVI time series", a.showTimeSeries},
		{"Clear the results of a date", a.clearDate},
		{"Export results", a.exportResults},
		{"Render the NDVI map of a date", a.renderMap},
		{"Save the session", a.saveSession},
		{"Restore a saved session", a.restoreSession},
		{"Exit the application", func(context.Context) error { return errExit }},
	}
}

// Run shows the main menu until the user exits, the input ends or ctx is
// done. Handler errors are printed and the menu is shown again.
func (a *App) Run(ctx context.Context) error {
	options := a.menuOptions()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.console.info.Fprintln(a.console.out, "===================")
		a.console.info.Fprintln(a.console.out, a.status())
		for i, opt := range options {
			a.console.info.Fprintf(a.console.out, "%d. %s\n", i+1, opt.title)
		}

		choice, err := a.console.ReadInt("Please enter your choice: ", 1, len(options))
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrCancelled):
			continue
		case err != nil:
			a.console.PrintError(err.Error())
			continue
		}

		err = options[choice-1].handler(ctx)
		switch {
		case errors.Is(err, errExit):
			a.console.Println("Exiting...")
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrCancelled):
			continue
		case err != nil:
			a.console.PrintError(err.Error())
		}
	}
}

func (a *App) status() string {
	s := a.session
	active := "none"
	if s.ActiveDate != "" {
		active = string(s.ActiveDate)
	}
	return fmt.Sprintf("%d polygons, %d selected, %d dates, active date %s",
		len(s.Dataset), len(s.SelectedPolygons()), s.Dates.Len(), active)
}
