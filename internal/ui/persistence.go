package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/forest-guardian/agrosense-ndvi/internal/cache"
)

var sessionName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func (a *App) saveSession(context.Context) error {
	name, err := a.console.ReadRequired("Enter a session name (letters, digits, - and _): ")
	if err != nil {
		return err
	}
	if !sessionName.MatchString(name) {
		return fmt.Errorf("invalid session name: %s", name)
	}
	if err := a.sessions.Set(name, a.session.Snapshot()); err != nil {
		return err
	}
	a.console.PrintSuccess(fmt.Sprintf("Session %s saved.", name))
	return nil
}

func (a *App) restoreSession(context.Context) error {
	keys, err := a.sessions.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no saved sessions")
	}
	if len(a.session.Dataset) == 0 {
		a.console.PrintWarning("No polygons are loaded. Loading files afterwards clears the restored selection.")
	}

	i, err := a.console.ReadChoice("Choose the session: ", keys)
	if err != nil {
		return err
	}
	st, saved, err := a.sessions.Load(keys[i])
	if errors.Is(err, cache.ErrCorrupt) {
		a.console.PrintWarning(fmt.Sprintf("Session %s is corrupt and cannot be restored.", keys[i]))
		if !a.console.Confirm("Delete it?") {
			return nil
		}
		if err := a.sessions.Delete(keys[i]); err != nil {
			return err
		}
		a.console.PrintSuccess(fmt.Sprintf("Session %s deleted.", keys[i]))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session %s: %w", keys[i], err)
	}
	a.session.Restore(st)
	a.console.PrintSuccess(fmt.Sprintf("Session %s from %s restored: %d selected, %d dates, %d results.",
		keys[i], saved.Format("2006-01-02 15:04"), a.session.Selection.Len(), a.session.Dates.Len(), a.session.Store.Len()))
	return nil
}
