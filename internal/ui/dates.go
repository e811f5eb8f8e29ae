package ui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

var rangeSteps = []int{5, 10, 15, 30}

func (a *App) datesMenu(ctx context.Context) error {
	choice, err := a.console.ReadChoice("Choose a date action: ", []string{
		"Add a date",
		"Add a comma separated list of dates",
		"Add a date range",
		"Import dates from a CSV file",
		"Remove a date",
		"Clear all dates",
		"List dates",
		"Set the active date",
	})
	if err != nil {
		return err
	}

	switch choice {
	case 0:
		return a.addDate()
	case 1:
		return a.addBulkDates()
	case 2:
		return a.addDateRange()
	case 3:
		return a.importDates()
	case 4:
		return a.removeDate()
	case 5:
		a.session.Dates.Clear()
		a.session.ActiveDate = ""
		a.console.PrintSuccess("All dates removed.")
		return nil
	case 6:
		return a.listDates(ctx)
	default:
		return a.setActiveDate()
	}
}

func (a *App) addDate() error {
	d, err := a.console.ReadDate("Enter the date (YYYY-MM-DD | today): ")
	if err != nil {
		return err
	}
	added, err := a.session.Dates.Add(string(d))
	if err != nil {
		return err
	}
	if !added {
		a.console.PrintWarning(fmt.Sprintf("%s is already in the list.", d))
		return nil
	}
	a.console.PrintSuccess(fmt.Sprintf("%s added.", d))
	return nil
}

func (a *App) addBulkDates() error {
	input, err := a.console.ReadRequired("Enter dates separated by commas: ")
	if err != nil {
		return err
	}
	added, rejected := a.session.Dates.AddBulk(input)
	a.reportAdded(added, rejected)
	return nil
}

func (a *App) addDateRange() error {
	start, err := a.console.ReadDate("Enter the start date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	end, err := a.console.ReadDate("Enter the end date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	labels := make([]string, len(rangeSteps))
	for i, step := range rangeSteps {
		labels[i] = fmt.Sprintf("every %d days", step)
	}
	i, err := a.console.ReadChoice("Choose the step: ", labels)
	if err != nil {
		return err
	}
	added, err := a.session.Dates.AddRange(start, end, rangeSteps[i])
	if err != nil {
		return err
	}
	a.reportAdded(added, nil)
	return nil
}

func (a *App) importDates() error {
	path, err := a.console.ReadRequired("Enter the CSV file path (a 'date' column is required): ")
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	added, rejected, err := a.session.Dates.ImportCSV(file)
	if err != nil {
		return err
	}
	a.reportAdded(added, rejected)
	return nil
}

func (a *App) reportAdded(added int, rejected []string) {
	if len(rejected) > 0 {
		a.console.PrintWarning("Invalid dates ignored: " + strings.Join(rejected, ", "))
	}
	a.console.PrintSuccess(fmt.Sprintf("%d dates added, %d in the list.", added, a.session.Dates.Len()))
}

func (a *App) removeDate() error {
	d, err := a.pickDate("Choose the date to remove: ")
	if err != nil {
		return err
	}
	a.session.Dates.Remove(d)
	if a.session.ActiveDate == d {
		a.session.ActiveDate = ""
	}
	a.console.PrintSuccess(fmt.Sprintf("%s removed.", d))
	return nil
}

func (a *App) listDates(context.Context) error {
	dates := a.session.Dates.Sorted()
	if len(dates) == 0 {
		return fmt.Errorf("no dates added")
	}
	for _, d := range dates {
		line := string(d)
		if resolved := a.session.Divergence(d); len(resolved) > 0 {
			line += fmt.Sprintf("  (scene %s)", joinDates(resolved))
		}
		if d == a.session.ActiveDate {
			line += "  [active]"
		}
		a.console.Println(line)
	}
	return nil
}

func (a *App) setActiveDate() error {
	d, err := a.pickDate("Choose the active date: ")
	if err != nil {
		return err
	}
	a.session.ActiveDate = d
	return nil
}

// pickDate lets the user choose one of the requested dates in sorted order.
func (a *App) pickDate(prompt string) (model.Date, error) {
	dates := a.session.Dates.Sorted()
	if len(dates) == 0 {
		return "", fmt.Errorf("no dates added")
	}
	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = string(d)
	}
	i, err := a.console.ReadChoice(prompt, labels)
	if err != nil {
		return "", err
	}
	return dates[i], nil
}
