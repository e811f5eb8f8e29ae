package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

// ErrCancelled is returned by prompts when the user enters an empty line
// where a value is required.
var ErrCancelled = errors.New("cancelled")

// Console reads prompts from in and writes colored messages to out.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	now func() time.Time

	warning *color.Color
	err     *color.Color
	success *color.Color
	info    *color.Color
	title   *color.Color
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:      bufio.NewReader(in),
		out:     out,
		now:     time.Now,
		warning: color.New(color.FgYellow),
		err:     color.New(color.FgRed),
		success: color.New(color.FgGreen),
		info:    color.New(color.FgBlue),
		title:   color.New(color.FgCyan, color.Bold),
	}
}

func (c *Console) Writer() io.Writer {
	return c.out
}

// PrintWarning displays a warning message with consistent formatting
func (c *Console) PrintWarning(message string) {
	c.warning.Fprintln(c.out, "\nWarning:")
	c.warning.Fprintln(c.out, message)
}

// PrintError displays an error message with consistent formatting
func (c *Console) PrintError(message string) {
	c.err.Fprintf(c.out, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func (c *Console) PrintSuccess(message string) {
	c.success.Fprintf(c.out, "\n%s\n", message)
}

// PrintInfo displays an info message without a trailing newline
func (c *Console) PrintInfo(message string) {
	c.info.Fprint(c.out, message)
}

func (c *Console) PrintTitle(message string) {
	c.title.Fprintf(c.out, "\n%s\n", message)
}

func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) Printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format, a...)
}

// ReadString reads a line with trimming. io.EOF is returned once the input
// is exhausted and nothing was typed.
func (c *Console) ReadString(prompt string) (string, error) {
	c.PrintInfo(prompt)
	input, err := c.in.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && (input == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return input, nil
}

// ReadRequired is ReadString that fails with ErrCancelled on an empty line.
func (c *Console) ReadRequired(prompt string) (string, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return "", err
	}
	if input == "" {
		return "", ErrCancelled
	}
	return input, nil
}

// ReadInt reads an integer within [min, max]
func (c *Console) ReadInt(prompt string, min, max int) (int, error) {
	input, err := c.ReadRequired(prompt)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}

	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}

	return value, nil
}

// ReadDate reads a YYYY-MM-DD date; "today" is accepted
func (c *Console) ReadDate(prompt string) (model.Date, error) {
	input, err := c.ReadRequired(prompt)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(input, "today") {
		return model.DateOf(c.now()), nil
	}
	date, err := model.ParseDate(input)
	if err != nil {
		return "", fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return date, nil
}

// ReadChoice lists options numbered from 1 and returns the chosen index.
func (c *Console) ReadChoice(prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("nothing to choose from")
	}
	for i, opt := range options {
		c.success.Fprintf(c.out, "%d. %s\n", i+1, opt)
	}
	choice, err := c.ReadInt(prompt, 1, len(options))
	if err != nil {
		return 0, err
	}
	return choice - 1, nil
}

// Confirm accepts y or yes, case-insensitively.
func (c *Console) Confirm(prompt string) bool {
	input, err := c.ReadString(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes"
}

// SplitList splits a comma separated line into trimmed, non-empty parts.
func SplitList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
