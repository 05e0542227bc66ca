package wizard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter abstracts terminal interaction so the wizard state machine can be
// driven deterministically in tests.
type Prompter interface {
	// Input asks for a free-form value; an empty answer yields defaultValue.
	Input(prompt, defaultValue string) (string, error)
	// Confirm asks a yes/no question.
	Confirm(prompt string, defaultYes bool) (bool, error)
	// Select asks the user to pick one option and returns its index.
	Select(prompt string, options []string) (int, error)
}

// StdPrompter reads answers line by line, the way a terminal session does.
type StdPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdPrompter creates a prompter over the given streams.
func NewStdPrompter(in io.Reader, out io.Writer) *StdPrompter {
	return &StdPrompter{in: bufio.NewReader(in), out: out}
}

func (p *StdPrompter) Input(prompt, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(p.out, "%s: ", prompt)
	}

	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

func (p *StdPrompter) Confirm(prompt string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s (%s): ", prompt, hint)

	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *StdPrompter) Select(prompt string, options []string) (int, error) {
	fmt.Fprintln(p.out, prompt)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(p.out, "Choice [1-%d]: ", len(options))
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintln(p.out, "Please enter a number from the list.")
	}
}

func (p *StdPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
