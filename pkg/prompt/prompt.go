// Package prompt provides the interactive confirmation service the
// engine uses for retry/abort decisions and overwrite conflicts. A
// non-interactive environment never blocks: every prompt fails
// immediately with ErrNonInteractive, which callers treat as an
// abort.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNonInteractive is returned when a prompt is required but no
// operator is available to answer it.
var ErrNonInteractive = errors.New("prompt required but session is not interactive")

// Prompter asks the operator yes/no and multiple-choice questions.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, message string) (bool, error)

	// ChooseOne asks the operator to pick one option, returning its
	// index.
	ChooseOne(ctx context.Context, message string, options []string) (int, error)
}

// Terminal is the huh-backed Prompter for an interactive terminal
// session.
type Terminal struct {
	// AssumeYes answers every Confirm with yes and every ChooseOne
	// with its first option, without prompting.
	AssumeYes bool
}

// NewTerminal returns a terminal prompter. If assumeYes is set, or
// stdin is not a TTY, prompts are never shown: assumeYes short-
// circuits to the affirmative answer, a non-TTY fails with
// ErrNonInteractive.
func NewTerminal(assumeYes bool) *Terminal {
	return &Terminal{AssumeYes: assumeYes}
}

func (t *Terminal) interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(ctx context.Context, message string) (bool, error) {
	if t.AssumeYes {
		return true, nil
	}
	if !t.interactive() {
		return false, ErrNonInteractive
	}

	var answer bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(message).
				Value(&answer),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return answer, nil
}

// ChooseOne implements Prompter.
func (t *Terminal) ChooseOne(ctx context.Context, message string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("choose prompt %q has no options", message)
	}
	if t.AssumeYes {
		return 0, nil
	}
	if !t.interactive() {
		return 0, ErrNonInteractive
	}

	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, i)
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(message).
				Options(opts...).
				Value(&choice),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("choose prompt: %w", err)
	}
	return choice, nil
}
