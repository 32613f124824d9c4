package prompt

import (
	"context"
	"errors"
	"testing"
)

// These tests run without a TTY on stdin, which is exactly the
// non-interactive environment the prompter must fail fast in.

// TestConfirmAssumeYes tests that assume-yes short-circuits without a
// terminal
func TestConfirmAssumeYes(t *testing.T) {
	p := NewTerminal(true)

	ok, err := p.Confirm(context.Background(), "Overwrite it?")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Error("assume-yes answered no")
	}
}

// TestConfirmNonInteractive tests that a non-TTY session fails with
// ErrNonInteractive instead of blocking
func TestConfirmNonInteractive(t *testing.T) {
	p := NewTerminal(false)

	_, err := p.Confirm(context.Background(), "Retry?")
	if !errors.Is(err, ErrNonInteractive) {
		t.Fatalf("confirm = %v, want ErrNonInteractive", err)
	}
}

// TestChooseOneAssumeYes tests that assume-yes picks the first option
func TestChooseOneAssumeYes(t *testing.T) {
	p := NewTerminal(true)

	choice, err := p.ChooseOne(context.Background(), "Pick a node", []string{"node1", "node2"})
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if choice != 0 {
		t.Errorf("choice = %d, want 0", choice)
	}
}

// TestChooseOneNoOptions tests rejection of an empty option list
func TestChooseOneNoOptions(t *testing.T) {
	p := NewTerminal(true)

	if _, err := p.ChooseOne(context.Background(), "Pick", nil); err == nil {
		t.Error("empty option list accepted")
	}
}

// TestChooseOneNonInteractive tests the non-TTY failure for selects
func TestChooseOneNonInteractive(t *testing.T) {
	p := NewTerminal(false)

	_, err := p.ChooseOne(context.Background(), "Pick a node", []string{"node1"})
	if !errors.Is(err, ErrNonInteractive) {
		t.Fatalf("choose = %v, want ErrNonInteractive", err)
	}
}
