// ABOUTME: Tests for the TUI model
// ABOUTME: Tests status polling, key handling, and VU rendering bounds
package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel("D-MIC Sender", Controls{})

	if model.status.State != "idle" {
		t.Errorf("expected initial state idle, got %q", model.status.State)
	}
	if model.busy {
		t.Error("expected busy to be false initially")
	}
}

func TestTickPullsStatus(t *testing.T) {
	status := Status{State: "streaming", Level: 0.4, Packets: 12}
	model := NewModel("test", Controls{
		Status: func() Status { return status },
	})

	updated, cmd := model.Update(tickMsg{})
	m := updated.(Model)

	if m.status.State != "streaming" {
		t.Errorf("expected state streaming, got %q", m.status.State)
	}
	if m.status.Packets != 12 {
		t.Errorf("expected 12 packets, got %d", m.status.Packets)
	}
	if cmd == nil {
		t.Error("expected a follow-up tick command")
	}
}

func TestQuitKeys(t *testing.T) {
	model := NewModel("test", Controls{})

	for _, key := range []string{"q", "ctrl+c"} {
		var msg tea.KeyMsg
		if key == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}

		_, cmd := model.Update(msg)
		if cmd == nil {
			t.Errorf("key %q: expected quit command", key)
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %q: expected tea.QuitMsg", key)
		}
	}
}

func TestToggleStartsWhenIdle(t *testing.T) {
	started := false
	model := NewModel("test", Controls{
		Start: func() error {
			started = true
			return nil
		},
		Stop: func() error { return nil },
	})

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m := updated.(Model)

	if !m.busy {
		t.Error("expected model busy while toggling")
	}
	if cmd == nil {
		t.Fatal("expected a toggle command")
	}

	msg := cmd()
	if !started {
		t.Error("expected Start to be invoked")
	}
	result, ok := msg.(toggleResultMsg)
	if !ok {
		t.Fatalf("expected toggleResultMsg, got %T", msg)
	}
	if result.err != nil {
		t.Errorf("unexpected toggle error: %v", result.err)
	}
}

func TestToggleStopsWhenStreaming(t *testing.T) {
	stopped := false
	model := NewModel("test", Controls{
		Start:  func() error { return errors.New("should not start") },
		Stop:   func() error { stopped = true; return nil },
		Status: func() Status { return Status{State: "streaming"} },
	})

	updated, _ := model.Update(tickMsg{})
	m := updated.(Model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("expected a toggle command")
	}
	cmd()

	if !stopped {
		t.Error("expected Stop to be invoked when streaming")
	}
}

func TestToggleRestartsAfterFailure(t *testing.T) {
	restarted := false
	model := NewModel("test", Controls{
		Start:  func() error { restarted = true; return nil },
		Stop:   func() error { return errors.New("should not stop") },
		Status: func() Status { return Status{State: "failed"} },
	})

	updated, _ := model.Update(tickMsg{})
	m := updated.(Model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("expected a toggle command")
	}
	msg := cmd()

	if !restarted {
		t.Error("expected Start to be invoked from failed")
	}
	if result := msg.(toggleResultMsg); result.err != nil {
		t.Errorf("restart from failed returned %v", result.err)
	}
}

func TestToggleErrorShown(t *testing.T) {
	model := NewModel("test", Controls{
		Start: func() error { return errors.New("no device") },
		Stop:  func() error { return nil },
	})

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")})
	m := updated.(Model)

	updated, _ = m.Update(cmd())
	m = updated.(Model)

	if m.busy {
		t.Error("expected busy cleared after toggle result")
	}
	if m.lastErr != "no device" {
		t.Errorf("expected error message, got %q", m.lastErr)
	}
}

func TestRenderVUBounds(t *testing.T) {
	for _, level := range []float64{-0.5, 0, 0.3, 0.7, 0.9, 1.0, 2.0} {
		bar := renderVU(level, 10)
		if bar == "" {
			t.Errorf("level %f: empty bar", level)
		}
		// The bar body is always exactly width cells of block glyphs.
		blocks := strings.Count(bar, "█") + strings.Count(bar, "░")
		if blocks != 10 {
			t.Errorf("level %f: %d cells, want 10", level, blocks)
		}
	}
}

func TestViewRendersAfterResize(t *testing.T) {
	model := NewModel("D-MIC Receiver", Controls{})

	if view := model.View(); view != "Loading..." {
		t.Errorf("expected loading placeholder before resize, got %q", view)
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m := updated.(Model)

	view := m.View()
	if !strings.Contains(view, "D-MIC Receiver") {
		t.Error("expected title in view")
	}
	if !strings.Contains(view, "IDLE") {
		t.Error("expected state line in view")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
