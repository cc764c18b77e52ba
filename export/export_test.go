package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "participants.yaml")
	if err := os.WriteFile(path, []byte("1001: Alice\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := registry.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func testTranscript() assemble.Transcript {
	start := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	return assemble.Transcript{
		{
			Speaker: "1001",
			Start:   start,
			End:     start.Add(2 * time.Second),
			Text:    "good morning everyone",
			Status:  assemble.StatusOK,
		},
		{
			Speaker: "1002",
			Start:   start.Add(3 * time.Second),
			End:     start.Add(4 * time.Second),
			Status:  assemble.StatusFailed,
		},
	}
}

func TestMarkdown(t *testing.T) {
	got := Markdown(testTranscript(), testRegistry(t))

	if !strings.HasPrefix(got, "# Voice session transcript\n") {
		t.Errorf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "- **(15:04:05) Alice:** good morning everyone") {
		t.Errorf("named speaker line missing:\n%s", got)
	}
	// Unknown speaker keeps its raw id; failed fragment is marked, not dropped.
	if !strings.Contains(got, "- **(15:04:08) 1002:** [inaudible]") {
		t.Errorf("inaudible line missing:\n%s", got)
	}
}

func TestRenderLinesKeepsOrder(t *testing.T) {
	got := RenderLines(testTranscript(), testRegistry(t))

	alice := strings.Index(got, "Alice")
	inaudible := strings.Index(got, "[inaudible]")
	if alice == -1 || inaudible == -1 {
		t.Fatalf("missing content:\n%s", got)
	}
	if alice > inaudible {
		t.Error("lines rendered out of transcript order")
	}
}

func TestWriterExport(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, log.New(io.Discard))

	if err := w.Export(testTranscript(), testRegistry(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasSuffix(name, "-transcript.md") {
		t.Errorf("unexpected file name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "good morning everyone") {
		t.Errorf("exported file missing transcript text:\n%s", data)
	}
}

func TestWriterExportPrintsStyledView(t *testing.T) {
	w := NewWriter(t.TempDir(), log.New(io.Discard))
	var screen bytes.Buffer
	w.out = &screen

	if err := w.Export(testTranscript(), testRegistry(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	view := screen.String()
	if !strings.Contains(view, "good morning everyone") {
		t.Errorf("terminal view missing transcript text:\n%s", view)
	}
	if !strings.Contains(view, "[inaudible]") {
		t.Errorf("terminal view missing inaudible marker:\n%s", view)
	}
}

func TestWriterExportCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "transcripts")
	w := NewWriter(dir, log.New(io.Discard))

	if err := w.Export(testTranscript(), testRegistry(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("transcript directory not created: %v", err)
	}
}
