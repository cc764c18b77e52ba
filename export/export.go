// Package export renders a finalized transcript into a shareable
// markdown document and a styled terminal view.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/etc"
	"scribe/registry"
)

var speakerPalette = []lipgloss.Color{
	"#FF875F", "#5FAFFF", "#87D787", "#D7AF5F", "#AF87D7", "#5FD7D7",
}

var (
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

type Writer struct {
	dir string
	out io.Writer
	log *log.Logger
}

func NewWriter(dir string, logger *log.Logger) *Writer {
	return &Writer{dir: dir, out: os.Stdout, log: logger}
}

// Export writes the transcript as a markdown document under the
// transcript directory and returns via log where it landed.
func (w *Writer) Export(t assemble.Transcript, names *registry.Registry) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := filepath.Join(
		w.dir,
		fmt.Sprintf("%s-transcript.md", etc.SessionStamp(time.Now())),
	)

	if err := os.WriteFile(path, []byte(Markdown(t, names)), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	// the operator gets the styled view in their terminal
	fmt.Fprint(w.out, RenderLines(t, names))

	w.log.Info("transcript exported", "path", path, "fragments", len(t))
	return nil
}

// Markdown renders the transcript with display names; failed fragments
// become inaudible markers instead of vanishing.
func Markdown(t assemble.Transcript, names *registry.Registry) string {
	var b strings.Builder
	b.WriteString("# Voice session transcript\n\n")

	for _, f := range t {
		b.WriteString(fmt.Sprintf(
			"- **(%s) %s:** %s\n",
			f.Start.Format("15:04:05"),
			names.DisplayName(f.Speaker),
			fragmentText(f),
		))
	}

	return b.String()
}

// RenderLines is the terminal view, one styled line per fragment.
func RenderLines(t assemble.Transcript, names *registry.Registry) string {
	var b strings.Builder
	for _, f := range t {
		b.WriteString(timeStyle.Render(
			fmt.Sprintf("(%s) ", f.Start.Format("15:04:05")),
		))
		b.WriteString(speakerStyle(f.Speaker).Render(
			names.DisplayName(f.Speaker) + ":",
		))
		b.WriteString(" ")
		if f.Status == assemble.StatusFailed {
			b.WriteString(failedStyle.Render(fragmentText(f)))
		} else {
			b.WriteString(f.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func fragmentText(f assemble.Fragment) string {
	if f.Status == assemble.StatusFailed {
		return "[inaudible]"
	}
	return f.Text
}

func speakerStyle(speaker string) lipgloss.Style {
	var sum int
	for _, c := range speaker {
		sum += int(c)
	}
	color := speakerPalette[sum%len(speakerPalette)]
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}
