package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"stemfetch/internal/core/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Renderer prints the per-track progress table to the terminal. Renders
// are serialized; each one redraws the full table in place using ANSI
// cursor movement so the display stays a single live table.
type Renderer struct {
	mu        sync.Mutex
	out       io.Writer
	lastLines int
}

func NewRenderer() *Renderer {
	return &Renderer{out: os.Stdout}
}

// NewRendererTo writes the table to w instead of stdout.
func NewRendererTo(w io.Writer) *Renderer {
	return &Renderer{out: w}
}

func (r *Renderer) Render(snapshot []domain.TrackProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rendered := renderTable(snapshot)

	if r.lastLines > 0 {
		fmt.Fprintf(r.out, "\033[%dA\033[J", r.lastLines)
	}
	fmt.Fprintln(r.out, rendered)
	r.lastLines = countLines(rendered) + 1
}

func renderTable(snapshot []domain.TrackProgress) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Track", "Status", "Loaded"})

	for _, e := range snapshot {
		tw.AppendRow(table.Row{
			e.Index,
			e.Name,
			e.Status.String(),
			formatDuration(e),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func formatDuration(e domain.TrackProgress) string {
	if e.Status == domain.StatusWaiting || e.Status == domain.StatusNotLoading {
		return "-"
	}
	total := int(e.Duration)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func countLines(s string) int {
	n := 1
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
