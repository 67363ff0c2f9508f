package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the gocare banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   __ _  ___   ___ __ _ _ __ ___ ", "#38bdf8"},
		{"  / _` |/ _ \\ / __/ _` | '__/ _ \\", "#22d3ee"},
		{" | (_| | (_) | (_| (_| | | |  __/", "#2dd4bf"},
		{"  \\__, |\\___/ \\___\\__,_|_|  \\___|", "#34d399"},
		{"  |___/                          ", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  support line "+version).Faint())
	fmt.Fprintln(w)
}
