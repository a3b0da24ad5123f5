package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/masahif/offliner/internal/config"
	"github.com/masahif/offliner/internal/crawler"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ReportError prints err for the user. Mirror failures are shown with their
// two-digit code.
func ReportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var mirrorErr *crawler.Error
	if errors.As(err, &mirrorErr) {
		fmt.Fprintln(w, errorStyle.Render(mirrorErr.Error()))
		return
	}
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
}

func printPlan(w io.Writer, cfg *config.MirrorConfig) {
	fetcher := "http"
	if cfg.UseBrowser {
		fetcher = "headless chrome"
	}
	fmt.Fprintf(w, "Mirroring %s\n", valueStyle.Render(cfg.TargetURL))
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("depth:  "), cfg.EffectiveDepth())
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("output: "), cfg.OutputDir)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("fetcher:"), fetcher)
	if cfg.Resume {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("resume: "), "reusing existing files")
	}
}

func printSummary(w io.Writer, stats crawler.MirrorStats) {
	fmt.Fprintln(w, successStyle.Render("Done!"))
	fmt.Fprintf(w, "Downloaded %s pages and %s static files (%s) to %s in %s\n",
		valueStyle.Render(fmt.Sprint(stats.Pages)),
		valueStyle.Render(fmt.Sprint(stats.Resources())),
		humanize.Bytes(uint64(stats.BytesWritten())),
		valueStyle.Render(stats.TargetDir),
		stats.Duration.Round(time.Millisecond))
	if stats.LinksUnresolved > 0 {
		fmt.Fprintf(w, "%d links point outside the mirror and were marked unresolved\n", stats.LinksUnresolved)
	}
	if stats.DiscoveryFailures > 0 {
		fmt.Fprintf(w, "%d linked pages could not be fetched and were skipped\n", stats.DiscoveryFailures)
	}
}
