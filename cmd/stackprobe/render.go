package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fyrsmithlabs/stackprobe/internal/orchestrator"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Width(18)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	confidenceStyles = map[scoring.Confidence]lipgloss.Style{
		scoring.ConfidenceHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		scoring.ConfidenceMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		scoring.ConfidenceLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		scoring.ConfidenceNone:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
)

// detectReport is the --json shape of a detect run.
type detectReport struct {
	Outcome    string         `json:"outcome"`
	Delivered  bool           `json:"delivered"`
	Delivery   string         `json:"delivery,omitempty"`
	Changed    bool           `json:"changed"`
	TraitsHash string         `json:"traits_hash,omitempty"`
	Traits     scoring.Traits `json:"traits"`
}

// newDetectReport builds the report for an Init outcome. hash is the
// session's last completed traits hash.
func newDetectReport(out orchestrator.Outcome, hash string) detectReport {
	traits := out.Traits
	if !out.Ran {
		traits = scoring.Placeholder()
	}
	return detectReport{
		Outcome:    out.Reason,
		Delivered:  out.Delivered,
		Delivery:   string(out.Delivery),
		Changed:    out.Changed,
		TraitsHash: hash,
		Traits:     traits,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderReport(w io.Writer, r detectReport) {
	t := r.Traits
	rows := [][2]string{
		{"outcome", r.Outcome},
		{"framework", t.FrameworkPrimary},
		{"meta", joinOrDash(t.FrameworkMeta)},
		{"state", joinOrDash(t.StateManagement)},
		{"data", joinOrDash(t.DataLayer)},
		{"confidence", confidenceStyle(t.Confidence).Render(string(t.Confidence))},
		{"detector", t.Version},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("stackprobe"))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	if len(t.DebugSignals) > 0 {
		b.WriteString(labelStyle.Render("signals"))
		b.WriteString(mutedStyle.Render(strings.Join(t.DebugSignals, " ")))
		b.WriteString("\n")
	}
	fmt.Fprint(w, b.String())
}

func renderCatalog(w io.Writer, signals []signal.Signal) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "CATEGORY", "LABEL", "WEIGHT", "PRODUCTION", "EVIDENCE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, s := range signals {
		safe := "yes"
		if !s.ProductionSafe {
			safe = "dev only"
		}
		t.Row(s.ID, string(s.Category), s.Label, strconv.Itoa(s.Weight), safe, s.Evidence())
	}
	fmt.Fprintln(w, t.Render())
}

func confidenceStyle(c scoring.Confidence) lipgloss.Style {
	if s, ok := confidenceStyles[c]; ok {
		return s
	}
	return mutedStyle
}

func joinOrDash(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return strings.Join(labels, ", ")
}
