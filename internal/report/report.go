// Package report renders run and analysis summaries for the terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"go-healthwatch/internal/models"
	"go-healthwatch/internal/monitor"
	"go-healthwatch/internal/threshold"
)

var (
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"})
	specialStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#F0E442", Dark: "#F0E442"})
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"})
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)

	colURL    = lipgloss.NewStyle().Width(40)
	colStatus = lipgloss.NewStyle().Width(8)
	colSSL    = lipgloss.NewStyle().Width(14)
	colDown   = lipgloss.NewStyle().Width(6)
)

const ruleWidth = 68

// Render summarises one monitoring run.
func Render(rep monitor.Report, t models.Thresholds) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Run "+rep.RunID) + "\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%s  (%s)",
		rep.Started.Format(time.DateTime), rep.Finished.Sub(rep.Started).Round(time.Millisecond))) + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
		colURL.Render("URL"), colStatus.Render("STATUS"), colSSL.Render("SSL CERT"), colDown.Render("DOWN")) + "\n")
	b.WriteString(subtleStyle.Render(strings.Repeat("-", ruleWidth)) + "\n")

	if len(rep.Websites) == 0 {
		b.WriteString("  No websites checked.\n")
	}
	for _, w := range rep.Websites {
		status := specialStyle.Render("UP")
		if !w.Up() {
			status = dangerStyle.Render("DOWN")
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
			colURL.Render(limitStr(w.URL, 38)),
			colStatus.Render(status),
			colSSL.Render(sslCell(w, t.SSLExpiryWarnDays)),
			colDown.Render(strconv.Itoa(rep.DownState[w.URL].DownCount)),
		) + "\n")
	}

	b.WriteString("\n")
	if d := rep.Database; d != nil {
		status := specialStyle.Render(string(d.Status))
		if d.Status != models.DBActive {
			status = dangerStyle.Render(string(d.Status))
		}
		fmt.Fprintf(&b, "Database %s: %s  connections %d (active %d)  queries %d\n",
			d.DBName, status, d.TotalConnections, d.ActiveConnections, d.TotalQueries)
	}
	if s := rep.Server; s != nil {
		cells := make([]string, 0, 3)
		for _, d := range threshold.CheckServer(*s, t) {
			cell := fmt.Sprintf("%s %.2f%%", d.Metric, d.Value)
			if d.Exceeded {
				cell = dangerStyle.Render(cell)
			}
			cells = append(cells, cell)
		}
		fmt.Fprintf(&b, "Server %s: %s\n", s.ServerName, strings.Join(cells, "  "))
	} else {
		b.WriteString("Server: " + warnStyle.Render("not sampled") + "\n")
	}

	b.WriteString("\n")
	alerts := fmt.Sprintf("Alerts sent %d, failed %d", rep.AlertsSent, rep.AlertsFailed)
	if rep.AlertsFailed > 0 {
		alerts = warnStyle.Render(alerts)
	}
	b.WriteString(alerts + "\n")
	if rep.Err != nil {
		b.WriteString(dangerStyle.Render("Run crashed: "+rep.Err.Error()) + "\n")
	}
	return b.String()
}

// RenderAnalysis lists the alerts raised by one analysis pass.
func RenderAnalysis(alerts []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Analysis") + "\n")
	b.WriteString(subtleStyle.Render(strings.Repeat("-", ruleWidth)) + "\n")
	if len(alerts) == 0 {
		b.WriteString(specialStyle.Render("No alerts.") + "\n")
		return b.String()
	}
	for _, a := range alerts {
		b.WriteString("  " + a + "\n")
	}
	b.WriteString(warnStyle.Render(fmt.Sprintf("%d alerts raised", len(alerts))) + "\n")
	return b.String()
}

func sslCell(w models.WebsiteStatus, warnDays int) string {
	if w.DaysLeft == models.DaysUnknown {
		return subtleStyle.Render("-")
	}
	s := fmt.Sprintf("%d days", w.DaysLeft)
	switch {
	case w.DaysLeft < 0:
		return dangerStyle.Render("EXPIRED")
	case threshold.ExpiringSoon(w.DaysLeft, warnDays):
		return warnStyle.Render(s)
	default:
		return specialStyle.Render(s)
	}
}

func limitStr(text string, max int) string {
	r := []rune(text)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return text
}
