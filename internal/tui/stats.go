package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/timetrail/internal/engine"
	"github.com/sadopc/timetrail/internal/store"
)

var categoryPalette = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

type statsModel struct {
	eng    *engine.Engine
	width  int
	height int

	offset int // weeks back from the current one, 0 = current
	stats  []store.CategoryStat

	chart barchart.Model
}

func newStatsModel(e *engine.Engine) statsModel {
	return statsModel{
		eng:   e,
		chart: barchart.New(60, 12),
	}
}

func (s *statsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type statsDataMsg struct {
	stats []store.CategoryStat
}

func (s statsModel) weekRange() (time.Time, time.Time) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekday := today.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	start := today.AddDate(0, 0, -int(weekday-time.Monday))
	start = start.AddDate(0, 0, -7*s.offset)
	return start, start.AddDate(0, 0, 7)
}

func (s statsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		from, to := s.weekRange()
		stats, err := s.eng.Stats(from.Unix(), to.Unix(), "", "/")
		if err != nil {
			return statusMsg{text: fmt.Sprintf("stats error: %v", err), isError: true}
		}
		return statsDataMsg{stats: stats}
	}
}

func (s statsModel) update(msg tea.Msg) (statsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statsDataMsg:
		s.stats = msg.stats
		s.buildChart()
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			s.offset++
			return s, s.refresh()
		case key.Matches(msg, keys.Right):
			if s.offset > 0 {
				s.offset--
			}
			return s, s.refresh()
		}
	}
	return s, nil
}

func (s *statsModel) buildChart() {
	chartWidth := s.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if s.height > 30 {
		chartHeight = 16
	}
	s.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	for i, cat := range s.stats {
		hours := float64(cat.Duration) / 3600.0
		color := categoryPalette[i%len(categoryPalette)]
		label := cat.Category
		if len(label) > 12 {
			label = label[:12]
		}
		bars = append(bars, barchart.BarData{
			Label: label,
			Values: []barchart.BarValue{{
				Name:  cat.Category,
				Value: hours,
				Style: lipgloss.NewStyle().Foreground(lipgloss.Color(color)),
			}},
		})
	}
	if len(bars) == 0 {
		bars = []barchart.BarData{{
			Label:  "",
			Values: []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}},
		}}
	}

	s.chart.PushAll(bars)
	s.chart.Draw()
}

func (s statsModel) view() string {
	w := s.width - 4

	from, to := s.weekRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s — %s", from.Format("Jan 02"), to.Add(-24*time.Hour).Format("Jan 02, 2006")))
	header := lipgloss.JoinHorizontal(lipgloss.Bottom, titleStyle.Render("Stats"), "  ", dateLabel)

	chartView := s.chart.View()
	tableView := s.renderTable()
	nav := mutedStyle.Render("  ←/→: navigate week")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", chartView, "", tableView, "", nav),
	)
}

func (s statsModel) renderTable() string {
	if len(s.stats) == 0 {
		return mutedStyle.Render("  No data for this period")
	}

	var rows []string
	header := mutedStyle.Render(fmt.Sprintf("  %-24s %10s", "Category", "Duration"))
	rows = append(rows, header)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(s.width-6, 40))))

	for i, cat := range s.stats {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(categoryPalette[i%len(categoryPalette)])).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-22s %10s", dot, cat.Category, formatSeconds(cat.Duration)))
	}

	return strings.Join(rows, "\n")
}
