package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/sadopc/timetrail/internal/engine"
	"github.com/sadopc/timetrail/internal/model"
)

const historyPageSize = 200

type historyModel struct {
	eng    *engine.Engine
	width  int
	height int

	entries []model.DerivedEntry
	cursor  int

	formActive bool
	form       *huh.Form
	formType   string // "new" or "edit"

	formCategory *string
	formComment  *string

	editingUUID  uuid.UUID
	editingStart int64
}

func newHistoryModel(e *engine.Engine) historyModel {
	cat, comment := "", ""
	return historyModel{
		eng:          e,
		formCategory: &cat,
		formComment:  &comment,
	}
}

func (h *historyModel) setSize(w, hh int) {
	h.width = w
	h.height = hh
}

type historyDataMsg struct {
	entries []model.DerivedEntry
}

func (h historyModel) refresh() tea.Cmd {
	return func() tea.Msg {
		entries, err := h.eng.HistoryBefore(time.Now().Unix(), historyPageSize)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("history error: %v", err), isError: true}
		}
		return historyDataMsg{entries: entries}
	}
}

func (h historyModel) update(msg tea.Msg) (historyModel, tea.Cmd) {
	if h.formActive && h.form != nil {
		return h.updateForm(msg)
	}

	switch msg := msg.(type) {
	case historyDataMsg:
		h.entries = msg.entries
		if h.cursor >= len(h.entries) {
			h.cursor = max(0, len(h.entries)-1)
		}
		return h, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if h.cursor > 0 {
				h.cursor--
			}
		case key.Matches(msg, keys.Down):
			if h.cursor < len(h.entries)-1 {
				h.cursor++
			}
		case key.Matches(msg, keys.New):
			return h.showNewForm()
		case key.Matches(msg, keys.Edit):
			if len(h.entries) > 0 {
				return h.showEditForm()
			}
		case key.Matches(msg, keys.Delete):
			if len(h.entries) > 0 {
				sel := h.entries[h.cursor]
				h.eng.Remove(sel.UUID, time.Now().UnixMilli())
				return h, h.refresh()
			}
		case key.Matches(msg, keys.Undo):
			h.eng.Undo()
			return h, h.refresh()
		}
	}
	return h, nil
}

func (h historyModel) showNewForm() (historyModel, tea.Cmd) {
	*h.formCategory = ""
	*h.formComment = ""
	h.formType = "new"

	h.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Category").Value(h.formCategory),
			huh.NewInput().Title("Comment").Value(h.formComment),
		),
	).WithShowHelp(true).WithShowErrors(true)

	h.formActive = true
	return h, h.form.Init()
}

func (h historyModel) showEditForm() (historyModel, tea.Cmd) {
	sel := h.entries[h.cursor]
	*h.formCategory = sel.Category
	*h.formComment = sel.Comment
	h.formType = "edit"
	h.editingUUID = sel.UUID
	h.editingStart = sel.Start

	h.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Category").Value(h.formCategory),
			huh.NewInput().Title("Comment").Value(h.formComment),
		),
	).WithShowHelp(true).WithShowErrors(true)

	h.formActive = true
	return h, h.form.Init()
}

func (h historyModel) updateForm(msg tea.Msg) (historyModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			h.formActive = false
			h.form = nil
			return h, nil
		}
	}

	form, cmd := h.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		h.form = f
	}

	if h.form.State == huh.StateCompleted {
		h.formActive = false
		switch h.formType {
		case "new":
			if *h.formCategory != "" {
				now := time.Now()
				h.eng.Insert(model.SyncEntry{
					UUID:     uuid.New(),
					Start:    now.Unix(),
					Category: *h.formCategory,
					Comment:  *h.formComment,
					MTime:    now.UnixMilli(),
					Valid:    true,
				})
			}
		case "edit":
			if *h.formCategory != "" {
				h.eng.Edit(model.SyncEntry{
					UUID:     h.editingUUID,
					Start:    h.editingStart,
					Category: *h.formCategory,
					Comment:  *h.formComment,
					MTime:    time.Now().UnixMilli(),
				}, model.FieldCategory|model.FieldComment)
			}
		}
		return h, h.refresh()
	}

	return h, cmd
}

func (h historyModel) view() string {
	if h.formActive && h.form != nil {
		title := titleStyle.Render("New Entry")
		if h.formType == "edit" {
			title = titleStyle.Render("Edit Entry")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", h.form.View())
		return panelStyle.Width(h.width - 4).Render(content)
	}

	w := h.width - 4
	title := titleStyle.Render("History")

	if len(h.entries) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No entries yet. Press n to log one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-20s %-24s %-10s %s", "Start", "Category", "Duration", "Comment")))

	for i, e := range h.entries {
		cursor := "  "
		style := normalItemStyle
		if i == h.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		dur := formatSeconds(e.Duration)
		durStyled := dur
		if e.Duration == model.NoSuccessorDuration {
			durStyled = liveEntryStyle.Render(dur)
		}
		row := fmt.Sprintf("%s%-20s %-24s %-10s %s",
			cursor, e.StartTime().Local().Format("2006-01-02 15:04"), e.Category, durStyled, e.Comment)
		rows = append(rows, style.Render(row))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  e: edit  d: delete  u: undo  x: export"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
