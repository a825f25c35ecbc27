package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BuzzLyutic/todo-client/internal/api"
	"github.com/BuzzLyutic/todo-client/internal/controller"
	"github.com/BuzzLyutic/todo-client/internal/model"
)

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
	modeConfirm
)

// Model renders the controller's list and forwards key presses to it as
// intents. Controller calls that reach the network run as commands.
type Model struct {
	ctrl *controller.Controller

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model

	mode    mode
	cursor  int
	step    int
	draft   controller.Draft
	editID  int64
	confirm *confirmMsg
	notice  string
	err     string
	width   int
}

func New(ctrl *controller.Controller) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	return Model{
		ctrl:    ctrl,
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
		input:   ti,
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctrl *controller.Controller, bridge *Bridge) error {
	p := tea.NewProgram(New(ctrl), tea.WithAltScreen())
	bridge.Attach(p)
	ctrl.OnChange(bridge.Changed)
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case changedMsg:
		m.clampCursor()
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, nil

	case confirmMsg:
		m.confirm = &msg
		m.mode = modeConfirm
		return m, nil

	case doneMsg:
		m.handleDone(msg)
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeAdd, modeEdit:
			return m.updateInput(msg)
		case modeConfirm:
			return m.updateConfirm(msg), nil
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = ""
	todos := m.ctrl.State().Todos

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(todos)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if todo, ok := m.selected(todos); ok {
			return m, m.run("toggle", func(ctx context.Context) error {
				_, err := m.ctrl.Toggle(ctx, todo.ID)
				return err
			})
		}
	case key.Matches(msg, m.keys.Add):
		m.mode = modeAdd
		m.step = 0
		m.draft = controller.Draft{}
		m.startInput("", "Todo title...")
	case key.Matches(msg, m.keys.Edit):
		// Only open todos can be edited.
		if todo, ok := m.selected(todos); ok && !todo.Completed {
			m.mode = modeEdit
			m.step = 0
			m.editID = todo.ID
			m.draft = controller.Draft{TodoName: todo.TodoName, Description: todo.Description}
			m.ctrl.BeginEdit(todo)
			m.startInput(todo.TodoName, "Todo title...")
		}
	case key.Matches(msg, m.keys.Delete):
		// Only completed todos can be deleted.
		if todo, ok := m.selected(todos); ok && todo.Completed {
			return m, m.run("delete", func(ctx context.Context) error {
				return m.ctrl.Delete(ctx, todo.ID)
			})
		}
	case key.Matches(msg, m.keys.Filter):
		m.cursor = 0
		m.setErr(m.ctrl.SetFilter(m.ctrl.Filter().Next()))
	case key.Matches(msg, m.keys.Order):
		order := model.OrderAsc
		if m.ctrl.Order() == model.OrderAsc {
			order = model.OrderDesc
		}
		m.cursor = 0
		m.setErr(m.ctrl.SetSortOrder(order))
	case key.Matches(msg, m.keys.Prev):
		m.cursor = 0
		m.setErr(m.ctrl.PrevPage())
	case key.Matches(msg, m.keys.Next):
		m.cursor = 0
		m.setErr(m.ctrl.NextPage())
	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", m.ctrl.Refresh)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// updateInput drives the two-step title/description form.
func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == modeEdit {
			m.ctrl.CancelEdit()
		}
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		if m.step == 0 {
			m.draft.TodoName = m.input.Value()
			m.step = 1
			m.startInput(m.draft.Description, "Todo description...")
			return m, nil
		}
		m.draft.Description = m.input.Value()
		m.input.Blur()

		draft, id, op := m.draft, m.editID, "create"
		if m.mode == modeEdit {
			op = "update"
		}
		m.mode = modeBrowse
		return m, m.run(op, func(ctx context.Context) error {
			if op == "update" {
				_, err := m.ctrl.Update(ctx, id, draft)
				return err
			}
			_, err := m.ctrl.Create(ctx, draft)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) Model {
	var yes bool
	switch strings.ToLower(msg.String()) {
	case "y":
		yes = true
	case "n", "esc":
	default:
		return m
	}
	m.confirm.answer <- yes
	m.confirm = nil
	m.mode = modeBrowse
	return m
}

func (m *Model) startInput(value, placeholder string) {
	m.input.SetValue(value)
	m.input.Placeholder = placeholder
	m.input.CursorEnd()
	m.input.Focus()
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(context.Background())}
	}
}

func (m *Model) handleDone(msg doneMsg) {
	switch {
	case msg.err == nil:
	case errors.Is(msg.err, controller.ErrNotConfirmed), errors.Is(msg.err, controller.ErrUnchanged):
	case errors.Is(msg.err, controller.ErrValidation) && msg.op == "create":
		m.err = "Title and description are required"
	default:
		var apiErr *api.Error
		if msg.op == "refresh" || !errors.As(msg.err, &apiErr) {
			m.err = msg.err.Error()
		}
	}
	m.clampCursor()
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.err = err.Error()
	}
}

func (m *Model) clampCursor() {
	n := len(m.ctrl.State().Todos)
	if m.cursor >= n {
		m.cursor = max(0, n-1)
	}
}

func (m Model) selected(todos []model.Todo) (model.Todo, bool) {
	if m.cursor < 0 || m.cursor >= len(todos) {
		return model.Todo{}, false
	}
	return todos[m.cursor], true
}

func (m Model) View() string {
	st := m.ctrl.State()

	var b strings.Builder
	b.WriteString(m.header(st))
	b.WriteString("\n\n")

	switch {
	case st.Status == api.StatusLoading:
		b.WriteString(m.spinner.View() + " Loading todos...")
	case st.Status == api.StatusError:
		b.WriteString(errorStyle.Render("Error loading todos!"))
		b.WriteString("\n" + mutedStyle.Render(st.Err.Error()+" (r to retry)"))
	case len(st.Todos) == 0:
		b.WriteString(mutedStyle.Render("No Todo's here!"))
	default:
		for i, todo := range st.Todos {
			b.WriteString(m.row(i, todo))
			b.WriteString("\n")
		}
	}

	if p := st.Pagination; p != nil {
		b.WriteString("\n")
		if p.TotalPages > 1 {
			b.WriteString(fmt.Sprintf("Page %d of %d   ", p.CurrentPage, p.TotalPages))
		}
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Showing %d of %d todos", len(st.Todos), p.TotalCount)))
	}

	switch m.mode {
	case modeAdd, modeEdit:
		title := "Create New Todo"
		if m.mode == modeEdit {
			title = "Edit Todo"
		}
		field := "title"
		if m.step == 1 {
			field = "description"
		}
		form := titleStyle.Render(title) + " " + mutedStyle.Render(field) + "\n" + m.input.View()
		b.WriteString("\n" + panelStyle.Render(form))
	case modeConfirm:
		b.WriteString("\n" + panelStyle.Render(m.confirm.text+" "+accentStyle.Render("[y/n]")))
	}

	if m.err != "" {
		b.WriteString("\n" + errorStyle.Render(m.err))
	}
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice))
	}
	b.WriteString("\n" + m.help.View(m.keys))

	return panelStyle.Render(b.String())
}

func (m Model) header(st controller.ListState) string {
	var done, open int
	for _, t := range st.Todos {
		if t.Completed {
			done++
		} else {
			open++
		}
	}

	order := "Newest first"
	if m.ctrl.Order() == model.OrderAsc {
		order = "Oldest first"
	}
	refreshing := ""
	if st.Fetching && st.Status != api.StatusLoading {
		refreshing = " " + m.spinner.View()
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Todos"),
		fmt.Sprintf("   %s %d  %s %d   ", successStyle.Render("✔"), done, pendingStyle.Render("•"), open),
		accentStyle.Render(string(m.ctrl.Filter())),
		mutedStyle.Render(" · "+order),
		refreshing,
	)
}

func (m Model) row(i int, todo model.Todo) string {
	box, name := mutedStyle.Render(boxUnchecked), todo.TodoName
	desc := mutedStyle.Render(todo.Description)
	if todo.Completed {
		box = successStyle.Render(boxChecked)
		name = doneStyle.Render(name)
		desc = doneStyle.Render(todo.Description)
	}

	prefix := "  "
	if i == m.cursor && m.mode == modeBrowse {
		prefix = selectedStyle.Render(">") + " "
	}
	return fmt.Sprintf("%s%s %s  %s", prefix, box, name, desc)
}
