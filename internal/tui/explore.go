// Package tui is an interactive browser for downloaded tables.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// Store reads downloaded tables. *sink.SQLite satisfies this.
type Store interface {
	ListTables(ctx context.Context) ([]string, error)
	RowCount(ctx context.Context, table string) (int64, error)
	Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error)
}

const previewRows = 200

type view int

const (
	viewTables view = iota
	viewRows
)

// Model is the explore TUI: a table list with per-table row previews.
type Model struct {
	store Store
	ctx   context.Context

	view      view
	tableList table.Model
	rowView   table.Model
	current   string
	err       error
	width     int
	height    int
}

// New builds the explore model. Call Run to start the program.
func New(ctx context.Context, store Store) (*Model, error) {
	names, err := store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("database has no tables: run a download first")
	}

	rows := make([]table.Row, len(names))
	for i, name := range names {
		count, err := store.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		rows[i] = table.Row{name, fmt.Sprintf("%d", count)}
	}

	tl := table.New(
		table.WithColumns([]table.Column{
			{Title: "Table", Width: 40},
			{Title: "Rows", Width: 12},
		}),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	applyTableStyles(&tl)

	return &Model{store: store, ctx: ctx, tableList: tl}, nil
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, store Store) error {
	m, err := New(ctx, store)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func applyTableStyles(t *table.Model) {
	s := table.DefaultStyles()
	s.Header = styleHeader
	s.Selected = styleSelected
	t.SetStyles(s)
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 8
		if h < 5 {
			h = 5
		}
		m.tableList.SetHeight(h)
		m.rowView.SetHeight(h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if m.view == viewTables {
				m.openTable(m.tableList.SelectedRow()[0])
				return m, nil
			}
		case "esc":
			if m.view == viewRows {
				m.view = viewTables
				m.err = nil
				return m, nil
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	if m.view == viewTables {
		m.tableList, cmd = m.tableList.Update(msg)
	} else {
		m.rowView, cmd = m.rowView.Update(msg)
	}
	return m, cmd
}

// truncateCell shortens v to at most width characters. It counts runes, not
// bytes; Finnish text would otherwise be cut mid-character.
func truncateCell(v string, width int) string {
	runes := []rune(v)
	if len(runes) <= width {
		return v
	}
	return string(runes[:width-1]) + "…"
}

// openTable loads a preview of the selected table into the row view.
func (m *Model) openTable(name string) {
	cols, rows, err := m.store.Query(m.ctx,
		fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, name, previewRows))
	if err != nil {
		m.err = err
		return
	}

	width := 24
	if len(cols) > 0 && m.width > 0 {
		width = (m.width - 6) / len(cols)
		if width < 8 {
			width = 8
		}
	}
	tcols := make([]table.Column, len(cols))
	for i, c := range cols {
		tcols[i] = table.Column{Title: c, Width: width}
	}
	trows := make([]table.Row, len(rows))
	for i, row := range rows {
		cells := make(table.Row, len(row))
		for j, v := range row {
			cells[j] = truncateCell(v, width)
		}
		trows[i] = cells
	}

	rv := table.New(
		table.WithColumns(tcols),
		table.WithRows(trows),
		table.WithFocused(true),
		table.WithHeight(m.tableList.Height()),
	)
	applyTableStyles(&rv)

	m.rowView = rv
	m.current = name
	m.view = viewRows
	m.err = nil
}

func (m *Model) View() string {
	var body string
	if m.view == viewTables {
		title := styleTitle.Render("Eduskunta data")
		help := styleHelp.Render("enter: preview  q: quit")
		body = title + "\n" + styleTable.Render(m.tableList.View()) + "\n" + help
	} else {
		title := styleTitle.Render(m.current) + " " +
			styleCount.Render(fmt.Sprintf("(first %d rows)", previewRows))
		help := styleHelp.Render("esc: back  q: quit")
		body = title + "\n" + styleTable.Render(m.rowView.View()) + "\n" + help
	}
	if m.err != nil {
		body += "\n" + styleError.Render(m.err.Error())
	}
	return body
}
