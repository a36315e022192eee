package fetch

import (
	"strconv"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
)

// TableSpec identifies one table to download.
type TableSpec struct {
	// Name is the API table name. Identity.
	Name string

	// PKColumn selects pk-ascending pagination when set; page-index otherwise.
	PKColumn string

	// Priority orders table starts; lower starts first.
	Priority int
}

// Mode returns the addressing mode implied by the spec.
func (s TableSpec) Mode() api.AddressingMode {
	if s.PKColumn != "" {
		return api.ModePKAscending
	}
	return api.ModePageIndex
}

// CursorPosition is the externally persistable part of a cursor, enough to
// resume a table download after a restart. NextPage is the next page to
// apply, never the read-ahead issue pointer: pages issued but not yet
// appended to the sink must be fetched again after a restart.
type CursorPosition struct {
	Mode        api.AddressingMode
	NextPage    int
	NextPKStart int64
	Rows        int64
	Pages       int64
}

// Cursor is the per-table pagination state machine. It alone decides the next
// request's parameters and whether more pages remain; it never touches the
// network. A cursor is owned by exactly one coordinator and is not safe for
// concurrent use.
//
// In page-index mode the issue pointer may run ahead of the apply pointer so
// several pages can be in flight; pages must still be applied in issue order.
// In pk-ascending mode only one request can be outstanding because the next
// start value depends on the previous page.
type Cursor struct {
	table    string
	mode     api.AddressingMode
	pkName   string
	perPage  int
	rowLimit int64 // 0 = unlimited

	nextIssuePage int
	nextApplyPage int
	issueStop     int // first page not to issue; -1 while unknown
	nextPKStart   int64
	pkOutstanding bool

	rowsFetched  int64
	pagesApplied int64
	exhausted    bool
}

// NewCursor creates a fresh cursor for spec. rowLimit of 0 means unlimited.
func NewCursor(spec TableSpec, perPage int, rowLimit int64) *Cursor {
	c := &Cursor{
		table:     spec.Name,
		mode:      spec.Mode(),
		pkName:    spec.PKColumn,
		perPage:   perPage,
		rowLimit:  rowLimit,
		issueStop: -1,
	}
	if c.mode == api.ModePKAscending {
		c.nextPKStart = 1
	}
	return c
}

// Restore positions the cursor at a previously saved point.
func (c *Cursor) Restore(pos CursorPosition) {
	c.nextIssuePage = pos.NextPage
	c.nextApplyPage = pos.NextPage
	c.nextPKStart = pos.NextPKStart
	c.rowsFetched = pos.Rows
	c.pagesApplied = pos.Pages
	if c.mode == api.ModePKAscending && c.nextPKStart < 1 {
		c.nextPKStart = 1
	}
	if c.rowLimit > 0 && c.rowsFetched >= c.rowLimit {
		c.exhausted = true
	}
}

// Position snapshots the cursor for persistence.
func (c *Cursor) Position() CursorPosition {
	return CursorPosition{
		Mode:        c.mode,
		NextPage:    c.nextApplyPage,
		NextPKStart: c.nextPKStart,
		Rows:        c.rowsFetched,
		Pages:       c.pagesApplied,
	}
}

// Table returns the table name the cursor belongs to.
func (c *Cursor) Table() string { return c.table }

// Mode returns the addressing mode.
func (c *Cursor) Mode() api.AddressingMode { return c.mode }

// Exhausted reports whether the cursor is terminal.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// Rows returns the number of rows applied so far.
func (c *Cursor) Rows() int64 { return c.rowsFetched }

// Pages returns the number of pages applied so far.
func (c *Cursor) Pages() int64 { return c.pagesApplied }

// Next produces the next request to issue, or false when nothing further
// should be issued right now. In pk-ascending mode it refuses a second
// outstanding request until Advance consumes the first.
func (c *Cursor) Next() (api.PageRequest, bool) {
	if c.exhausted {
		return api.PageRequest{}, false
	}

	if c.mode == api.ModePKAscending {
		if c.pkOutstanding {
			return api.PageRequest{}, false
		}
		c.pkOutstanding = true
		return api.PageRequest{
			Table:   c.table,
			Mode:    api.ModePKAscending,
			PKName:  c.pkName,
			PKStart: c.nextPKStart,
			PerPage: c.perPage,
		}, true
	}

	if c.issueStop >= 0 && c.nextIssuePage >= c.issueStop {
		return api.PageRequest{}, false
	}
	req := api.PageRequest{
		Table:   c.table,
		Mode:    api.ModePageIndex,
		Page:    c.nextIssuePage,
		PerPage: c.perPage,
	}
	c.nextIssuePage++
	return req, true
}

// SetTotalRows caps page issuance once the server reports the table's total
// row count. Only meaningful in page-index mode.
func (c *Cursor) SetTotalRows(total int64) {
	if c.mode != api.ModePageIndex || total <= 0 {
		return
	}
	if c.rowLimit > 0 && c.rowLimit < total {
		total = c.rowLimit
	}
	stop := int((total + int64(c.perPage) - 1) / int64(c.perPage))
	if c.issueStop < 0 || stop < c.issueStop {
		c.issueStop = stop
	}
}

// PlanApply returns the rows of page that should be handed to the sink,
// truncated so the cumulative row count never exceeds the row limit.
// It does not mutate the cursor.
func (c *Cursor) PlanApply(page *api.RowsPage) [][]string {
	rows := page.RowData
	if c.rowLimit > 0 {
		remaining := c.rowLimit - c.rowsFetched
		if remaining <= 0 {
			return nil
		}
		if int64(len(rows)) > remaining {
			rows = rows[:remaining]
		}
	}
	return rows
}

// Advance consumes a page that was applied to the sink with the given number
// of rows. Pages must be advanced in the order Next issued them.
func (c *Cursor) Advance(page *api.RowsPage, applied int) {
	c.rowsFetched += int64(applied)
	c.pagesApplied++

	if c.rowLimit > 0 && c.rowsFetched >= c.rowLimit {
		c.exhausted = true
	}
	if applied < len(page.RowData) {
		// Truncated by the row limit.
		c.exhausted = true
	}

	switch c.mode {
	case api.ModePKAscending:
		c.pkOutstanding = false
		next := c.lastPK(page) + 1
		if next > c.nextPKStart {
			c.nextPKStart = next
		} else if len(page.RowData) > 0 {
			// No usable key to advance on; stop rather than re-request the
			// same window forever.
			c.exhausted = true
		}
		// Implicit-more semantics: a short page means the table is drained.
		if len(page.RowData) < c.perPage {
			c.exhausted = true
		}
	default:
		c.nextApplyPage++
		if !page.HasMore || len(page.RowData) < c.perPage {
			c.exhausted = true
		}
	}
}

// lastPK extracts the highest primary-key value seen in the page, preferring
// the server-reported value over scanning the rows.
func (c *Cursor) lastPK(page *api.RowsPage) int64 {
	if page.PKLastValue > 0 {
		return page.PKLastValue
	}
	if len(page.RowData) == 0 {
		return c.nextPKStart - 1
	}
	idx := -1
	for i, name := range page.ColumnNames {
		if name == c.pkName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return c.nextPKStart - 1
	}
	last := page.RowData[len(page.RowData)-1]
	v, err := strconv.ParseInt(last[idx], 10, 64)
	if err != nil {
		return c.nextPKStart - 1
	}
	return v
}
