package fetch

import (
	"testing"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
)

func pkPage(cols []string, rows [][]string, lastPK int64) *api.RowsPage {
	return &api.RowsPage{
		ColumnNames: cols,
		RowData:     rows,
		RowCount:    int64(len(rows)),
		PKLastValue: lastPK,
	}
}

func TestCursor_PKAscending(t *testing.T) {
	spec := TableSpec{Name: "SaliDBAanestys", PKColumn: "AanestysId"}
	c := NewCursor(spec, 5, 0)

	// 12 rows total: pages of 5, 5, 2.
	cols := []string{"AanestysId", "Tulos"}
	pages := []*api.RowsPage{
		pkPage(cols, [][]string{{"1", "x"}, {"2", "x"}, {"3", "x"}, {"4", "x"}, {"5", "x"}}, 5),
		pkPage(cols, [][]string{{"6", "x"}, {"7", "x"}, {"8", "x"}, {"9", "x"}, {"10", "x"}}, 10),
		pkPage(cols, [][]string{{"11", "x"}, {"12", "x"}}, 12),
	}
	wantStarts := []int64{1, 6, 11}

	for i, page := range pages {
		req, ok := c.Next()
		if !ok {
			t.Fatalf("request %d: Next returned false", i)
		}
		if req.Mode != api.ModePKAscending || req.PKName != "AanestysId" {
			t.Fatalf("request %d: unexpected request %+v", i, req)
		}
		if req.PKStart != wantStarts[i] {
			t.Errorf("request %d: PKStart = %d, want %d", i, req.PKStart, wantStarts[i])
		}

		// A second request before Advance must be refused.
		if _, ok := c.Next(); ok {
			t.Fatalf("request %d: Next allowed a second outstanding pk request", i)
		}

		rows := c.PlanApply(page)
		c.Advance(page, len(rows))
	}

	if !c.Exhausted() {
		t.Error("cursor not exhausted after short page")
	}
	if _, ok := c.Next(); ok {
		t.Error("Next issued a request after exhaustion")
	}
	if c.Rows() != 12 || c.Pages() != 3 {
		t.Errorf("rows/pages = %d/%d, want 12/3", c.Rows(), c.Pages())
	}
}

func TestCursor_PKNoProgress(t *testing.T) {
	// A full page whose key does not advance must terminate, not loop.
	c := NewCursor(TableSpec{Name: "t", PKColumn: "Id"}, 2, 0)
	c.Next()
	page := pkPage([]string{"Id"}, [][]string{{"0"}, {"0"}}, 0)
	c.Advance(page, 2)
	if !c.Exhausted() {
		t.Fatal("cursor kept going without key progress")
	}
}

func TestCursor_PageIndex(t *testing.T) {
	c := NewCursor(TableSpec{Name: "VaskiData"}, 3, 0)

	// Read-ahead: several requests may be issued before any is applied.
	var reqs []api.PageRequest
	for i := 0; i < 3; i++ {
		req, ok := c.Next()
		if !ok {
			t.Fatalf("Next %d returned false", i)
		}
		reqs = append(reqs, req)
	}
	for i, req := range reqs {
		if req.Page != i {
			t.Errorf("request %d: page = %d, want %d", i, req.Page, i)
		}
	}

	cols := []string{"Id", "Xml"}
	full := func(hasMore bool) *api.RowsPage {
		return &api.RowsPage{
			ColumnNames: cols,
			RowData:     [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}},
			HasMore:     hasMore,
			RowCount:    7,
		}
	}
	c.Advance(full(true), 3)
	c.Advance(full(true), 3)
	last := &api.RowsPage{ColumnNames: cols, RowData: [][]string{{"g", "h"}}, HasMore: false, RowCount: 7}
	c.Advance(last, 1)

	if !c.Exhausted() {
		t.Error("cursor not exhausted after hasMore=false")
	}
	if c.Rows() != 7 {
		t.Errorf("rows = %d, want 7", c.Rows())
	}
}

func TestCursor_SetTotalRowsCapsIssuance(t *testing.T) {
	c := NewCursor(TableSpec{Name: "t"}, 10, 0)
	c.SetTotalRows(25) // 3 pages

	var pages []int
	for {
		req, ok := c.Next()
		if !ok {
			break
		}
		pages = append(pages, req.Page)
	}
	if len(pages) != 3 {
		t.Fatalf("issued %d pages, want 3 (got %v)", len(pages), pages)
	}
}

func TestCursor_RowLimitTruncation(t *testing.T) {
	c := NewCursor(TableSpec{Name: "t"}, 5, 7)

	cols := []string{"Id"}
	p0 := &api.RowsPage{ColumnNames: cols, RowData: [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, HasMore: true, RowCount: 50}
	rows := c.PlanApply(p0)
	if len(rows) != 5 {
		t.Fatalf("first page: PlanApply = %d rows, want 5", len(rows))
	}
	c.Advance(p0, len(rows))

	p1 := &api.RowsPage{ColumnNames: cols, RowData: [][]string{{"6"}, {"7"}, {"8"}, {"9"}, {"10"}}, HasMore: true, RowCount: 50}
	rows = c.PlanApply(p1)
	if len(rows) != 2 {
		t.Fatalf("second page: PlanApply = %d rows, want 2", len(rows))
	}
	c.Advance(p1, len(rows))

	if !c.Exhausted() {
		t.Error("cursor not exhausted at row limit")
	}
	if c.Rows() != 7 {
		t.Errorf("rows = %d, want 7", c.Rows())
	}
	if rows = c.PlanApply(p1); rows != nil {
		t.Errorf("PlanApply past the limit returned %d rows", len(rows))
	}
}

func TestCursor_PageIndexRestoreResumesAtAppliedPage(t *testing.T) {
	c := NewCursor(TableSpec{Name: "VaskiData"}, 5, 0)

	// Read-ahead issues pages 0..2 before any result comes back.
	for i := 0; i < 3; i++ {
		if _, ok := c.Next(); !ok {
			t.Fatalf("Next %d returned false", i)
		}
	}

	// Only page 0 gets applied before the snapshot is taken.
	p0 := &api.RowsPage{
		ColumnNames: []string{"Id"},
		RowData:     [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}},
		HasMore:     true,
	}
	c.Advance(p0, 5)

	pos := c.Position()
	if pos.NextPage != 1 {
		t.Fatalf("saved NextPage = %d, want 1 (issued-but-unapplied pages must be refetched)", pos.NextPage)
	}
	if pos.Rows != 5 || pos.Pages != 1 {
		t.Fatalf("saved rows/pages = %d/%d, want 5/1", pos.Rows, pos.Pages)
	}

	restored := NewCursor(TableSpec{Name: "VaskiData"}, 5, 0)
	restored.Restore(pos)
	req, ok := restored.Next()
	if !ok {
		t.Fatal("restored cursor refused to issue")
	}
	if req.Page != 1 {
		t.Errorf("restored first request page = %d, want 1", req.Page)
	}
}

func TestCursor_RestoreRoundTrip(t *testing.T) {
	c := NewCursor(TableSpec{Name: "t", PKColumn: "Id"}, 5, 0)
	c.Next()
	c.Advance(pkPage([]string{"Id"}, [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, 5), 5)

	pos := c.Position()
	restored := NewCursor(TableSpec{Name: "t", PKColumn: "Id"}, 5, 0)
	restored.Restore(pos)

	req, ok := restored.Next()
	if !ok {
		t.Fatal("restored cursor refused to issue")
	}
	if req.PKStart != 6 {
		t.Errorf("restored PKStart = %d, want 6", req.PKStart)
	}
	if restored.Rows() != 5 || restored.Pages() != 1 {
		t.Errorf("restored rows/pages = %d/%d, want 5/1", restored.Rows(), restored.Pages())
	}
}
