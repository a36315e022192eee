package api

// AddressingMode selects how a table's rows endpoint is paginated.
type AddressingMode int

const (
	// ModePageIndex requests rows by 0-based page number.
	ModePageIndex AddressingMode = iota
	// ModePKAscending requests rows starting from a primary-key value.
	ModePKAscending
)

func (m AddressingMode) String() string {
	if m == ModePKAscending {
		return "pk-ascending"
	}
	return "page-index"
}

// PageRequest holds the parameters for one rows call.
type PageRequest struct {
	Table   string
	Mode    AddressingMode
	PerPage int

	// Page is used in ModePageIndex.
	Page int

	// PKName and PKStart are used in ModePKAscending.
	PKName  string
	PKStart int64
}

// RowsPage is one decoded response from the rows endpoint.
type RowsPage struct {
	ColumnNames []string   `json:"columnNames"`
	RowData     [][]string `json:"rowData"`
	HasMore     bool       `json:"hasMore"`
	RowCount    int64      `json:"rowCount"`
	PKLastValue int64      `json:"pkLastValue"`
}

// TableCount pairs a table name with its server-reported row count.
type TableCount struct {
	TableName string `json:"tableName"`
	RowCount  int64  `json:"rowCount"`
}
