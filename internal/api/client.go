package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public Eduskunta open-data endpoint.
const DefaultBaseURL = "https://avoindata.eduskunta.fi/api/v1"

// MaxPerPage is the largest page size the API accepts.
const MaxPerPage = 100

// Options configures the API client.
type Options struct {
	// BaseURL of the API, without trailing slash. Default: DefaultBaseURL.
	BaseURL string

	// Timeout bounds each individual request. Default: 15s.
	Timeout time.Duration

	// MaxIdleConnsPerHost tunes connection reuse. Default: 16.
	MaxIdleConnsPerHost int

	// UserAgent sent with every request.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:             DefaultBaseURL,
		Timeout:             15 * time.Second,
		MaxIdleConnsPerHost: 16,
		UserAgent:           "eduskunta-fetch",
	}
}

// Client calls the Eduskunta API. It performs single attempts only; retry
// policy belongs to the caller.
type Client struct {
	baseURL string
	client  *http.Client
	opts    Options
}

// NewClient creates a client with the given options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 16
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: opts.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// ListTables returns the names of all tables exposed by the API.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, c.baseURL+"/tables/", "", &names); err != nil {
		return nil, err
	}
	return names, nil
}

// TableCounts returns server-side row counts keyed by table name.
func (c *Client) TableCounts(ctx context.Context) (map[string]int64, error) {
	var counts []TableCount
	if err := c.getJSON(ctx, c.baseURL+"/tables/counts", "", &counts); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for _, tc := range counts {
		out[tc.TableName] = tc.RowCount
	}
	return out, nil
}

// TableColumns returns the column names of a table by fetching a single row.
func (c *Client) TableColumns(ctx context.Context, table string) ([]string, error) {
	page, err := c.FetchPage(ctx, PageRequest{Table: table, Mode: ModePageIndex, Page: 0, PerPage: 1})
	if err != nil {
		return nil, err
	}
	return page.ColumnNames, nil
}

// FetchPage performs one rows call and decodes the page. The error, if any,
// is always a classified *Error.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*RowsPage, error) {
	q := url.Values{}
	q.Set("perPage", strconv.Itoa(req.PerPage))
	switch req.Mode {
	case ModePKAscending:
		q.Set("pkName", req.PKName)
		q.Set("pkStartValue", strconv.FormatInt(req.PKStart, 10))
	default:
		q.Set("page", strconv.Itoa(req.Page))
	}

	u := fmt.Sprintf("%s/tables/%s/rows?%s", c.baseURL, url.PathEscape(req.Table), q.Encode())

	var page RowsPage
	if err := c.getJSON(ctx, u, req.Table, &page); err != nil {
		return nil, err
	}
	if err := validatePage(&page); err != nil {
		return nil, &Error{Kind: KindDecode, Table: req.Table, Err: err}
	}
	return &page, nil
}

// getJSON performs a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, url, table string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindClient, Table: table, Err: err}
	}
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &Error{Kind: classifyTransport(ctx, err), Table: table, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Table:      table,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Table: table, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// validatePage rejects pages whose rows do not line up with the column list.
func validatePage(p *RowsPage) error {
	if len(p.RowData) > 0 && len(p.ColumnNames) == 0 {
		return fmt.Errorf("page has %d rows but no column names", len(p.RowData))
	}
	for i, row := range p.RowData {
		if len(row) != len(p.ColumnNames) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(p.ColumnNames))
		}
	}
	return nil
}
