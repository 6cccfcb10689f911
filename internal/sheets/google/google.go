package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configure a Sheets exporter. One of CredentialsJSON or
// CredentialsFile must be set.
type Options struct {
	SpreadsheetID   string
	TabPrefix       string
	CredentialsJSON string
	CredentialsFile string
}

// Client writes projected months to one spreadsheet, one tab per user month.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string

	mu        sync.Mutex
	knownTabs map[string]struct{}
}

// Ensure interface conformance
var _ sheets.MonthWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		tabPrefix:     opts.TabPrefix,
		knownTabs:     make(map[string]struct{}),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when no credentials are configured.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(opts.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// WriteMonth replaces the tab of the exported month with freshly rendered
// rows, creating the tab on first use.
func (c *Client) WriteMonth(ctx context.Context, export sheets.MonthExport) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tab := sheets.TabName(c.tabPrefix, export.UserID, export.Period)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	rng := tabRange(tab, "A:F")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	rows := sheets.Render(export)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tabRange(tab, "A1"), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Month exported to Google Sheets",
		"tab", tab,
		"user_id", export.UserID,
		"rows", len(export.Occurrences))
	return nil
}

// ensureTab creates the tab unless it is known to exist.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	if c.hasTab(tab) {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	c.rememberTabs(titles...)
	if c.hasTab(tab) {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	c.rememberTabs(tab)
	slog.InfoContext(ctx, "Created sheet tab", "tab", tab)
	return nil
}

func (c *Client) hasTab(tab string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.knownTabs[tab]
	return ok
}

func (c *Client) rememberTabs(tabs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tabs {
		c.knownTabs[t] = struct{}{}
	}
}

// tabRange quotes the tab name for A1 notation, e.g. 'Expenses 7 2025-04'!A1.
func tabRange(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}
