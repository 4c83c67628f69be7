package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fxledger/internal/cache"
	"fxledger/internal/core"
	applog "fxledger/internal/log"
	ports "fxledger/internal/sheets"
)

const (
	DefaultIncomeSheet   = "Income"
	DefaultQuartersSheet = "Quarters"

	// Known sheet titles are re-read after knownSheetsTTL.
	maxKnownSheets = 256
	knownSheetsTTL = 10 * time.Minute
)

var incomeHeader = []any{"ID", "Date", "Currency", "Amount", "Rate", "Amount " + core.LocalCurrency, "Quarter"}

var summaryHeader = []any{"Quarter", "Total " + core.LocalCurrency, "Transactions"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	incomeBase    string
	quartersSheet string
	logger        *applog.Logger

	// titles of sheets known to exist
	titles *cache.LRUCache[struct{}]
}

// Ensure interface conformance
var _ ports.Mirror = (*Client)(nil)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID      string
	IncomeSheet        string // base name, the year is prefixed
	QuartersSheet      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, incomeBase, quartersSheet string, logger *applog.Logger) *Client {
	if incomeBase = strings.TrimSpace(incomeBase); incomeBase == "" {
		incomeBase = DefaultIncomeSheet
	}
	if quartersSheet = strings.TrimSpace(quartersSheet); quartersSheet == "" {
		quartersSheet = DefaultQuartersSheet
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentSheets)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		incomeBase:    incomeBase,
		quartersSheet: quartersSheet,
		logger:        logger.WithComponent(applog.ComponentSheets),
		titles:        cache.NewLRUCache[struct{}](maxKnownSheets, knownSheetsTTL),
	}
}

// NewFromConfig creates a Sheets client authenticated with a service account.
func NewFromConfig(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, cfg.IncomeSheet, cfg.QuartersSheet, logger), nil
}

// credentialsJSON resolves the service account key from inline JSON, a file,
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialsJSON(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	creds, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// IncomeSheetName returns the sheet holding transactions of year.
func (c *Client) IncomeSheetName(year int) string {
	return yearPrefixedName(c.incomeBase, year)
}

func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := tx.Date.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	sheet := c.IncomeSheetName(tx.Date.Year())
	if err := c.ensureSheet(ctx, sheet, incomeHeader); err != nil {
		return "", err
	}

	row := []any{
		tx.ID,
		tx.Date.String(),
		tx.Currency,
		tx.Amount,
		tx.Rate,
		tx.AmountLocal,
		tx.Quarter().String(),
	}
	rng := fmt.Sprintf("%s!A:G", quoteSheet(sheet))
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rng
	if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Transaction mirrored",
		applog.FieldTransactionID, tx.ID,
		applog.FieldOperation, applog.OpSync,
		"range", ref)
	return ref, nil
}

// DeleteTransaction clears the row whose column A holds tx.ID. When tx has no
// date every income sheet is searched.
func (c *Client) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	var candidates []string
	if !tx.Date.IsZero() {
		candidates = []string{c.IncomeSheetName(tx.Date.Year())}
	} else {
		all, err := c.incomeSheets(ctx)
		if err != nil {
			return err
		}
		candidates = all
	}

	want := strconv.FormatInt(tx.ID, 10)
	for _, sheet := range candidates {
		rng := fmt.Sprintf("%s!A:A", quoteSheet(sheet))
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
			ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", rng, err)
		}
		for i, row := range resp.Values {
			if len(row) == 0 || cellString(row[0]) != want {
				continue
			}
			rowRange := fmt.Sprintf("%s!A%d:G%d", quoteSheet(sheet), i+1, i+1)
			if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rowRange, &gsheet.ClearValuesRequest{}).
				Context(ctx).Do(); err != nil {
				return fmt.Errorf("clear %s: %w", rowRange, err)
			}
			c.logger.InfoContext(ctx, "Mirrored transaction cleared",
				applog.FieldTransactionID, tx.ID,
				"range", rowRange)
			return nil
		}
	}

	c.logger.WarnContext(ctx, "Mirrored row not found",
		applog.FieldTransactionID, tx.ID,
		applog.FieldErrorType, applog.ErrorTypeNotFound)
	return nil
}

// ListTransactions reads every row of every income sheet. Cleared and
// unparsable rows are skipped.
func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheetNames, err := c.incomeSheets(ctx)
	if err != nil {
		return nil, err
	}

	var out []core.Transaction
	for _, sheet := range sheetNames {
		rng := fmt.Sprintf("%s!A2:G", quoteSheet(sheet))
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
			ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rng, err)
		}
		for _, row := range resp.Values {
			tx, ok := parseRow(row)
			if !ok {
				continue
			}
			out = append(out, tx)
		}
	}
	core.SortByDateDesc(out)
	return out, nil
}

// WriteSummary rewrites the quarters sheet with s.
func (c *Client) WriteSummary(ctx context.Context, s core.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureSheet(ctx, c.quartersSheet, nil); err != nil {
		return err
	}

	sheet := quoteSheet(c.quartersSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet+"!A:C", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", c.quartersSheet, err)
	}

	rows := summaryRows(s)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", c.quartersSheet, err)
	}

	c.logger.InfoContext(ctx, "Quarter summary written",
		applog.FieldOperation, applog.OpSummarize,
		"quarters", len(s.Quarters),
		"total", s.AnnualTotal)
	return nil
}

func summaryRows(s core.Summary) [][]any {
	rows := make([][]any, 0, len(s.Quarters)+len(s.Years())+2)
	rows = append(rows, summaryHeader)
	for _, q := range s.Quarters {
		rows = append(rows, []any{q.Key.String(), q.Total, q.Count})
	}
	for _, y := range s.Years() {
		rows = append(rows, []any{strconv.Itoa(y.Year), y.Total, ""})
	}
	rows = append(rows, []any{"Total", s.AnnualTotal, ""})
	return rows
}

// ensureSheet creates title when it does not exist yet and writes header
// into its first row.
func (c *Client) ensureSheet(ctx context.Context, title string, header []any) error {
	if _, known := c.titles.Get(title); known {
		return nil
	}

	if err := c.refreshTitles(ctx); err != nil {
		return err
	}
	if _, known := c.titles.Get(title); known {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	if header != nil {
		rng := quoteSheet(title) + "!A1"
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header %s: %w", title, err)
		}
	}

	c.titles.Set(title, struct{}{})
	c.logger.InfoContext(ctx, "Sheet created", "sheet", title)
	return nil
}

func (c *Client) refreshTitles(ctx context.Context) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	// sheets removed by hand must not linger
	c.titles.Purge()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.titles.Set(sh.Properties.Title, struct{}{})
		}
	}
	return nil
}

// incomeSheets lists existing "<year> <base>" sheets, most recent first.
func (c *Client) incomeSheets(ctx context.Context) ([]string, error) {
	if err := c.refreshTitles(ctx); err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`^\d{4} ` + regexp.QuoteMeta(c.incomeBase) + `$`)
	var out []string
	for _, title := range c.titles.Keys() {
		if re.MatchString(title) {
			out = append(out, title)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}
