// Package sheets implements the batch sink client (C9): authenticated
// batch append to a Google Sheets-backed record store.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Item is one row bound for the spreadsheet, shaped to match the forward
// queue's QueueItem.
type Item struct {
	ID         string
	PayloadStr string
	ReceivedAt string
}

// Config carries the credential and target sheet for a Client.
type Config struct {
	SheetID           string
	SheetName         string
	ServiceAccountB64 string
	ServiceAccountRaw string
}

// Client lazily authenticates on first use and caches the resulting
// *sheets.Service across calls, so a process that never enqueues anything
// never needs valid credentials.
type Client struct {
	cfg Config

	mu      sync.Mutex
	service *sheets.Service
	initErr error
}

// New builds a Client; no network or credential work happens until the
// first AppendBatch call.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) credentialJSON() ([]byte, error) {
	if c.cfg.ServiceAccountB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(c.cfg.ServiceAccountB64)
		if err != nil {
			return nil, fmt.Errorf("sheets: decode service account b64: %w", err)
		}
		return raw, nil
	}
	if c.cfg.ServiceAccountRaw != "" {
		return []byte(c.cfg.ServiceAccountRaw), nil
	}
	return nil, fmt.Errorf("sheets: missing service account credential")
}

func (c *Client) ensureService(ctx context.Context) (*sheets.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.service != nil {
		return c.service, nil
	}
	if c.initErr != nil {
		return nil, c.initErr
	}

	raw, err := c.credentialJSON()
	if err != nil {
		c.initErr = err
		return nil, err
	}

	jwtCfg, err := google.JWTConfigFromJSON(raw, sheets.SpreadsheetsScope)
	if err != nil {
		c.initErr = fmt.Errorf("sheets: parse service account: %w", err)
		return nil, c.initErr
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		c.initErr = fmt.Errorf("sheets: build service: %w", err)
		return nil, c.initErr
	}

	c.service = svc
	return svc, nil
}

// AppendBatch authenticates (if not already cached) and issues one batch
// append of items to <SheetName>!A:E. Transport/auth errors are returned
// to the caller (the queue worker), which owns retry/backoff.
func (c *Client) AppendBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if c.cfg.SheetID == "" {
		return fmt.Errorf("sheets: missing SHEET_ID")
	}
	sheetName := c.cfg.SheetName
	if sheetName == "" {
		sheetName = "events"
	}

	svc, err := c.ensureService(ctx)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{it.ID, it.PayloadStr, it.ReceivedAt, "render", ""})
	}

	rangeSpec := fmt.Sprintf("%s!A:E", sheetName)
	_, err = svc.Spreadsheets.Values.Append(c.cfg.SheetID, rangeSpec, &sheets.ValueRange{
		Values: rows,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: append failed: %w", err)
	}
	return nil
}

// Ready reports whether the client has the configuration needed to
// attempt a call, without performing any network I/O.
func (c *Client) Ready() (bool, string) {
	if c.cfg.SheetID == "" {
		return false, "missing_SHEET_ID"
	}
	if strings.TrimSpace(c.cfg.ServiceAccountB64) == "" && strings.TrimSpace(c.cfg.ServiceAccountRaw) == "" {
		return false, "missing_GOOGLE_SERVICE_ACCOUNT_JSON"
	}
	return true, ""
}
