package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

const DefaultSheet = "Registrations"

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
	sheet         string
}

// New opens the spreadsheet with a service account key file. Extra client
// options are appended after the credentials; an empty key path skips the
// credentials so callers can supply their own.
func New(ctx context.Context, serviceAccountJSONPath, spreadsheetID, sheet string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is empty")
	}
	var all []option.ClientOption
	if serviceAccountJSONPath != "" {
		if _, err := os.Stat(serviceAccountJSONPath); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		all = append(all,
			option.WithCredentialsFile(serviceAccountJSONPath),
			option.WithScopes(sheetsv4.SpreadsheetsScope),
		)
	}
	all = append(all, opts...)

	srv, err := sheetsv4.NewService(ctx, all...)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }
func (c *Client) Sheet() string         { return c.sheet }
