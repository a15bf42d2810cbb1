package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"iftar-reg/internal/models"
	"iftar-reg/internal/util"
)

type Config struct {
	TelegramToken string

	StoreURL           string
	StoreConfirmWrites bool
	StoreTimeout       time.Duration
	FeedPollInterval   time.Duration

	SpreadsheetID            string
	GoogleServiceAccountJSON string
	SheetName                string
	RejectDuplicates         bool

	AdminTGIDs map[int64]bool

	HTTPAddr        string
	BasePublicURL   string
	ExportSecret    string
	CORSAllowOrigin string

	LogLevel slog.Level

	Event models.EventInfo
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	c.StoreURL = strings.TrimSpace(os.Getenv("STORE_URL"))
	c.StoreConfirmWrites = true
	if v := strings.TrimSpace(os.Getenv("STORE_CONFIRM_WRITES")); v != "" {
		c.StoreConfirmWrites = util.ParseBool(v)
	}

	var err error
	if c.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 15*time.Second); err != nil {
		return c, err
	}
	if c.FeedPollInterval, err = durationEnv("FEED_POLL_INTERVAL", 30*time.Second); err != nil {
		return c, err
	}

	c.SpreadsheetID = strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	c.GoogleServiceAccountJSON = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	c.SheetName = strings.TrimSpace(os.Getenv("SHEET_NAME"))
	if c.SheetName == "" {
		c.SheetName = "Registrations"
	}
	c.RejectDuplicates = util.ParseBool(os.Getenv("REJECT_DUPLICATES"))

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_PUBLIC_URL")), "/")
	c.ExportSecret = strings.TrimSpace(os.Getenv("EXPORT_SECRET"))
	c.CORSAllowOrigin = strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGIN"))

	c.LogLevel = parseLevel(os.Getenv("LOG_LEVEL"))
	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))

	c.Event = models.EventInfo{
		Title:       envOr("EVENT_TITLE", "Iftar Mahfil 2026"),
		Date:        envOr("EVENT_DATE", "February 25, 2026"),
		Time:        envOr("EVENT_TIME", "5:00 PM"),
		Venue:       envOr("EVENT_VENUE", "Central Field, Green University of Bangladesh"),
		PayeeNumber: envOr("PAYEE_NUMBER", "01875412504"),
		Fee:         300,
	}
	if v := strings.TrimSpace(os.Getenv("EVENT_FEE")); v != "" {
		fee, err := strconv.Atoi(v)
		if err != nil || fee < 0 {
			return c, fmt.Errorf("EVENT_FEE is not a valid amount: %q", v)
		}
		c.Event.Fee = fee
	}

	return c, nil
}

// RequireBot checks the settings the Telegram front-end needs.
func (c Config) RequireBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is empty")
	}
	return nil
}

// RequireStore checks the settings the spreadsheet endpoint needs.
func (c Config) RequireStore() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID is empty")
	}
	if c.GoogleServiceAccountJSON == "" {
		return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s is not a valid duration: %q", key, v)
	}
	return d, nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
