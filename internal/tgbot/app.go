package tgbot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"iftar-reg/internal/config"
	"iftar-reg/internal/feed"
	"iftar-reg/internal/server"
	"iftar-reg/internal/validation"
	"iftar-reg/internal/workflow"
)

const pageSize = 10

// sender is the part of the Bot API the app talks to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type App struct {
	cfg      config.Config
	bot      *tgbotapi.BotAPI
	out      sender
	store    workflow.Submitter
	feed     *feed.Feed
	validate *validator.Validate
	logger   *slog.Logger

	// one open registration form per user; only touched from the update loop
	state map[int64]*userState
}

type userState struct {
	Session *workflow.Session
	// field the next text message fills
	Field workflow.Field
	// walking the fields in order on first entry
	Linear bool
}

func New(cfg config.Config, store workflow.Submitter, fd *feed.Feed, logger *slog.Logger) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := newApp(cfg, b, store, fd, logger)
	a.bot = b
	return a, nil
}

func newApp(cfg config.Config, out sender, store workflow.Submitter, fd *feed.Feed, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		out:      out,
		store:    store,
		feed:     fd,
		validate: validation.New(),
		logger:   logger,
		state:    map[int64]*userState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			a.handleUpdate(ctx, upd)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		if err := a.handleMessage(ctx, upd.Message); err != nil {
			a.logger.Error("handle message", "tg_id", upd.Message.From.ID, "err", err)
		}
	} else if upd.CallbackQuery != nil && upd.CallbackQuery.From != nil {
		if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
			a.logger.Error("handle callback", "tg_id", upd.CallbackQuery.From.ID, "data", upd.CallbackQuery.Data, "err", err)
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.out.Send(msg)
	return err
}

func (a *App) send(chatID int64, text string, rows ...[]tgbotapi.InlineKeyboardButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err := a.out.Send(msg)
	return err
}

func (a *App) isAdmin(tgID int64) bool {
	return a.cfg.AdminTGIDs[tgID]
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	tgID := m.From.ID
	txt := strings.TrimSpace(m.Text)

	switch {
	case strings.HasPrefix(txt, "/start"):
		delete(a.state, tgID)
		return a.showStart(tgID)
	case strings.HasPrefix(txt, "/register"):
		return a.startRegistration(tgID)
	case strings.HasPrefix(txt, "/cancel"):
		return a.cancelRegistration(tgID)
	case strings.HasPrefix(txt, "/registrants"):
		return a.showRegistrants(ctx, tgID, 0)
	case strings.HasPrefix(txt, "/admin"):
		if !a.isAdmin(tgID) {
			return a.SendText(tgID, "Access denied.")
		}
		return a.showAdminMenu(tgID)
	}

	if st := a.state[tgID]; st != nil && st.Field != "" {
		return a.handleFieldInput(ctx, tgID, st, txt)
	}
	return a.showStart(tgID)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.out.Request(cb)

	if strings.HasPrefix(data, "u:") {
		return a.handleUserCallback(ctx, tgID, data)
	}
	if strings.HasPrefix(data, "a:") {
		if !a.isAdmin(tgID) {
			return a.SendText(tgID, "Access denied.")
		}
		return a.handleAdminCallback(ctx, tgID, data)
	}
	return nil
}

func (a *App) handleUserCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "u:register":
		return a.startRegistration(tgID)
	case "u:cancel":
		return a.cancelRegistration(tgID)
	case "u:next":
		return a.tryAdvance(tgID)
	case "u:back":
		return a.backToStep1(tgID)
	case "u:submit":
		return a.submit(ctx, tgID)
	case "u:done":
		delete(a.state, tgID)
		return a.showStart(tgID)
	case "u:retry_list":
		_ = a.feed.Refresh(ctx)
		return a.showRegistrants(ctx, tgID, 0)
	case "u:list:all":
		return a.showRegistrants(ctx, tgID, -1)
	}

	if strings.HasPrefix(data, "u:list:") {
		n, err := strconv.Atoi(strings.TrimPrefix(data, "u:list:"))
		if err != nil {
			return nil
		}
		return a.showRegistrants(ctx, tgID, n)
	}

	if strings.HasPrefix(data, "u:set:") {
		// u:set:<field>:<value>
		parts := strings.SplitN(strings.TrimPrefix(data, "u:set:"), ":", 2)
		if len(parts) != 2 {
			return nil
		}
		st := a.state[tgID]
		if st == nil {
			return a.SendText(tgID, "Registration is not open. Press /register")
		}
		f := workflow.Field(parts[0])
		if reopenStep1(st, f) {
			st.Linear = false
		}
		return a.applyField(ctx, tgID, st, f, parts[1])
	}

	if strings.HasPrefix(data, "u:edit:") {
		st := a.state[tgID]
		if st == nil {
			return a.SendText(tgID, "Registration is not open. Press /register")
		}
		st.Field = workflow.Field(strings.TrimPrefix(data, "u:edit:"))
		st.Linear = false
		reopenStep1(st, st.Field)
		return a.prompt(tgID, st)
	}

	return nil
}

func (a *App) handleAdminCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "a:menu":
		return a.showAdminMenu(tgID)
	case "a:export":
		if a.cfg.ExportSecret == "" {
			return a.SendText(tgID, "CSV export is not configured (EXPORT_SECRET is empty).")
		}
		base := a.cfg.BasePublicURL
		if base == "" {
			base = "http://localhost" + a.cfg.HTTPAddr
		}
		return a.SendText(tgID, "📤 CSV export (link): "+server.ExportURL(base, a.cfg.ExportSecret))
	case "a:refresh":
		if err := a.feed.Refresh(ctx); err != nil {
			return a.SendText(tgID, "Refresh failed: "+err.Error())
		}
		return a.SendText(tgID, fmt.Sprintf("✅ Registrant list refreshed: %d entries.", len(a.feed.Snapshot().Registrants)))
	}
	return nil
}

// ---------- Screens / Menus ----------

func (a *App) showStart(tgID int64) error {
	ev := a.cfg.Event
	text := fmt.Sprintf("🌙 %s\n📅 %s, %s\n📍 %s\n💳 Entry fee: %d BDT",
		ev.Title, ev.Date, ev.Time, ev.Venue, ev.Fee,
	)
	return a.send(tgID, text,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Register", "u:register"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Who's joining", "u:list:0"),
		),
	)
}

func (a *App) showAdminMenu(tgID int64) error {
	return a.send(tgID, "🛠 Admin panel",
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📤 Export CSV", "a:export"),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh list", "a:refresh"),
		),
	)
}

// showRegistrants renders page n of the feed; n < 0 shows everything.
func (a *App) showRegistrants(ctx context.Context, tgID int64, n int) error {
	snap := a.feed.Snapshot()
	if !snap.Loaded && snap.Err == nil {
		// poller has not finished its first fetch yet
		_ = a.feed.Refresh(ctx)
		snap = a.feed.Snapshot()
	}

	retry := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", "u:retry_list"),
	)
	if snap.Err != nil && len(snap.Registrants) == 0 {
		return a.send(tgID, "Unable to load registered users.", retry)
	}
	if len(snap.Registrants) == 0 {
		return a.SendText(tgID, "No one has registered yet. Be the first!")
	}

	size := pageSize
	if n < 0 {
		n, size = 0, 0
	}
	page, pages := feed.Paginate(snap.Registrants, n, size)
	if page == nil {
		n = 0
		page, pages = feed.Paginate(snap.Registrants, 0, size)
	}

	b := strings.Builder{}
	fmt.Fprintf(&b, "👥 Who's joining (%d)\n", len(snap.Registrants))
	offset := n * size
	for i, r := range page {
		fmt.Fprintf(&b, "\n%d. %s", offset+i+1, summaryLine(r))
	}
	if pages > 1 {
		fmt.Fprintf(&b, "\n\nPage %d of %d", n+1, pages)
	}
	if snap.Err != nil {
		b.WriteString("\n\n⚠️ Could not refresh, showing the last loaded list.")
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	nav := []tgbotapi.InlineKeyboardButton{}
	if n > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", "u:list:"+strconv.Itoa(n-1)))
	}
	if n+1 < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", "u:list:"+strconv.Itoa(n+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	if pages > 1 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Show all", "u:list:all"),
		))
	}
	if snap.Err != nil {
		rows = append(rows, retry)
	}
	return a.send(tgID, b.String(), rows...)
}
