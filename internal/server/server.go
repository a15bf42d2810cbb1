package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"iftar-reg/internal/config"
	"iftar-reg/internal/models"
	"iftar-reg/internal/sheets"
	"iftar-reg/internal/util"
	"iftar-reg/internal/validation"
)

// ExportSubject is the message signed for the admin CSV link.
const ExportSubject = "export:registrants"

var ErrDuplicate = errors.New("student already registered")

// Backend is the spreadsheet the endpoint writes to.
type Backend interface {
	AppendRegistration(ctx context.Context, ts time.Time, rec models.RegistrationRecord) error
	ListRegistrants(ctx context.Context) ([]models.RegistrantSummary, error)
	ListRecords(ctx context.Context) ([]sheets.StoredRecord, error)
	HasStudentID(ctx context.Context, studentID string) (bool, error)
}

type handler struct {
	cfg      config.Config
	backend  Backend
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	// serializes the duplicate check with the append
	writeMu sync.Mutex
}

func New(cfg config.Config, backend Backend, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Handler(cfg, backend, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func Handler(cfg config.Config, backend Backend, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		cfg:      cfg,
		backend:  backend,
		validate: validation.New(),
		logger:   logger,
		now:      time.Now,
	}
	return h.routes()
}

func (h *handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if h.cfg.CORSAllowOrigin != "" {
		r.Use(cors(h.cfg.CORSAllowOrigin))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// The Apps Script deployment answers on /exec; serve both so either URL
	// shape works as STORE_URL.
	for _, p := range []string{"/", "/exec"} {
		r.Post(p, h.handleCreate)
		r.Get(p, h.handleList)
	}

	r.Get("/export/registrants.csv", h.handleExport)
	return r
}

type writeResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (h *handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec models.RegistrationRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, writeResponse{Status: "error", Message: "invalid JSON body"})
		return
	}
	trimRecord(&rec)

	msgs, err := validation.FieldMessages(h.validate.Struct(rec))
	if err != nil {
		h.logger.Error("validate registration", "err", err)
		writeJSON(w, http.StatusInternalServerError, writeResponse{Status: "error", Message: "validation failed"})
		return
	}
	if len(msgs) > 0 {
		writeJSON(w, http.StatusBadRequest, writeResponse{Status: "error", Message: summarize(msgs), Errors: msgs})
		return
	}

	if err := h.append(r.Context(), rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			writeJSON(w, http.StatusConflict, writeResponse{Status: "error", Message: err.Error()})
			return
		}
		h.logger.Error("append registration", "student_id", rec.StudentID, "err", err)
		writeJSON(w, http.StatusInternalServerError, writeResponse{Status: "error", Message: err.Error()})
		return
	}

	h.logger.Info("registration stored",
		"request_id", middleware.GetReqID(r.Context()),
		"student_id", rec.StudentID,
		"payment_method", rec.PaymentMethod,
	)
	writeJSON(w, http.StatusOK, writeResponse{Status: "success"})
}

func (h *handler) append(ctx context.Context, rec models.RegistrationRecord) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.cfg.RejectDuplicates {
		exists, err := h.backend.HasStudentID(ctx, rec.StudentID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}
	}
	return h.backend.AppendRegistration(ctx, h.now(), rec)
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.backend.ListRegistrants(r.Context())
	if err != nil {
		h.logger.Error("list registrants", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, list)
}

// CSV export (admin-only link with token = HMAC)
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ExportSecret == "" {
		http.NotFound(w, r)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}
	if !util.HMACEqual(h.cfg.ExportSecret, ExportSubject, token) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	records, err := h.backend.ListRecords(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="registrants.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "name", "student_id", "email", "phone", "batch", "dept", "section", "payment_method", "sender_no", "trx_id"})
	for _, sr := range records {
		rec := sr.Record
		_ = cw.Write([]string{
			sr.Timestamp, rec.Name, rec.StudentID, rec.Email, rec.Phone, rec.Batch,
			rec.Dept, rec.Section, string(rec.PaymentMethod), rec.SenderNo, rec.TrxID,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("write csv", "err", err)
	}
}

// ExportURL builds the signed admin export link.
func ExportURL(base, secret string) string {
	return strings.TrimRight(base, "/") + "/export/registrants.csv?token=" + util.HMACSHA256Hex(secret, ExportSubject)
}

func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func trimRecord(r *models.RegistrationRecord) {
	r.Name = strings.TrimSpace(r.Name)
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Batch = strings.TrimSpace(r.Batch)
	r.Dept = strings.TrimSpace(r.Dept)
	r.Section = strings.TrimSpace(r.Section)
	r.SenderNo = strings.TrimSpace(r.SenderNo)
	r.TrxID = strings.TrimSpace(r.TrxID)
}

func summarize(msgs map[string]string) string {
	parts := make([]string, 0, len(msgs))
	for _, f := range []string{"name", "studentId", "email", "phone", "batch", "dept", "paymentMethod", "senderNo", "trxId"} {
		if m, ok := msgs[f]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", f, m))
		}
	}
	return strings.Join(parts, "; ")
}
