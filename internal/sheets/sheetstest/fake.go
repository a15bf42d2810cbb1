// Package sheetstest serves an in-memory stand-in for the Sheets values API
// so the sheets client can be exercised without Google.
package sheetstest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"iftar-reg/internal/sheets"
)

type Server struct {
	*httptest.Server

	mu   sync.Mutex
	rows [][]interface{}
	fail bool
}

// NewServer starts a fake holding the given rows (header included).
func NewServer(rows ...[]interface{}) *Server {
	s := &Server{rows: rows}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Client returns a sheets client bound to the fake.
func (s *Server) Client(t testing.TB) *sheets.Client {
	t.Helper()
	c, err := sheets.New(context.Background(), "", "test-spreadsheet", sheets.DefaultSheet,
		option.WithEndpoint(s.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(s.Server.Client()),
	)
	if err != nil {
		t.Fatalf("sheets client: %v", err)
	}
	return c
}

func (s *Server) Rows() [][]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]interface{}, len(s.rows))
	copy(out, s.rows)
	return out
}

// SetFail makes every request answer 500.
func (s *Server) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend unavailable"}}`))
		return
	}
	if !strings.Contains(r.URL.Path, "/v4/spreadsheets/") {
		http.NotFound(w, r)
		return
	}

	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(valueRange{MajorDimension: "ROWS", Values: s.rows})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr valueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, `{"error":{"code":400}}`, http.StatusBadRequest)
			return
		}
		s.rows = append(s.rows, vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr valueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, `{"error":{"code":400}}`, http.StatusBadRequest)
			return
		}
		if len(s.rows) == 0 {
			s.rows = append(s.rows, vr.Values...)
		} else if len(vr.Values) > 0 {
			s.rows[0] = vr.Values[0]
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
