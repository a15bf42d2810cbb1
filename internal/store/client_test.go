package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"iftar-reg/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() models.RegistrationRecord {
	return models.RegistrationRecord{
		Name:          "A Student",
		StudentID:     "231002099",
		Phone:         "01712345678",
		Batch:         "231",
		Dept:          "CSE",
		Section:       "A",
		PaymentMethod: models.PaymentBkash,
		SenderNo:      "01712345678",
		TrxID:         "TX123",
	}
}

func newClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := New(url, append([]Option{WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	for _, ep := range []string{"", "not a url", "/relative/path"} {
		if _, err := New(ep); err == nil {
			t.Errorf("expected error for endpoint %q", ep)
		}
	}
}

func TestCreateRegistrationSendsFlatJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	if err := c.CreateRegistration(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}

	for _, key := range []string{"name", "studentId", "email", "phone", "batch", "dept", "paymentMethod", "senderNo", "trxId"} {
		if _, ok := got[key]; !ok {
			t.Errorf("expected key %q in body", key)
		}
	}
	if got["studentId"] != "231002099" {
		t.Errorf("expected studentId 231002099, got %v", got["studentId"])
	}
	if got["paymentMethod"] != "bkash" {
		t.Errorf("expected paymentMethod bkash, got %v", got["paymentMethod"])
	}
}

func TestCreateRegistrationConfirmedFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		err := newClient(t, srv.URL).CreateRegistration(context.Background(), sampleRecord())
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
			t.Fatalf("expected StatusError 502, got %v", err)
		}
	})

	t.Run("status with message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":"error","message":"student already registered"}`))
		}))
		defer srv.Close()

		err := newClient(t, srv.URL).CreateRegistration(context.Background(), sampleRecord())
		var se *StatusError
		var be *BackendError
		if !errors.As(err, &se) || !errors.As(err, &be) {
			t.Fatalf("expected StatusError and BackendError, got %v", err)
		}
		if be.Message != "student already registered" {
			t.Errorf("unexpected message %q", be.Message)
		}
	})

	t.Run("error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"error","message":"sheet missing"}`))
		}))
		defer srv.Close()

		err := newClient(t, srv.URL).CreateRegistration(context.Background(), sampleRecord())
		var be *BackendError
		if !errors.As(err, &be) || be.Message != "sheet missing" {
			t.Fatalf("expected BackendError, got %v", err)
		}
	})
}

func TestCreateRegistrationOptimistic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"ignored"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, WithConfirmWrites(false))
	if err := c.CreateRegistration(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("expected optimistic success, got %v", err)
	}
}

func TestCreateRegistrationTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newClient(t, url, WithConfirmWrites(false))
	if err := c.CreateRegistration(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected transport error with server down")
	}
}

func TestCreateRegistrationTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(t, srv.URL, WithTimeout(50*time.Millisecond))
	start := time.Now()
	if err := c.CreateRegistration(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not enforced")
	}
}

func TestListRegistrations(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("t")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"A Student","studentId":"231002099","batch":"231","dept":"CSE"},
			{"name":"B Student","studentId":231002100,"batch":231,"dept":"EEE"}
		]`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL+"/exec")
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	list, err := c.ListRegistrations(context.Background())
	if err != nil {
		t.Fatalf("ListRegistrations: %v", err)
	}
	if query != "1700000000000" {
		t.Errorf("expected cache-busting t=1700000000000, got %q", query)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 registrants, got %d", len(list))
	}
	if list[1].StudentID != "231002100" || list[1].Batch != "231" {
		t.Errorf("numeric cells not normalized: %+v", list[1])
	}
}

func TestListRegistrationsFailures(t *testing.T) {
	t.Run("html", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body>Script function not found: doGet</body></html>`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).ListRegistrations(context.Background())
		if !errors.Is(err, ErrHTMLResponse) {
			t.Fatalf("expected ErrHTMLResponse, got %v", err)
		}
	})

	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).ListRegistrations(context.Background())
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected StatusError 503, got %v", err)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"Sheet not found"}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).ListRegistrations(context.Background())
		var be *BackendError
		if !errors.As(err, &be) || be.Message != "Sheet not found" {
			t.Fatalf("expected BackendError, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"name":`))
		}))
		defer srv.Close()

		if _, err := newClient(t, srv.URL).ListRegistrations(context.Background()); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestListRegistrationsObjectWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	list, err := newClient(t, srv.URL).ListRegistrations(context.Background())
	if err != nil {
		t.Fatalf("ListRegistrations: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}

func TestTimeoutDoesNotTouchCallerClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	for name, opts := range map[string][]Option{
		"client then timeout": {WithHTTPClient(shared), WithTimeout(2 * time.Second)},
		"timeout then client": {WithTimeout(2 * time.Second), WithHTTPClient(shared)},
	} {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, "https://example.org/exec", opts...)
			if c.http == shared {
				t.Fatal("expected a copy of the caller's client")
			}
			if c.http.Timeout != 2*time.Second {
				t.Errorf("expected 2s timeout, got %v", c.http.Timeout)
			}
			if shared.Timeout != time.Minute {
				t.Errorf("caller's client was modified: %v", shared.Timeout)
			}
		})
	}
}

func TestHTTPClientWithoutTimeoutIsUsedAsIs(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := newClient(t, "https://example.org/exec", WithHTTPClient(shared))
	if c.http != shared {
		t.Fatal("expected the caller's client")
	}
}

func TestNilHTTPClientIgnored(t *testing.T) {
	c := newClient(t, "https://example.org/exec", WithHTTPClient(nil))
	if c.http == nil || c.http.Timeout != DefaultTimeout {
		t.Fatalf("expected default client, got %+v", c.http)
	}
}

func TestListRegistrationsFalsyError(t *testing.T) {
	for _, body := range []string{`{"error":false}`, `{"error":0}`, `{"error":""}`, `{"error":null}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			list, err := newClient(t, srv.URL).ListRegistrations(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(list) != 0 {
				t.Fatalf("expected empty list, got %v", list)
			}
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":true}`))
	}))
	defer srv.Close()
	_, err := newClient(t, srv.URL).ListRegistrations(context.Background())
	var be *BackendError
	if !errors.As(err, &be) || be.Message != "true" {
		t.Fatalf("expected BackendError for truthy value, got %v", err)
	}
}
