package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"iftar-reg/internal/models"
	"iftar-reg/internal/validation"
)

type fakeStore struct {
	calls []models.RegistrationRecord
	err   error
	block bool
}

func (f *fakeStore) CreateRegistration(ctx context.Context, rec models.RegistrationRecord) error {
	f.calls = append(f.calls, rec)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func newSession(store Submitter, opts ...Option) *Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, append([]Option{WithLogger(logger)}, opts...)...)
}

func fill(t *testing.T, s *Session, values map[Field]string) {
	t.Helper()
	for f, v := range values {
		if err := s.Set(f, v); err != nil {
			t.Fatalf("Set(%s): %v", f, err)
		}
	}
}

func validStep1() map[Field]string {
	return map[Field]string{
		FieldName:      "A Student",
		FieldStudentID: "231002099",
		FieldPhone:     "01712345678",
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := newSession(&fakeStore{})
	if s.State() != Step1Editing {
		t.Fatalf("expected Step1Editing, got %s", s.State())
	}
	d := s.Draft()
	if d.Batch != "231" || d.Dept != "CSE" || d.Section != "A" || d.PaymentMethod != models.PaymentBkash {
		t.Errorf("unexpected defaults: %+v", d)
	}
	if s.ID() == "" {
		t.Error("expected session id")
	}
}

func TestAdvanceRequiresFields(t *testing.T) {
	cases := []struct {
		name   string
		values map[Field]string
		want   map[Field]string
	}{
		{
			name:   "all missing",
			values: map[Field]string{},
			want: map[Field]string{
				FieldName:      validation.MsgRequired,
				FieldStudentID: validation.MsgRequired,
				FieldPhone:     validation.MsgRequired,
			},
		},
		{
			name:   "missing name with bad id",
			values: map[Field]string{FieldStudentID: "12345678", FieldPhone: "01712345678"},
			want: map[Field]string{
				FieldName:      validation.MsgRequired,
				FieldStudentID: validation.MsgInvalidID,
			},
		},
		{
			name:   "missing phone",
			values: map[Field]string{FieldName: "A", FieldStudentID: "231002004"},
			want:   map[Field]string{FieldPhone: validation.MsgRequired},
		},
		{
			name:   "bad phone",
			values: map[Field]string{FieldName: "A", FieldStudentID: "231002004", FieldPhone: "12345"},
			want:   map[Field]string{FieldPhone: validation.MsgInvalidPhone},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(&fakeStore{})
			fill(t, s, tc.values)
			if err := s.Advance(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if s.State() != Step1Editing {
				t.Fatalf("expected to stay in Step1Editing, got %s", s.State())
			}
			got := s.Errors()
			if len(got) != len(tc.want) {
				t.Fatalf("expected errors %v, got %v", tc.want, got)
			}
			for f, m := range tc.want {
				if got[f] != m {
					t.Errorf("field %s: expected %q, got %q", f, m, got[f])
				}
			}
		})
	}
}

func TestAdvanceWarningsDoNotBlock(t *testing.T) {
	s := newSession(&fakeStore{})
	fill(t, s, validStep1())
	fill(t, s, map[Field]string{FieldBatch: "Other", FieldDept: "EEE"})

	if err := s.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.State() != Step2Editing {
		t.Fatalf("expected Step2Editing, got %s", s.State())
	}
	w := s.Warnings()
	if w[FieldBatch] != validation.MsgBatchWarning || w[FieldDept] != validation.MsgDeptWarning {
		t.Errorf("unexpected warnings: %v", w)
	}
	if len(s.Errors()) != 0 {
		t.Errorf("expected no errors, got %v", s.Errors())
	}
}

func TestEditClearsFieldMessage(t *testing.T) {
	s := newSession(&fakeStore{})
	_ = s.Advance()
	if s.Message(FieldName) == "" {
		t.Fatal("expected a name error")
	}
	if err := s.Set(FieldName, "x"); err != nil {
		t.Fatal(err)
	}
	if m := s.Message(FieldName); m != "" {
		t.Errorf("expected name message cleared, got %q", m)
	}
	if s.Message(FieldPhone) == "" {
		t.Error("phone error should survive editing another field")
	}
	// cleared locally, not re-validated
	if err := s.Set(FieldStudentID, "1"); err != nil {
		t.Fatal(err)
	}
	if m := s.Message(FieldStudentID); m != "" {
		t.Errorf("expected no re-validation on edit, got %q", m)
	}
}

func TestSubmitDisabledWithoutProof(t *testing.T) {
	store := &fakeStore{}
	s := newSession(store)
	fill(t, s, validStep1())
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}

	for _, vals := range []map[Field]string{
		{},
		{FieldSenderNo: "01712345678"},
		{FieldSenderNo: "", FieldTrxID: "TX1"},
	} {
		fill(t, s, vals)
		if s.CanSubmit() {
			t.Fatalf("CanSubmit true with %v", s.Draft())
		}
		if err := s.Submit(context.Background()); !errors.Is(err, ErrSubmitDisabled) {
			t.Fatalf("expected ErrSubmitDisabled, got %v", err)
		}
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected no network calls, got %d", len(store.calls))
	}
	if s.State() != Step2Editing {
		t.Errorf("expected Step2Editing, got %s", s.State())
	}
}

func TestSubmitBeforeAdvance(t *testing.T) {
	store := &fakeStore{}
	s := newSession(store)
	fill(t, s, validStep1())
	fill(t, s, map[Field]string{FieldSenderNo: "017", FieldTrxID: "TX"})
	if err := s.Submit(context.Background()); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Fatal("no call expected")
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	store := &fakeStore{err: errors.New("dial tcp: no such host")}
	s := newSession(store)
	fill(t, s, validStep1())
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	fill(t, s, map[Field]string{FieldPaymentMethod: "rocket", FieldSenderNo: "01812345678", FieldTrxID: "TX9"})
	before := s.Draft()

	err := s.Submit(context.Background())
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
	if s.State() != Failure {
		t.Fatalf("expected Failure, got %s", s.State())
	}
	if s.Draft() != before {
		t.Errorf("draft changed: %+v vs %+v", s.Draft(), before)
	}
	if s.LastError() == nil {
		t.Error("expected LastError to be set")
	}

	// retry succeeds
	store.err = nil
	if !s.CanSubmit() {
		t.Fatal("expected retry to be allowed")
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.State() != Success {
		t.Fatalf("expected Success, got %s", s.State())
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(store.calls))
	}
}

func TestSubmitTimesOut(t *testing.T) {
	store := &fakeStore{block: true}
	s := newSession(store, WithTimeout(20*time.Millisecond))
	fill(t, s, validStep1())
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	fill(t, s, map[Field]string{FieldSenderNo: "01712345678", FieldTrxID: "TX"})

	err := s.Submit(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if s.State() != Failure {
		t.Fatalf("expected Failure, got %s", s.State())
	}
}

func TestEndToEndSubmit(t *testing.T) {
	store := &fakeStore{}
	s := newSession(store)
	fill(t, s, map[Field]string{
		FieldName:      "A Student",
		FieldStudentID: "231002099",
		FieldPhone:     "01712345678",
		FieldBatch:     "231",
		FieldDept:      "CSE",
		FieldSection:   "A",
	})
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	fill(t, s, map[Field]string{
		FieldPaymentMethod: "bkash",
		FieldSenderNo:      "01712345678",
		FieldTrxID:         "TX123",
	})
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State() != Success {
		t.Fatalf("expected Success, got %s", s.State())
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(store.calls))
	}
	want := models.RegistrationRecord{
		Name: "A Student", StudentID: "231002099", Phone: "01712345678",
		Batch: "231", Dept: "CSE", Section: "A", PaymentMethod: models.PaymentBkash,
		SenderNo: "01712345678", TrxID: "TX123",
	}
	if store.calls[0] != want {
		t.Errorf("unexpected record: %+v", store.calls[0])
	}

	// terminal until reset
	if err := s.Set(FieldName, "B"); !errors.Is(err, ErrWrongState) {
		t.Errorf("expected ErrWrongState after success, got %v", err)
	}
	s.Reset()
	if s.State() != Step1Editing || s.Draft().Name != "" {
		t.Errorf("reset did not clear session: %s %+v", s.State(), s.Draft())
	}
}

func TestBackKeepsDraft(t *testing.T) {
	s := newSession(&fakeStore{})
	fill(t, s, validStep1())
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	if err := s.Back(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Step1Editing || s.Draft().Name != "A Student" {
		t.Errorf("unexpected state after back: %s %+v", s.State(), s.Draft())
	}
}

func TestSetRejectsUnknownPaymentMethod(t *testing.T) {
	s := newSession(&fakeStore{})
	if err := s.Set(FieldPaymentMethod, "nagad"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestStep1FieldsLockedAfterAdvance(t *testing.T) {
	store := &fakeStore{}
	s := newSession(store)
	fill(t, s, validStep1())
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}

	for f, v := range map[Field]string{FieldStudentID: "123", FieldPhone: "12345", FieldName: "", FieldBatch: "Other"} {
		if err := s.Set(f, v); !errors.Is(err, ErrWrongState) {
			t.Errorf("Set(%s) in step 2: expected ErrWrongState, got %v", f, err)
		}
	}
	fill(t, s, map[Field]string{FieldSenderNo: "01812345678", FieldTrxID: "TX1"})
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := store.calls[0]; got.StudentID != "231002099" || got.Phone != "01712345678" || got.Batch != "231" {
		t.Errorf("step 1 fields changed after Advance: %+v", got)
	}
}

func TestStep1FieldsLockedAfterFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("offline")}
	s := newSession(store)
	fill(t, s, validStep1())
	_ = s.Advance()
	fill(t, s, map[Field]string{FieldSenderNo: "01812345678", FieldTrxID: "TX1"})
	_ = s.Submit(context.Background())
	if s.State() != Failure {
		t.Fatalf("expected Failure, got %s", s.State())
	}

	if err := s.Set(FieldStudentID, "123"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if s.State() != Failure {
		t.Errorf("rejected edit changed state to %s", s.State())
	}

	// going back puts the edit through Advance again
	if err := s.Back(); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(FieldStudentID, "123"); err != nil {
		t.Fatal(err)
	}
	if s.CanSubmit() {
		t.Fatal("submit allowed before step 1 is re-validated")
	}
	if err := s.Advance(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(store.calls) != 1 {
		t.Errorf("expected only the first submit to reach the store, got %d", len(store.calls))
	}
}
