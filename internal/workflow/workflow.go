// Package workflow is the two-step registration form: identity and contact
// details first, payment proof second, then a single submit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"iftar-reg/internal/models"
	"iftar-reg/internal/validation"
)

type State int

const (
	Step1Editing State = iota
	Step1Valid
	Step2Editing
	Submitting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Step1Editing:
		return "step1_editing"
	case Step1Valid:
		return "step1_valid"
	case Step2Editing:
		return "step2_editing"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Field names match the JSON keys of models.RegistrationRecord.
type Field string

const (
	FieldName          Field = "name"
	FieldStudentID     Field = "studentId"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldBatch         Field = "batch"
	FieldDept          Field = "dept"
	FieldSection       Field = "section"
	FieldPaymentMethod Field = "paymentMethod"
	FieldSenderNo      Field = "senderNo"
	FieldTrxID         Field = "trxId"
)

// Step1Fields is the order fields are presented and re-prompted in.
var Step1Fields = []Field{FieldName, FieldStudentID, FieldPhone, FieldBatch, FieldDept, FieldSection}

// IsStep1Field reports whether f belongs to the first step of the form.
func IsStep1Field(f Field) bool {
	if f == FieldEmail {
		return true
	}
	for _, x := range Step1Fields {
		if x == f {
			return true
		}
	}
	return false
}

var (
	ErrSubmitDisabled = errors.New("workflow: sender number and transaction id are required")
	ErrWrongState     = errors.New("workflow: action not allowed in current state")
	ErrUnknownField   = errors.New("workflow: unknown field")
	ErrValidation     = errors.New("workflow: step 1 has errors")
	ErrSubmitFailed   = errors.New("workflow: submission failed")
)

// Submitter is the write half of the store.
type Submitter interface {
	CreateRegistration(ctx context.Context, rec models.RegistrationRecord) error
}

const DefaultSubmitTimeout = 15 * time.Second

// Session owns one draft for the lifetime of an open form. It is not safe
// for concurrent use.
type Session struct {
	id       string
	store    Submitter
	validate *validator.Validate
	timeout  time.Duration
	logger   *slog.Logger

	state    State
	draft    models.RegistrationRecord
	errs     map[Field]string
	warnings map[Field]string
	lastErr  error
}

type Option func(*Session)

func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithValidator(v *validator.Validate) Option {
	return func(s *Session) {
		if v != nil {
			s.validate = v
		}
	}
}

func New(store Submitter, opts ...Option) *Session {
	s := &Session{
		store:   store,
		timeout: DefaultSubmitTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.validate == nil {
		s.validate = validation.New()
	}
	s.Reset()
	return s
}

func DefaultDraft() models.RegistrationRecord {
	return models.RegistrationRecord{
		Batch:         models.ExpectedBatch,
		Dept:          models.ExpectedDept,
		Section:       models.DefaultSection,
		PaymentMethod: models.PaymentBkash,
	}
}

// Reset discards the draft and starts over, as when the form is closed and
// opened again.
func (s *Session) Reset() {
	s.id = uuid.NewString()
	s.state = Step1Editing
	s.draft = DefaultDraft()
	s.errs = map[Field]string{}
	s.warnings = map[Field]string{}
	s.lastErr = nil
}

func (s *Session) ID() string                       { return s.id }
func (s *Session) State() State                     { return s.state }
func (s *Session) Draft() models.RegistrationRecord { return s.draft }

// LastError is the reason the latest submit failed, if it did.
func (s *Session) LastError() error { return s.lastErr }

func (s *Session) Errors() map[Field]string   { return copyMessages(s.errs) }
func (s *Session) Warnings() map[Field]string { return copyMessages(s.warnings) }

// Message returns the error for f, falling back to its warning.
func (s *Session) Message(f Field) string {
	if m, ok := s.errs[f]; ok {
		return m
	}
	return s.warnings[f]
}

// Set writes one draft field and drops any message attached to it. Editing
// after a failed submit returns the session to step 2. Step 1 fields are
// only writable in Step1Editing so that nothing skips Advance.
func (s *Session) Set(f Field, value string) error {
	switch s.state {
	case Step1Editing, Step2Editing, Failure:
	default:
		return ErrWrongState
	}
	if IsStep1Field(f) && s.state != Step1Editing {
		return ErrWrongState
	}
	if s.state == Failure {
		s.state = Step2Editing
	}
	switch f {
	case FieldName:
		s.draft.Name = value
	case FieldStudentID:
		s.draft.StudentID = value
	case FieldEmail:
		s.draft.Email = value
	case FieldPhone:
		s.draft.Phone = value
	case FieldBatch:
		s.draft.Batch = value
	case FieldDept:
		s.draft.Dept = value
	case FieldSection:
		s.draft.Section = value
	case FieldPaymentMethod:
		m := models.PaymentMethod(value)
		if !m.Valid() {
			return fmt.Errorf("%w: payment method %q", ErrUnknownField, value)
		}
		s.draft.PaymentMethod = m
	case FieldSenderNo:
		s.draft.SenderNo = value
	case FieldTrxID:
		s.draft.TrxID = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	delete(s.errs, f)
	delete(s.warnings, f)
	return nil
}

// Advance validates step 1. Required and format errors block; batch and
// department mismatches only warn.
func (s *Session) Advance() error {
	if s.state != Step1Editing {
		return ErrWrongState
	}
	errs, warnings := s.checkStep1()
	s.errs = errs
	s.warnings = warnings
	if len(errs) > 0 {
		return ErrValidation
	}
	s.state = Step1Valid
	s.logger.Debug("step 1 valid", "session", s.id, "warnings", len(warnings))
	s.state = Step2Editing
	return nil
}

func (s *Session) checkStep1() (map[Field]string, map[Field]string) {
	errs := map[Field]string{}
	err := s.validate.StructPartial(s.draft, "Name", "StudentID", "Phone")
	msgs, err := validation.FieldMessages(err)
	if err != nil {
		// only reachable on a programming error in the struct tags
		s.logger.Error("step 1 validation", "session", s.id, "err", err)
		errs[FieldName] = validation.MsgInvalidValue
	}
	for k, m := range msgs {
		errs[Field(k)] = m
	}

	warnings := map[Field]string{}
	if s.draft.Batch != models.ExpectedBatch {
		warnings[FieldBatch] = validation.MsgBatchWarning
	}
	if s.draft.Dept != models.ExpectedDept {
		warnings[FieldDept] = validation.MsgDeptWarning
	}
	return errs, warnings
}

// Back returns from step 2 to step 1 keeping the draft.
func (s *Session) Back() error {
	if s.state != Step2Editing && s.state != Failure {
		return ErrWrongState
	}
	s.state = Step1Editing
	return nil
}

// CanSubmit reports whether Submit would reach the store.
func (s *Session) CanSubmit() bool {
	if s.state != Step2Editing && s.state != Failure {
		return false
	}
	return s.draft.SenderNo != "" && s.draft.TrxID != ""
}

// Submit sends the draft once. When CanSubmit is false it does nothing and
// returns ErrSubmitDisabled. On failure the draft is kept for a retry.
func (s *Session) Submit(ctx context.Context) error {
	if !s.CanSubmit() {
		if s.state != Step2Editing && s.state != Failure {
			return ErrWrongState
		}
		return ErrSubmitDisabled
	}
	s.state = Submitting
	s.lastErr = nil

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.CreateRegistration(ctx, s.draft); err != nil {
		s.state = Failure
		s.lastErr = err
		s.logger.Warn("registration submit failed", "session", s.id, "student_id", s.draft.StudentID, "err", err)
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	s.state = Success
	s.logger.Info("registration submitted", "session", s.id, "student_id", s.draft.StudentID)
	return nil
}

func copyMessages(m map[Field]string) map[Field]string {
	out := make(map[Field]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
