package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"iftar-reg/internal/models"
	"iftar-reg/internal/payments"
	"iftar-reg/internal/workflow"
)

// Text prompts for free-form fields.
var prompts = map[workflow.Field]string{
	workflow.FieldName:      "Enter your full name:",
	workflow.FieldStudentID: "Enter your 9-digit student ID:",
	workflow.FieldPhone:     "Enter your phone number (01XXXXXXXXX):",
	workflow.FieldSenderNo:  "Enter the number you paid from:",
	workflow.FieldTrxID:     "Enter the transaction ID (TrxID):",
}

// Fixed-choice fields are answered with buttons.
var choices = map[workflow.Field][]string{
	workflow.FieldBatch:   models.Batches,
	workflow.FieldDept:    models.Depts,
	workflow.FieldSection: models.Sections,
}

var step2Fields = []workflow.Field{workflow.FieldPaymentMethod, workflow.FieldSenderNo, workflow.FieldTrxID}

func (a *App) newSession() *workflow.Session {
	return workflow.New(a.store,
		workflow.WithTimeout(a.cfg.StoreTimeout),
		workflow.WithLogger(a.logger),
		workflow.WithValidator(a.validate),
	)
}

func (a *App) startRegistration(tgID int64) error {
	st := &userState{Session: a.newSession(), Field: workflow.Step1Fields[0], Linear: true}
	a.state[tgID] = st
	if err := a.SendText(tgID, "📝 Registration, step 1 of 2. Send /cancel at any time to stop."); err != nil {
		return err
	}
	return a.prompt(tgID, st)
}

// cancelRegistration closes the form. The draft is dropped; a submit that
// is already on its way is not recalled.
func (a *App) cancelRegistration(tgID int64) error {
	if _, ok := a.state[tgID]; !ok {
		return a.showStart(tgID)
	}
	delete(a.state, tgID)
	return a.SendText(tgID, "Registration cancelled. Press /register to start again.")
}

func (a *App) prompt(tgID int64, st *userState) error {
	f := st.Field
	if msg := st.Session.Message(f); msg != "" {
		if err := a.SendText(tgID, "⚠️ "+msg); err != nil {
			return err
		}
	}
	if p, ok := prompts[f]; ok {
		return a.SendText(tgID, p)
	}
	if opts, ok := choices[f]; ok {
		row := []tgbotapi.InlineKeyboardButton{}
		for _, o := range opts {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(o, "u:set:"+string(f)+":"+o))
		}
		return a.send(tgID, "Choose your "+string(f)+":", row)
	}
	if f == workflow.FieldPaymentMethod {
		row := []tgbotapi.InlineKeyboardButton{}
		for _, p := range payments.All() {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(p.Name(), "u:set:"+string(f)+":"+string(p.Method())))
		}
		text := fmt.Sprintf("💳 Step 2 of 2. Entry fee: %d BDT. Choose a payment method:", a.cfg.Event.Fee)
		return a.send(tgID, text, row)
	}
	return fmt.Errorf("no prompt for field %q", f)
}

func (a *App) handleFieldInput(ctx context.Context, tgID int64, st *userState, txt string) error {
	if _, ok := prompts[st.Field]; !ok {
		// buttons expected; show them again
		return a.prompt(tgID, st)
	}
	return a.applyField(ctx, tgID, st, st.Field, txt)
}

func (a *App) applyField(ctx context.Context, tgID int64, st *userState, f workflow.Field, value string) error {
	s := st.Session
	if err := s.Set(f, value); err != nil {
		if errors.Is(err, workflow.ErrWrongState) {
			return a.SendText(tgID, "This form is already closed. Press /register to start a new one.")
		}
		return a.SendText(tgID, "That value is not accepted, please choose again.")
	}

	if f == workflow.FieldPaymentMethod {
		p, err := payments.NewProvider(s.Draft().PaymentMethod)
		if err != nil {
			return err
		}
		if err := a.SendText(tgID, p.Instructions(a.cfg.Event.Fee, a.cfg.Event.PayeeNumber)); err != nil {
			return err
		}
	}

	switch s.State() {
	case workflow.Step1Editing:
		if st.Linear {
			if next, ok := after(workflow.Step1Fields, f); ok {
				st.Field = next
				return a.prompt(tgID, st)
			}
		}
		return a.tryAdvance(tgID)
	default:
		if st.Linear {
			if next, ok := after(step2Fields, f); ok {
				st.Field = next
				return a.prompt(tgID, st)
			}
		}
		st.Field = ""
		return a.showConfirm(tgID, st)
	}
}

// tryAdvance moves to step 2 or re-asks the first field that failed.
func (a *App) tryAdvance(tgID int64) error {
	st := a.state[tgID]
	if st == nil {
		return a.SendText(tgID, "Registration is not open. Press /register")
	}
	s := st.Session
	if err := s.Advance(); err != nil {
		if !errors.Is(err, workflow.ErrValidation) {
			return a.SendText(tgID, "Step 1 is already complete.")
		}
		errs := s.Errors()
		for _, f := range workflow.Step1Fields {
			if _, bad := errs[f]; bad {
				st.Field = f
				st.Linear = false
				return a.prompt(tgID, st)
			}
		}
		return nil
	}

	warnings := s.Warnings()
	for _, f := range workflow.Step1Fields {
		if w, ok := warnings[f]; ok {
			if err := a.SendText(tgID, "ℹ️ "+w); err != nil {
				return err
			}
		}
	}
	st.Field = workflow.FieldPaymentMethod
	st.Linear = true
	return a.prompt(tgID, st)
}

func (a *App) backToStep1(tgID int64) error {
	st := a.state[tgID]
	if st == nil {
		return a.SendText(tgID, "Registration is not open. Press /register")
	}
	if err := st.Session.Back(); err != nil {
		return nil
	}
	st.Field = ""
	d := st.Session.Draft()
	text := fmt.Sprintf("Step 1 of 2\nName: %s\nStudent ID: %s\nPhone: %s\nBatch: %s\nDept: %s\nSection: %s",
		d.Name, d.StudentID, d.Phone, d.Batch, d.Dept, d.Section,
	)
	return a.send(tgID, text,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Name", "u:edit:name"),
			tgbotapi.NewInlineKeyboardButtonData("Student ID", "u:edit:studentId"),
			tgbotapi.NewInlineKeyboardButtonData("Phone", "u:edit:phone"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Batch", "u:edit:batch"),
			tgbotapi.NewInlineKeyboardButtonData("Dept", "u:edit:dept"),
			tgbotapi.NewInlineKeyboardButtonData("Section", "u:edit:section"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Next ➡️", "u:next"),
		),
	)
}

func (a *App) showConfirm(tgID int64, st *userState) error {
	d := st.Session.Draft()
	text := fmt.Sprintf("Please check your registration:\n\nName: %s\nStudent ID: %s\nPhone: %s\nBatch: %s · Dept: %s · Section: %s\nPayment: %s\nSender No: %s\nTrxID: %s",
		d.Name, d.StudentID, d.Phone, d.Batch, d.Dept, d.Section, d.PaymentMethod, d.SenderNo, d.TrxID,
	)
	if p, err := payments.NewProvider(d.PaymentMethod); err == nil {
		if err := p.CheckProof(d.SenderNo, d.TrxID); err != nil {
			text += "\n\nEnter the sender number and TrxID to enable Submit."
		}
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if st.Session.CanSubmit() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Submit", "u:submit"),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Sender No", "u:edit:senderNo"),
			tgbotapi.NewInlineKeyboardButtonData("TrxID", "u:edit:trxId"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "u:back"),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "u:cancel"),
		),
	)
	return a.send(tgID, text, rows...)
}

func (a *App) submit(ctx context.Context, tgID int64) error {
	st := a.state[tgID]
	if st == nil {
		return a.SendText(tgID, "Registration is not open. Press /register")
	}
	s := st.Session
	err := s.Submit(ctx)
	switch {
	case err == nil:
		st.Field = ""
		return a.send(tgID, "🎉 Registration complete! Your seat at the table is confirmed.",
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Return home", "u:done"),
			),
		)
	case errors.Is(err, workflow.ErrSubmitDisabled):
		return a.SendText(tgID, "Enter the sender number and transaction ID before submitting.")
	case errors.Is(err, workflow.ErrWrongState):
		return a.SendText(tgID, "This form cannot be submitted right now.")
	default:
		return a.send(tgID, "❌ Submission failed. Please check your connection and try again.",
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔁 Retry", "u:submit"),
				tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "u:back"),
			),
		)
	}
}

// reopenStep1 steps back to step 1 when a step 1 field is edited from a
// later screen, so the new value goes through Advance again.
func reopenStep1(st *userState, f workflow.Field) bool {
	if !workflow.IsStep1Field(f) || st.Session.State() == workflow.Step1Editing {
		return false
	}
	return st.Session.Back() == nil
}

func after(order []workflow.Field, f workflow.Field) (workflow.Field, bool) {
	for i, x := range order {
		if x == f && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

func summaryLine(r models.RegistrantSummary) string {
	return strings.TrimSpace(fmt.Sprintf("%s (%s, %s)", r.Name, r.Batch, r.Dept))
}
