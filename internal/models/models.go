package models

// PaymentMethod is the mobile wallet the attendee paid the entry fee with.
type PaymentMethod string

const (
	PaymentBkash  PaymentMethod = "bkash"
	PaymentRocket PaymentMethod = "rocket"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentBkash || m == PaymentRocket
}

// Values the registration is aimed at. Anything else only produces a warning.
const (
	ExpectedBatch  = "231"
	ExpectedDept   = "CSE"
	DefaultSection = "A"
)

var (
	Batches  = []string{"231", "Other"}
	Depts    = []string{"CSE", "EEE", "BBA"}
	Sections = []string{"A", "B", "C"}
)

// RegistrationRecord is one attendee row as sent to the store.
type RegistrationRecord struct {
	Name          string        `json:"name" validate:"required"`
	StudentID     string        `json:"studentId" validate:"required,studentid"`
	Email         string        `json:"email" validate:"omitempty,email"`
	Phone         string        `json:"phone" validate:"required,bdphone"`
	Batch         string        `json:"batch" validate:"required"`
	Dept          string        `json:"dept" validate:"required"`
	Section       string        `json:"section"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=bkash rocket"`
	SenderNo      string        `json:"senderNo" validate:"required"`
	TrxID         string        `json:"trxId" validate:"required"`
}

// RegistrantSummary is the public projection returned by the list call.
type RegistrantSummary struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	Batch     string `json:"batch"`
	Dept      string `json:"dept"`
}

func (r RegistrationRecord) Summary() RegistrantSummary {
	return RegistrantSummary{
		Name:      r.Name,
		StudentID: r.StudentID,
		Batch:     r.Batch,
		Dept:      r.Dept,
	}
}

type EventInfo struct {
	Title       string
	Date        string
	Time        string
	Venue       string
	Fee         int
	PayeeNumber string
}
