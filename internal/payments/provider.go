package payments

import "iftar-reg/internal/models"

// Provider describes how an attendee pays the entry fee and what proof of
// payment the form collects.
type Provider interface {
	Name() string
	Method() models.PaymentMethod

	// Text telling the attendee where to send the fee
	Instructions(fee int, payee string) string

	// Checks the proof fields are present. Formats are not enforced.
	CheckProof(senderNo, trxID string) error
}
