package mobile

import (
	"errors"
	"fmt"
	"strings"

	"iftar-reg/internal/models"
)

// Mobile wallet providers (bKash, Rocket):
// - the attendee sends money to the payee number from their own wallet
// - the form collects the sender number and the transaction id as proof

var ErrMissingProof = errors.New("sender number and transaction id are required")

type Provider struct {
	method  models.PaymentMethod
	display string
	ussd    string
}

func New(method models.PaymentMethod, display, ussd string) *Provider {
	return &Provider{method: method, display: display, ussd: ussd}
}

func (p *Provider) Name() string                 { return p.display }
func (p *Provider) Method() models.PaymentMethod { return p.method }

func (p *Provider) Instructions(fee int, payee string) string {
	return fmt.Sprintf(
		"Send %d BDT with %s \"Send Money\" to %s (app or dial %s), then enter the number you paid from and the transaction ID.",
		fee, p.display, payee, p.ussd,
	)
}

func (p *Provider) CheckProof(senderNo, trxID string) error {
	if strings.TrimSpace(senderNo) == "" || strings.TrimSpace(trxID) == "" {
		return ErrMissingProof
	}
	return nil
}
