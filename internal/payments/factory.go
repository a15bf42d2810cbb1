package payments

import (
	"fmt"

	"iftar-reg/internal/models"
	"iftar-reg/internal/payments/mobile"
)

func NewProvider(method models.PaymentMethod) (Provider, error) {
	switch method {
	case models.PaymentBkash:
		return mobile.New(method, "bKash", "*247#"), nil
	case models.PaymentRocket:
		return mobile.New(method, "Rocket", "*322#"), nil
	default:
		return nil, fmt.Errorf("unknown payment method: %s", method)
	}
}

// All returns a provider for every supported method, in display order.
func All() []Provider {
	out := []Provider{}
	for _, m := range []models.PaymentMethod{models.PaymentBkash, models.PaymentRocket} {
		p, _ := NewProvider(m)
		out = append(out, p)
	}
	return out
}
