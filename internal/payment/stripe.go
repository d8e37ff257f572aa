package payment

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeGateway retrieves Checkout Sessions through stripe-go.
type StripeGateway struct {
	expandLineItems bool
}

// NewStripeGateway sets the package-level Stripe key. Line items are
// expanded only when a price id must be checked.
func NewStripeGateway(secretKey string, expandLineItems bool) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{expandLineItems: expandLineItems}
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if g.expandLineItems {
		params.AddExpand("line_items")
	}
	cs, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, err
	}

	out := &Session{
		ID:            cs.ID,
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Created:       time.Unix(cs.Created, 0).UTC(),
		Metadata:      cs.Metadata,
	}
	if cs.CustomerDetails != nil {
		out.Email = cs.CustomerDetails.Email
	}
	if out.Email == "" {
		out.Email = cs.CustomerEmail
	}
	if cs.LineItems != nil {
		for _, li := range cs.LineItems.Data {
			if li != nil && li.Price != nil {
				out.PriceIDs = append(out.PriceIDs, li.Price.ID)
			}
		}
	}
	return out, nil
}
