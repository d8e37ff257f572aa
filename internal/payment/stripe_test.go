package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
)

func useStripeServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	prev := stripe.GetBackend(stripe.APIBackend)
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}))
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, prev) })
}

func TestStripeGateway_RetrieveSession(t *testing.T) {
	created := time.Date(2026, 3, 1, 11, 50, 0, 0, time.UTC)
	var gotPath, gotQuery, gotAuth string
	useStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAuth = r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": "paid",
			"amount_total": 1999,
			"currency": "usd",
			"created": ` + strconv.FormatInt(created.Unix(), 10) + `,
			"customer_details": {"email": "buyer@example.com"},
			"metadata": {"freeForecastId": "f1", "name": "Ada"},
			"line_items": {"object": "list", "data": [{"id": "li_1", "object": "item", "price": {"id": "price_annual", "object": "price"}}]}
		}`))
	})

	gw := NewStripeGateway("sk_test_dummy", true)
	s, err := gw.RetrieveSession(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("RetrieveSession: %v", err)
	}
	if gotPath != "/v1/checkout/sessions/cs_test_1" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "line_items") {
		t.Fatalf("line items should be expanded, query=%q", gotQuery)
	}
	if gotAuth != "Bearer sk_test_dummy" {
		t.Fatalf("unexpected auth %q", gotAuth)
	}
	if s.PaymentStatus != "paid" || s.AmountTotal != 1999 || s.Currency != "usd" {
		t.Fatalf("unexpected session %+v", s)
	}
	if !s.Created.Equal(created) || s.Email != "buyer@example.com" || s.Metadata["name"] != "Ada" {
		t.Fatalf("unexpected session %+v", s)
	}
	if len(s.PriceIDs) != 1 || s.PriceIDs[0] != "price_annual" {
		t.Fatalf("unexpected price ids %v", s.PriceIDs)
	}
}

func TestStripeGateway_ErrorStatus(t *testing.T) {
	useStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "No such checkout.session"}}`))
	})

	gw := NewStripeGateway("sk_test_dummy", false)
	if _, err := gw.RetrieveSession(context.Background(), "cs_missing"); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}
