package service

import (
	"context"
	"encoding/json"
	"fmt"
	"intellearn_backend/internal/util"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Webhook event types acted upon.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionExpired        = "checkout.session.expired"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

type CheckoutSessionRequest struct {
	PaymentID     uint
	AmountMinor   int64
	Currency      string
	ProductName   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type GatewaySession struct {
	ID              string
	URL             string
	Paid            bool
	PaymentIntentID string
	// PaymentID comes from the session metadata; 0 when absent or malformed.
	PaymentID uint
}

type GatewayEvent struct {
	ID      string
	Type    string
	Session *GatewaySession
}

// Gateway is a hosted card checkout provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*GatewaySession, error)
	GetCheckoutSession(ctx context.Context, id string) (*GatewaySession, error)
	// ParseWebhook verifies the signature before decoding. A bad signature
	// returns util.ErrInvalidSignature.
	ParseWebhook(payload []byte, signature string) (*GatewayEvent, error)
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*GatewaySession, error) {
	paymentID := strconv.FormatUint(uint64(req.PaymentID), 10)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(req.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(paymentID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("payment_id", paymentID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return toGatewaySession(sess), nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*GatewaySession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toGatewaySession(sess), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidSignature, err)
	}

	out := &GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && event.Data.Object["object"] == "checkout.session" {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = toGatewaySession(&sess)
	}
	return out, nil
}

func toGatewaySession(sess *stripe.CheckoutSession) *GatewaySession {
	gs := &GatewaySession{
		ID:   sess.ID,
		URL:  sess.URL,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.PaymentIntent != nil {
		gs.PaymentIntentID = sess.PaymentIntent.ID
	}
	if raw, ok := sess.Metadata["payment_id"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			gs.PaymentID = uint(id)
		}
	}
	return gs
}
