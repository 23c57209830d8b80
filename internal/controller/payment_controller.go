package controller

import (
	"errors"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxWebhookBytes bounds the webhook body; Stripe events are well below it.
const maxWebhookBytes = 64 << 10

// checkoutFormSlack covers the card fields and multipart framing around the proof.
const checkoutFormSlack = 1 << 20

type PaymentController struct {
	PaymentService *service.PaymentService
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{PaymentService: paymentService}
}

// @Summary Manual checkout
// @Description Bank transfer or PromptPay with a slip image, or a mock credit card that is paid at once
// @Tags payments
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Param method formData string true "Payment method" Enums(transfer, promptpay, credit_card)
// @Param proof formData file false "Payment slip (jpeg/png/webp)"
// @Param cardholder formData string false "Card holder"
// @Param card_number formData string false "Card number"
// @Param expiration formData string false "MM/YY"
// @Param cvv formData string false "CVV"
// @Success 201 {object} util.Response{data=model.Payment}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "Already paid"
// @Router /courses/{id}/checkout [post]
func (c *PaymentController) Checkout(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	limit := c.PaymentService.Cfg.ProofMaxBytes + checkoutFormSlack
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	if err := ctx.Request.ParseMultipartForm(limit); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.Error(ctx, http.StatusRequestEntityTooLarge, "payment proof is too large")
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}

	in := service.CheckoutInput{
		Method:     model.PaymentMethod(ctx.PostForm("method")),
		CardHolder: ctx.PostForm("cardholder"),
		CardNumber: ctx.PostForm("card_number"),
		Expiration: ctx.PostForm("expiration"),
		CVV:        ctx.PostForm("cvv"),
	}
	proof, err := ctx.FormFile("proof")
	switch {
	case err == nil:
		in.Proof = proof
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		util.BadRequest(ctx, err.Error())
		return
	}

	payment, err := c.PaymentService.Checkout(ctx.Request.Context(), actor, courseID, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, payment)
}

// @Summary Start hosted card checkout
// @Description Creates a pending payment and a Stripe Checkout session; redirect the browser to url
// @Tags payments
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 201 {object} util.Response{data=service.CheckoutSessionResult}
// @Failure 502 {object} util.Response "Gateway unavailable"
// @Router /courses/{id}/checkout/session [post]
func (c *PaymentController) CreateSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	res, err := c.PaymentService.CreateCheckoutSession(ctx.Request.Context(), actor, claims.Email, courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// @Summary Stripe webhook
// @Description Signature-verified gateway callback; unknown events are acknowledged
// @Tags payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response "Bad signature"
// @Router /payments/webhook/stripe [post]
func (c *PaymentController) Webhook(ctx *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBytes))
	if err != nil {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if err := c.PaymentService.HandleWebhook(ctx.Request.Context(), payload, ctx.GetHeader("Stripe-Signature")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"received": true})
}

// @Summary My payments
// @Tags payments
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /payments [get]
func (c *PaymentController) ListMine(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	page, limit := pageParams(ctx)
	payments, total, err := c.PaymentService.ListMine(ctx.Request.Context(), actor, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: payments, Total: total, Page: page, Limit: limit})
}

// @Summary Payment status
// @Description Re-checks a pending hosted checkout with the gateway before answering
// @Tags payments
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Payment ID"
// @Success 200 {object} util.Response{data=model.Payment}
// @Router /payments/{id} [get]
func (c *PaymentController) Get(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	payment, err := c.PaymentService.Verify(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, payment)
}

// @Summary All payments
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Filter" Enums(pending, paid, failed)
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /admin/payments [get]
func (c *PaymentController) ListAll(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	page, limit := pageParams(ctx)
	payments, total, err := c.PaymentService.ListAll(ctx.Request.Context(), actor, ctx.Query("status"), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: payments, Total: total, Page: page, Limit: limit})
}

// @Summary Confirm a slip payment
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Payment ID"
// @Success 200 {object} util.Response{data=model.Payment}
// @Failure 409 {object} util.Response "Payment already failed"
// @Router /admin/payments/{id}/confirm [post]
func (c *PaymentController) Confirm(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	payment, err := c.PaymentService.Confirm(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, payment)
}
