package model

import "time"

type PaymentMethod string

const (
	MethodTransfer   PaymentMethod = "transfer"
	MethodCreditCard PaymentMethod = "credit_card"
	MethodPromptPay  PaymentMethod = "promptpay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodTransfer, MethodCreditCard, MethodPromptPay:
		return true
	}
	return false
}

// RequiresProof reports whether the method is settled out of band and needs an uploaded slip.
func (m PaymentMethod) RequiresProof() bool {
	return m == MethodTransfer || m == MethodPromptPay
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// swagger:model Payment
type Payment struct {
	BaseModel
	StudentID              uint          `gorm:"not null;index" json:"studentId"`
	Student                *User         `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"student,omitempty"`
	CourseID               uint          `gorm:"not null;index" json:"courseId"`
	Course                 *Course       `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
	Amount                 float64       `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency               string        `gorm:"size:3;default:'thb'" json:"currency"`
	Method                 PaymentMethod `gorm:"size:20;not null;default:'transfer'" json:"method"`
	Status                 PaymentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ProofURL               string        `gorm:"size:500" json:"proofUrl"`
	ProofKey               string        `gorm:"size:255" json:"-"`
	GatewaySessionID       *string       `gorm:"size:255;uniqueIndex" json:"gatewaySessionId,omitempty"`
	GatewayPaymentIntentID string        `gorm:"size:255" json:"-"`
	PaidAt                 *time.Time    `json:"paidAt"`
	FailedAt               *time.Time    `json:"failedAt"`
	FailureReason          string        `gorm:"size:255" json:"failureReason,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentPaid
}
