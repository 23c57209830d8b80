package repository

import (
	"context"
	"intellearn_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	DB *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{DB: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Delete(&model.Payment{}, id).Error
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint) (*model.Payment, error) {
	var p model.Payment
	err := r.DB.WithContext(ctx).Preload("Course").First(&p, id).Error
	return &p, err
}

func (r *PaymentRepository) SetGatewaySession(ctx context.Context, id uint, sessionID string) error {
	return r.DB.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		UpdateColumn("gateway_session_id", sessionID).Error
}

// MarkPaid moves a pending payment to paid. It returns false when the row was
// not pending, so callers can tell a concurrent transition from success.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id uint, paymentIntentID string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":  model.PaymentPaid,
		"paid_at": at,
	}
	if paymentIntentID != "" {
		updates["gateway_payment_intent_id"] = paymentIntentID
	}
	res := r.DB.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentPending).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// MarkFailed moves a pending payment to failed; see MarkPaid for the return value.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":         model.PaymentFailed,
			"failed_at":      at,
			"failure_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

// HasPaid reports whether the student holds a paid payment for the course.
func (r *PaymentRepository) HasPaid(ctx context.Context, studentID, courseID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Payment{}).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, model.PaymentPaid).
		Count(&n).Error
	return n > 0, err
}

type PaymentFilter struct {
	StudentID uint
	Status    model.PaymentStatus
	Page      int
	Limit     int
}

func (r *PaymentRepository) List(ctx context.Context, f PaymentFilter) ([]model.Payment, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.Payment{})
	if f.StudentID != 0 {
		db = db.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []model.Payment
	err := db.Preload("Course").Preload("Student").
		Order("created_at DESC").Order("id DESC").
		Scopes(Paginate(f.Page, f.Limit)).
		Find(&payments).Error
	return payments, total, err
}

// StalePending lists pending payments created before cutoff that have neither
// a gateway session nor an uploaded proof. Payments with a proof wait for staff.
func (r *PaymentRepository) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.DB.WithContext(ctx).
		Where("status = ? AND created_at < ? AND gateway_session_id IS NULL", model.PaymentPending, cutoff).
		Where("(proof_key = '' OR proof_key IS NULL)").
		Order("id").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	var p model.Payment
	err := r.DB.WithContext(ctx).Where("gateway_session_id = ?", sessionID).First(&p).Error
	return &p, err
}
