package repository

import (
	"github.com/deepakgsrn/saas/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{
		db: db,
	}
}

// Upsert inserts the invoice or refreshes the mutable fields of an
// existing row with the same Stripe invoice id.
func (r *InvoiceRepository) Upsert(invoice *models.Invoice) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount_due", "currency", "status", "hosted_invoice_url", "updated_at"}),
	}).Create(invoice).Error
}

func (r *InvoiceRepository) GetByUserID(userID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&invoices).Error
	return invoices, err
}
