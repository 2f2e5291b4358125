package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Pending   Status = "pending"
	Succeeded Status = "succeeded"
	Canceled  Status = "canceled"
)

// Order is one purchased product. Every product bought with one payment gets
// its own row carrying the same payment id.
type Order struct {
	ID          string          `json:"id" db:"order_id"`
	Email       string          `json:"email" db:"email"`
	ProductID   string          `json:"productId" db:"product_id"`
	SKU         string          `json:"sku" db:"sku"`
	PaymentID   string          `json:"paymentId" db:"payment_id"`
	Status      Status          `json:"paymentStatus" db:"payment_status"`
	Amount      decimal.Decimal `json:"paymentAmount" db:"payment_amount"`
	DownloadURL *string         `json:"downloadUrl" db:"download_url"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
	SentAt      *time.Time      `json:"sentAt" db:"sent_at"`
}

type Download struct {
	URL  string `json:"url" db:"download_url"`
	Name string `json:"name" db:"title"`
}

// Due is a pending order waiting for a payment reminder.
type Due struct {
	Order
	Title string `db:"title"`
}

type Stats struct {
	Pending   int             `json:"pending" db:"pending"`
	Succeeded int             `json:"succeeded" db:"succeeded"`
	Canceled  int             `json:"canceled" db:"canceled"`
	Revenue   decimal.Decimal `json:"revenue" db:"revenue"`
}

type MessageNew struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

type TestEmail struct {
	To string `json:"to" validate:"required,email,max=255"`
}
