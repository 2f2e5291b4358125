package yookassa

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Pending           Status = "pending"
	WaitingForCapture Status = "waiting_for_capture"
	Succeeded         Status = "succeeded"
	Canceled          Status = "canceled"
)

const CurrencyRUB = "RUB"

type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// MarshalJSON renders the value with exactly two decimals as the API requires.
func (a Amount) MarshalJSON() ([]byte, error) {
	type wire struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}
	return json.Marshal(wire{Value: a.Value.StringFixed(2), Currency: a.Currency})
}

func RUB(v decimal.Decimal) Amount {
	return Amount{Value: v, Currency: CurrencyRUB}
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type Customer struct {
	Email string `json:"email,omitempty"`
}

type ReceiptItem struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	Amount         Amount `json:"amount"`
	VATCode        int    `json:"vat_code"`
	PaymentMode    string `json:"payment_mode"`
	PaymentSubject string `json:"payment_subject"`
}

// Receipt is the fiscal receipt attached to a payment under 54-FZ.
type Receipt struct {
	Customer Customer      `json:"customer"`
	Items    []ReceiptItem `json:"items"`
}

type PaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Receipt      *Receipt          `json:"receipt,omitempty"`
}

type CancellationDetails struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

type Payment struct {
	ID                  string               `json:"id"`
	Status              Status               `json:"status"`
	Paid                bool                 `json:"paid"`
	Amount              Amount               `json:"amount"`
	Confirmation        *Confirmation        `json:"confirmation,omitempty"`
	Description         string               `json:"description,omitempty"`
	Metadata            map[string]string    `json:"metadata,omitempty"`
	CancellationDetails *CancellationDetails `json:"cancellation_details,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	Test                bool                 `json:"test"`
}

// ConfirmationURL is the hosted checkout page, empty once the payment left pending.
func (p Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// Event is the body of a webhook notification. Only Object.ID is trusted;
// the claimed status is kept for logging.
type Event struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status Status `json:"status"`
	} `json:"object"`
}

type apiError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}
