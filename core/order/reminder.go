package order

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReminderAfter is how long an order stays pending before its buyer is
// reminded.
const ReminderAfter = 24 * time.Hour

type Reminder interface {
	PaymentReminder(ctx context.Context, to, title string, amount decimal.Decimal) error
}

type ReminderResult struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ReminderReport struct {
	Processed int              `json:"processed"`
	Results   []ReminderResult `json:"results"`
}

// SendReminders reminds every buyer of a due order once. A failed email
// leaves sent_at unset so the next run retries it.
//
// Checkout no longer writes pending rows, so only rows left over from the
// earlier checkout flow can be due. On a database without them every run
// reports zero processed.
func SendReminders(ctx context.Context, db *sqlx.DB, rem Reminder, log logrus.FieldLogger, now time.Time) (ReminderReport, error) {
	due, err := ListDue(ctx, db, now.Add(-ReminderAfter))
	if err != nil {
		return ReminderReport{}, err
	}

	rep := ReminderReport{Processed: len(due), Results: make([]ReminderResult, 0, len(due))}
	for _, d := range due {
		res := ReminderResult{OrderID: d.ID}

		err := rem.PaymentReminder(ctx, d.Email, d.Title, d.Amount)
		if err == nil {
			err = MarkSent(ctx, db, d.ID, now)
		}

		if err != nil {
			log.WithField("order_id", d.ID).WithError(err).Warn("payment reminder failed")
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		rep.Results = append(rep.Results, res)
	}

	log.WithField("processed", rep.Processed).Info("payment reminders done")
	return rep, nil
}

func (r ReminderReport) String() string {
	ok := 0
	for _, res := range r.Results {
		if res.Success {
			ok++
		}
	}
	return fmt.Sprintf("%d processed, %d sent, %d failed", r.Processed, ok, r.Processed-ok)
}
