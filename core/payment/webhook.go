package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/core/order"
	"github.com/otbox/storefront/core/product"
	"github.com/otbox/storefront/database"
	"github.com/otbox/storefront/metrics"
	"github.com/otbox/storefront/validate"
	"github.com/otbox/storefront/yookassa"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Result is how a webhook delivery was settled. Every result is answered
// with 200 so the gateway stops retrying.
type Result string

const (
	ResultFulfilled       Result = "fulfilled"
	ResultDuplicate       Result = "duplicate"
	ResultIgnored         Result = "ignored"
	ResultCanceled        Result = "canceled"
	ResultMissingMetadata Result = "missing_metadata"
	ResultUnknownProducts Result = "unknown_products"
)

type Signer interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type Notifier interface {
	Downloads(ctx context.Context, to, paymentID string, amount decimal.Decimal, links []notify.Link) error
	AdminAlert(ctx context.Context, title string, fields []notify.Field, errs []string) error
}

type Webhook struct {
	db     *sqlx.DB
	gw     Gateway
	signer Signer
	notify Notifier
	ttl    time.Duration
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewWebhook(db *sqlx.DB, gw Gateway, signer Signer, n Notifier, ttl time.Duration, log logrus.FieldLogger) *Webhook {
	return &Webhook{
		db:     db,
		gw:     gw,
		signer: signer,
		notify: n,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

type webhookResponse struct {
	Result Result `json:"result"`
}

func HandleWebhook(wh *Webhook) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var evt yookassa.Event
		if err := web.DecodeLoose(w, r, &evt); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode event: %w", err))
		}

		id := strings.TrimSpace(evt.Object.ID)
		if id == "" {
			return weberr.BadRequest(errors.New("event has no payment id"))
		}

		res, err := wh.Process(ctx, id, evt.Object.Status)
		if err != nil {
			fields := weberr.WithFields(map[string]any{"payment_id": id, "event": evt.Event})
			switch {
			case errors.Is(err, yookassa.ErrUnavailable):
				return weberr.BadGateway(err, fields)
			case errors.Is(err, yookassa.ErrNotFound), errors.Is(err, yookassa.ErrUnauthorized), errors.As(err, new(*yookassa.RequestError)):
				return weberr.NotAuthorized(err, fields)
			default:
				return weberr.InternalError(err, fields)
			}
		}

		metrics.WebhookResults.WithLabelValues(string(res)).Inc()
		return web.Respond(ctx, w, webhookResponse{Result: res}, http.StatusOK)
	}
}

// Process acts on the gateway's own view of the payment, never on the claimed
// status. An error means nothing was committed and the delivery should be
// retried.
func (wh *Webhook) Process(ctx context.Context, paymentID string, claimed yookassa.Status) (Result, error) {
	p, err := wh.gw.GetPayment(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("verifying payment: %w", err)
	}

	log := wh.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"status":     p.Status,
	})
	if claimed != "" && claimed != p.Status {
		log.WithField("claimed", claimed).Warn("event status differs from the gateway")
	}

	switch p.Status {
	case yookassa.Canceled:
		return wh.cancel(ctx, p, log)
	case yookassa.Succeeded:
		return wh.fulfill(ctx, p, log)
	default:
		log.Info("ignoring payment in intermediate state")
		return ResultIgnored, nil
	}
}

func (wh *Webhook) cancel(ctx context.Context, p yookassa.Payment, log logrus.FieldLogger) (Result, error) {
	n, err := order.CancelPending(ctx, wh.db, p.ID, wh.now().UTC())
	if err != nil {
		return "", err
	}
	log.WithField("orders", n).Info("payment canceled")

	fields := []notify.Field{
		{Name: "Платёж", Value: p.ID},
		{Name: "Сумма", Value: notify.Rub(p.Amount.Value)},
		{Name: "Отменено заказов", Value: fmt.Sprint(n)},
	}
	if email := p.Metadata[metaEmail]; email != "" {
		fields = append(fields, notify.Field{Name: "Покупатель", Value: email})
	}
	if d := p.CancellationDetails; d != nil {
		fields = append(fields, notify.Field{Name: "Причина", Value: d.Party + ": " + d.Reason})
	}

	wh.alert(ctx, log, "Платёж отменён", fields, nil)
	return ResultCanceled, nil
}

func (wh *Webhook) fulfill(ctx context.Context, p yookassa.Payment, log logrus.FieldLogger) (Result, error) {
	done, err := order.HasSucceeded(ctx, wh.db, p.ID)
	if err != nil {
		return "", err
	}
	if done {
		log.Info("payment already fulfilled")
		return ResultDuplicate, nil
	}

	meta, err := ParseMetadata(p.Metadata)
	if err != nil {
		log.WithError(err).Error("paid payment without usable metadata")
		wh.alert(ctx, log, "Оплата без данных заказа", []notify.Field{
			{Name: "Платёж", Value: p.ID},
			{Name: "Сумма", Value: notify.Rub(p.Amount.Value)},
		}, []string{err.Error()})
		return ResultMissingMetadata, nil
	}
	log = log.WithField("email", notify.MaskEmail(meta.Email))

	ps, err := product.FetchBySKUs(ctx, wh.db, meta.SKUs)
	if err != nil {
		return "", err
	}

	var errs []string
	if len(ps) < len(meta.SKUs) {
		errs = append(errs, fmt.Sprintf("товары не найдены: %s", strings.Join(missing(meta.SKUs, ps), ", ")))
	}

	if len(ps) == 0 {
		log.WithField("skus", meta.SKUs).Error("paid payment for unknown products")
		wh.alert(ctx, log, "Оплата неизвестных товаров", []notify.Field{
			{Name: "Платёж", Value: p.ID},
			{Name: "Покупатель", Value: meta.Email},
			{Name: "Сумма", Value: notify.Rub(p.Amount.Value)},
		}, errs)
		return ResultUnknownProducts, nil
	}

	now := wh.now().UTC()
	ords := make([]order.Order, 0, len(ps))
	links := make([]notify.Link, 0, len(ps))
	for _, pr := range ps {
		o := order.Order{
			ID:        validate.GenerateID(),
			Email:     meta.Email,
			ProductID: pr.ID,
			SKU:       pr.SKU,
			PaymentID: p.ID,
			Status:    order.Succeeded,
			Amount:    pr.Price,
			CreatedAt: now,
			UpdatedAt: now,
		}

		u, err := wh.signer.SignURL(ctx, pr.FilePath, wh.ttl)
		if err != nil {
			log.WithField("sku", pr.SKU).WithError(err).Error("signing download url")
			errs = append(errs, fmt.Sprintf("%s: ссылка не создана: %v", pr.SKU, err))
		} else {
			o.DownloadURL = &u
			links = append(links, notify.Link{Name: pr.Title, URL: u})
		}

		ords = append(ords, o)
	}

	err = database.Transaction(ctx, wh.db, func(tx sqlx.ExtContext) error {
		for _, o := range ords {
			if err := order.Create(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, database.ErrDuplicate) {
		log.Info("concurrent delivery fulfilled the payment first")
		return ResultDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("storing orders: %w", err)
	}
	metrics.OrdersFulfilled.Add(float64(len(ords)))
	log.WithField("orders", len(ords)).Info("payment fulfilled")

	if len(links) == 0 {
		errs = append(errs, "письмо покупателю не отправлено: нет ни одной ссылки")
	} else if err := wh.notify.Downloads(ctx, meta.Email, p.ID, p.Amount.Value, links); err != nil {
		errs = append(errs, fmt.Sprintf("письмо покупателю не отправлено: %v", err))
	} else if err := order.MarkPaymentSent(ctx, wh.db, p.ID, wh.now().UTC()); err != nil {
		log.WithError(err).Error("stamping sent_at")
		errs = append(errs, err.Error())
	}

	wh.alert(ctx, log, "Новый заказ", []notify.Field{
		{Name: "Платёж", Value: p.ID},
		{Name: "Покупатель", Value: meta.Email},
		{Name: "Товары", Value: strings.Join(product.Titles(ps), ", ")},
		{Name: "Ссылки", Value: fmt.Sprintf("%d из %d", len(links), len(ps))},
		{Name: "Сумма", Value: notify.Rub(p.Amount.Value)},
	}, errs)

	return ResultFulfilled, nil
}

// alert never fails the delivery.
func (wh *Webhook) alert(ctx context.Context, log logrus.FieldLogger, title string, fields []notify.Field, errs []string) {
	if err := wh.notify.AdminAlert(ctx, title, fields, errs); err != nil {
		log.WithError(err).Error("admin alert not sent")
	}
}

func missing(skus []string, ps []product.Product) []string {
	found := make(map[string]bool, len(ps))
	for _, p := range ps {
		found[p.SKU] = true
	}

	var out []string
	for _, s := range skus {
		if !found[s] {
			out = append(out, s)
		}
	}
	return out
}
