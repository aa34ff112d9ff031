package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/supplyhub/marketplace/internal/domain/order"
	"github.com/supplyhub/marketplace/internal/domain/payment"
)

// Wire codecs built on jx. Field names follow the public API contract
// (camelCase, RFC 3339 timestamps).

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("buyerId")
	e.Str(o.BuyerID)
	e.FieldStart("supplierId")
	e.Str(o.SupplierID)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("title")
		e.Str(it.Title)
		e.FieldStart("unitPriceCents")
		e.Int64(it.UnitPriceCents)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("totalCents")
	e.Int64(o.TotalCents)
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.FieldStart("status")
	e.Str(string(o.Status))

	e.FieldStart("statusHistory")
	e.ArrStart()
	for _, h := range o.StatusHistory {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(h.Status))
		e.FieldStart("at")
		encodeTime(e, h.At)
		if h.Note != "" {
			e.FieldStart("note")
			e.Str(h.Note)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	if o.PaymentIntentRef != "" {
		e.FieldStart("paymentIntentId")
		e.Str(o.PaymentIntentRef)
	}
	if o.PaidAt != nil {
		e.FieldStart("paidAt")
		encodeTime(e, *o.PaidAt)
	}

	if o.Notes != "" {
		e.FieldStart("notes")
		e.Str(o.Notes)
	}
	if o.ExpectedDeliveryDate != nil {
		e.FieldStart("expectedDeliveryDate")
		encodeTime(e, *o.ExpectedDeliveryDate)
	}

	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeOrderList(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeIntentResult(e *jx.Encoder, res *payment.IntentResult) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(res.OrderID)
	e.FieldStart("paymentIntentId")
	e.Str(res.IntentID)
	e.FieldStart("clientSecret")
	e.Str(res.ClientSecret)
	e.ObjEnd()
}

func encodeStatusResult(e *jx.Encoder, res *payment.StatusResult) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(res.OrderID)
	e.FieldStart("paymentStatus")
	e.Str(string(res.PaymentStatus))
	e.FieldStart("paidAt")
	if res.PaidAt != nil {
		encodeTime(e, *res.PaidAt)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

func encodeStats(e *jx.Encoder, counts map[order.Status]int64) {
	var total int64
	e.ObjStart()
	e.FieldStart("byStatus")
	e.ObjStart()
	// Fixed order keeps the payload stable for clients and tests.
	for _, st := range []order.Status{
		order.StatusPending, order.StatusConfirmed, order.StatusShipped, order.StatusCancelled,
	} {
		e.FieldStart(string(st))
		e.Int64(counts[st])
		total += counts[st]
	}
	e.ObjEnd()
	e.FieldStart("total")
	e.Int64(total)
	e.ObjEnd()
}

type createOrderRequest struct {
	ProductID            string
	Quantity             int
	Notes                string
	ExpectedDeliveryDate *time.Time
}

func decodeCreateOrderRequest(body []byte) (*createOrderRequest, error) {
	var req createOrderRequest
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			req.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		case "notes":
			v, err := d.Str()
			req.Notes = v
			return err
		case "expectedDeliveryDate":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := parseDate(s)
			if err != nil {
				return err
			}
			req.ExpectedDeliveryDate = &t
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, errors.New("productId is required")
	}
	return &req, nil
}

// parseDate accepts a full timestamp or a bare calendar date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	return t, nil
}

func decodeStatusRequest(body []byte) (order.Status, error) {
	var status string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	}); err != nil {
		return "", err
	}
	if status == "" {
		return "", errors.New("status is required")
	}
	return order.Status(status), nil
}

func decodeIntentRequest(body []byte) (string, error) {
	var orderID string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "orderId" {
			return d.Skip()
		}
		v, err := d.Str()
		orderID = v
		return err
	}); err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("orderId is required")
	}
	return orderID, nil
}
