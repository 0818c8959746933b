// Package domain encodes the settlement entities and their lifecycle rules
package domain

import (
	"errors"
	"time"
)

// OrderStatus tracks the buyer-visible state of an order. Orders are
// immutable after creation except for this field, and are never deleted.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

// LineItem is a single product position. Amounts are in minor currency
// units, already resolved by the checkout flow.
type LineItem struct {
	ProductID      string
	VendorID       VendorID
	Quantity       int
	UnitPriceCents int64
}

func (l LineItem) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

type Order struct {
	ID            OrderID
	BuyerID       BuyerID
	Lines         []LineItem
	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	DiscountCents int64
	TotalCents    int64
	Currency      string
	Status        OrderStatus
	CreatedAt     time.Time
	CancelledAt   *time.Time
}

// VendorSubtotals groups line-item subtotals per vendor, preserving the
// order in which vendors first appear on the order.
func (o *Order) VendorSubtotals() ([]VendorID, map[VendorID]int64) {
	var vendors []VendorID
	subtotals := make(map[VendorID]int64)
	for _, l := range o.Lines {
		if _, seen := subtotals[l.VendorID]; !seen {
			vendors = append(vendors, l.VendorID)
		}
		subtotals[l.VendorID] += l.SubtotalCents()
	}
	return vendors, subtotals
}

func (o *Order) MarkPaid() error {
	if o.Status != OrderPendingPayment {
		return ErrInvalidState
	}
	o.Status = OrderPaid
	return nil
}

func (o *Order) MarkPaymentFailed() error {
	if o.Status != OrderPendingPayment {
		return ErrInvalidState
	}
	o.Status = OrderPaymentFailed
	return nil
}

// Cancel soft-cancels the order. Orders with an in-flight or completed
// charge are refused; cancellation after capture goes through a refund.
func (o *Order) Cancel(at time.Time) error {
	if o.Status != OrderPendingPayment && o.Status != OrderPaymentFailed {
		return ErrInvalidState
	}
	o.Status = OrderCancelled
	o.CancelledAt = &at
	return nil
}

func (o *Order) MarkRefunded() error {
	if o.Status != OrderPaid {
		return ErrInvalidState
	}
	o.Status = OrderRefunded
	return nil
}

func (o *Order) Validate() error {
	if o.ID == "" {
		return errors.New("order ID is required")
	}
	if o.BuyerID == "" {
		return errors.New("buyer ID is required")
	}
	if len(o.Lines) == 0 {
		return errors.New("order has no line items")
	}
	if o.TotalCents <= 0 {
		return NewInvalidAmountError(o.TotalCents)
	}
	return nil
}
