package domain

// OrderID is the external identifier assigned by the checkout flow
type OrderID string

// BuyerID is the external identifier for the purchasing customer
type BuyerID string

// VendorID identifies a marketplace vendor
type VendorID string

type TransactionID string

// PaymentMethod is the customer-facing payment instrument type
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCashVoucher  PaymentMethod = "CASH_VOUCHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodCashVoucher:
		return true
	default:
		return false
	}
}
