package schema

import (
	"time"

	"github.com/yanun0323/decimal"
)

// Symbol is an opaque instrument identifier on a specific venue.
type Symbol string

// Venue names a specific trading counterparty.
type Venue string

// OrderID is a venue-assigned identifier, unique within a venue. The core
// never interprets its contents.
type OrderID string

// ClientTag is an optional strategy-scoped identifier carried on an order,
// letting a strategy match a fill back to the intent that produced it.
type ClientTag string

// Side is the direction of an order or fill.
type Side uint8

const (
	SideUnknown Side = iota
	Buy
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign returns +1 for Buy, -1 for Sell, 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// OrderType enumerates the supported order types.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	Market
	Limit
	Stop
	StopLimit
)

// RequiresPrice reports whether the order type involves a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == Limit || t == StopLimit
}

// OrderStatus is the lifecycle state of an order as seen by the core.
type OrderStatus uint8

const (
	OrderStatusUnknown OrderStatus = iota
	Pending
	Partial
	Filled
	Cancelled
	Rejected
)

// Terminal reports whether no further updates are expected for the order.
func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Partial:
		return "PARTIAL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is a strategy-created order request, immutable once submitted.
type Order struct {
	Symbol    Symbol
	Side      Side
	Type      OrderType
	Price     float64
	Volume    float64
	ClientTag ClientTag
}

// Notional is the absolute dollar value of the order at the given
// reference price, computed in decimal so repeated admission checks
// never accumulate float64 multiplication error.
func (o Order) Notional(referencePrice float64) float64 {
	notional := decimal.NewFromFloat(o.Volume).Mul(decimal.NewFromFloat(referencePrice)).Abs()
	v, _ := notional.Float64()
	return v
}

// OrderUpdate reports a change in an order's lifecycle, keyed by OrderID.
type OrderUpdate struct {
	OrderID      OrderID
	Status       OrderStatus
	FilledPrice  float64
	FilledVolume float64
	Timestamp    time.Time
	Message      string
}

// TradeUpdate reports an individual fill. Multiple trades may correspond
// to one order (partial fills).
type TradeUpdate struct {
	OrderID   OrderID
	Symbol    Symbol
	Price     float64
	Volume    float64
	Side      Side
	Fee       float64
	Timestamp time.Time
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
