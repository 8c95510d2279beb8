// Package venue defines the capability interface every exchange connector
// implements (spec §4.3), plus a simulated reference implementation and a
// generic reconnect/backoff transport usable by a real one.
package venue

import (
	"context"

	"execore/internal/schema"
)

// MarketDataCallback delivers one top-of-book update.
type MarketDataCallback func(schema.MarketData)

// OrderCallback delivers one order lifecycle update.
type OrderCallback func(schema.OrderUpdate)

// TradeCallback delivers one fill.
type TradeCallback func(schema.TradeUpdate)

// FatalCallback fires exactly once per adapter instance, when the venue
// connection is permanently lost (auth rejected, account disabled, ...).
// The adapter never retries after firing this.
type FatalCallback func(reason string)

// Adapter is the capability set the Execution Core drives every venue
// connector through. Implementations own their own transport and
// credential signing; the core never reaches below this interface.
//
// Contractual obligations (spec §4.3):
//   - SubmitOrder must hand back an OrderID before any callback referencing
//     that order fires.
//   - Order/trade updates for a given OrderID carry monotonically
//     non-decreasing timestamps.
//   - On transport loss the adapter reconnects with exponential backoff and
//     re-subscribes every symbol that was subscribed at the time of the
//     drop.
//   - An unrecoverable failure is surfaced once via FatalCallback, never
//     retried silently.
type Adapter interface {
	Venue() schema.Venue

	SubscribeMarketData(ctx context.Context, symbol schema.Symbol) error
	UnsubscribeMarketData(ctx context.Context, symbol schema.Symbol) error

	SubmitOrder(ctx context.Context, order schema.Order) (schema.OrderID, error)
	CancelOrder(ctx context.Context, id schema.OrderID) error
	QueryOrderStatus(ctx context.Context, id schema.OrderID) (schema.OrderUpdate, error)

	Balance(ctx context.Context) (map[string]float64, error)
	Positions(ctx context.Context) ([]schema.Position, error)

	SetCallbacks(md MarketDataCallback, order OrderCallback, trade TradeCallback)
	SetFatalCallback(cb FatalCallback)
}
