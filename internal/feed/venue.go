// Package feed runs the streaming connections to exchanges. A Connector
// forwards normalized trades; an OrderBookTracker mirrors an ask book and
// forwards sweeps. Venue-specific framing lives behind the Venue interface.
package feed

import (
	"context"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/orderbook"
)

// Message is the decoded form of one stream frame.
type Message interface {
	isMessage()
}

// TradesMessage carries executions, already normalized.
type TradesMessage struct {
	Trades []domain.Trade
}

// SnapshotMessage replaces the ask book for Pair.
type SnapshotMessage struct {
	Pair     string
	Asks     []orderbook.Level
	Sequence int64
}

// DiffMessage carries absolute quantities for changed ask levels.
type DiffMessage struct {
	Pair     string
	Asks     []orderbook.Level
	Sequence int64
}

// ControlMessage asks the stream to write Reply back, e.g. an application
// level pong.
type ControlMessage struct {
	Reply []byte
}

// IgnoredMessage is a well-formed frame with nothing to act on
// (subscription acks, heartbeats, other channels).
type IgnoredMessage struct {
	Reason string
}

func (TradesMessage) isMessage()   {}
func (SnapshotMessage) isMessage() {}
func (DiffMessage) isMessage()     {}
func (ControlMessage) isMessage()  {}
func (IgnoredMessage) isMessage()  {}

// Venue is the per-exchange part of a trade stream.
type Venue interface {
	// Name is the exchange display name used for buckets and availability.
	Name() string
	StreamURL() string
	// TradeSubscriptions returns the frames that subscribe to pair's trades.
	TradeSubscriptions(pair string) ([][]byte, error)
	// Decode parses one frame. Unparseable frames return an error wrapping
	// domain.ErrUnparseable.
	Decode(raw []byte) (Message, error)
	MarketURL(pair string) string
}

// BookVenue is a Venue that also streams order-book diffs.
type BookVenue interface {
	Venue
	BookSubscriptions(pair string, depth int) ([][]byte, error)
}

// Gate reports whether the monitored asset is tradable on an exchange.
type Gate interface {
	WaitListed(ctx context.Context, exchange string) error
	IsListed(exchange string) bool
}
