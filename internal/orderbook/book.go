// Package orderbook mirrors the ask side of one venue's order book from a
// sequenced snapshot/diff stream and measures how much resting liquidity
// each diff consumed.
package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// State is the tracker lifecycle.
type State int

const (
	Disconnected State = iota
	AwaitingSnapshot
	Tracking
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingSnapshot:
		return "awaiting_snapshot"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Level is one resting ask price and its quantity.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func levelLess(a, b Level) bool {
	return a.Price.LessThan(b.Price)
}

// Sweep is the liquidity removed from the book by one diff batch.
type Sweep struct {
	Quantity decimal.Decimal
	Value    decimal.Decimal
	Levels   int
}

// IsZero reports whether nothing was swept.
func (s Sweep) IsZero() bool {
	return !s.Quantity.IsPositive()
}

// AvgPrice is Value / Quantity, or zero for an empty sweep.
func (s Sweep) AvgPrice() decimal.Decimal {
	if s.IsZero() {
		return decimal.Zero
	}
	return s.Value.Div(s.Quantity)
}

// Book is a sorted ask-side mirror. It is not safe for concurrent use; the
// tracker that owns it processes messages one at a time.
type Book struct {
	levels   *btree.BTreeG[Level]
	sequence int64
	state    State
}

// New returns an empty, disconnected Book.
func New() *Book {
	return &Book{
		levels: btree.NewBTreeG(levelLess),
		state:  Disconnected,
	}
}

// State returns the current lifecycle state.
func (b *Book) State() State { return b.state }

// Sequence returns the sequence of the last applied snapshot or diff.
func (b *Book) Sequence() int64 { return b.sequence }

// Len returns the number of resting levels.
func (b *Book) Len() int { return b.levels.Len() }

// Connected discards the mirror and waits for the next snapshot.
func (b *Book) Connected() {
	b.clear()
	b.state = AwaitingSnapshot
}

// Disconnect discards the mirror.
func (b *Book) Disconnect() {
	b.clear()
	b.state = Disconnected
}

func (b *Book) clear() {
	b.levels = btree.NewBTreeG(levelLess)
	b.sequence = 0
}

// ApplySnapshot replaces every level and starts tracking at seq. Levels with
// a non-positive quantity are ignored.
func (b *Book) ApplySnapshot(levels []Level, seq int64) {
	b.clear()
	for _, l := range levels {
		if l.Quantity.IsPositive() {
			b.levels.Set(l)
		}
	}
	b.sequence = seq
	b.state = Tracking
}

// ApplyDiff applies a batch of absolute level quantities. A decrease or
// removal of an existing level counts as swept liquidity; growth and new
// levels do not. Diffs that arrive before a snapshot, or whose sequence is
// not strictly greater than the current one, leave the book untouched.
func (b *Book) ApplyDiff(changes []Level, seq int64) (Sweep, error) {
	if b.state != Tracking {
		return Sweep{}, fmt.Errorf("orderbook: diff while %s", b.state)
	}
	if seq <= b.sequence {
		return Sweep{}, fmt.Errorf("orderbook: diff %d after %d: %w", seq, b.sequence, domain.ErrStaleSequence)
	}

	var sw Sweep
	for _, c := range changes {
		existing, ok := b.levels.Get(c)
		if !ok {
			if c.Quantity.IsPositive() {
				b.levels.Set(c)
			}
			continue
		}

		switch {
		case !c.Quantity.IsPositive():
			b.levels.Delete(existing)
			sw.add(existing.Price, existing.Quantity)
		case c.Quantity.LessThan(existing.Quantity):
			b.levels.Set(c)
			sw.add(existing.Price, existing.Quantity.Sub(c.Quantity))
		default:
			b.levels.Set(c)
		}
	}

	b.sequence = seq
	return sw, nil
}

func (s *Sweep) add(price, qty decimal.Decimal) {
	s.Quantity = s.Quantity.Add(qty)
	s.Value = s.Value.Add(price.Mul(qty))
	s.Levels++
}

// Levels returns the resting asks in ascending price order.
func (b *Book) Levels() []Level {
	out := make([]Level, 0, b.levels.Len())
	b.levels.Scan(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}

// BestAsk returns the lowest resting ask.
func (b *Book) BestAsk() (Level, bool) {
	return b.levels.Min()
}
