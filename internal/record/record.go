package record

import (
	"sync"

	"bazaar_go/internal/domain"

	"github.com/shopspring/decimal"
)

// DataType is the kind of transaction a ledger event describes.
type DataType string

const (
	BuyInstantly  DataType = "BUY_INSTANTLY"
	SellInstantly DataType = "SELL_INSTANTLY"
	BuyOrder      DataType = "BUY_ORDER"
	SellOffer     DataType = "SELL_OFFER"
)

// DataTypes lists all event kinds, useful for iteration.
var DataTypes = []DataType{BuyInstantly, SellInstantly, BuyOrder, SellOffer}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case BuyInstantly, SellInstantly, BuyOrder, SellOffer:
		return true
	}
	return false
}

const millisPerHour = int64(60 * 60 * 1000)

// maxOffsetProbes bounds the collision probing so a saturated hour fails
// instead of spinning.
const maxOffsetProbes = 2 * millisPerHour

// Event is one raw transaction held by an hour leaf. Offset is the
// event's position within the hour in milliseconds, unique per leaf, and
// doubles as the event's key in the persisted file.
type Event struct {
	Amount    int
	UnitPrice decimal.Decimal
	Cat       int
	Sub       int
	SubSub    int
	Offset    int64
}

// depth encodes a node's level in the fixed year/month/day/hour tree.
type depth int

const (
	depthRoot depth = iota
	depthYear
	depthMonth
	depthDay
	depthHour
)

// Record is one node of the time-bucketed statistics tree. A node is
// either an interior node, which owns child records and aggregates them
// lazily on every read, or an hour leaf, which holds the real counters
// and the raw event log. The variant is fixed at creation: only hour
// nodes carry leaf state.
type Record struct {
	key    int
	depth  depth
	parent *Record

	mu       sync.RWMutex
	children map[int]*Record
	leaf     *leafData
}

// leafData is the state only hour leaves carry. Counter slices are
// flattened over the taxonomy cells.
type leafData struct {
	bounds  domain.Category
	counts  map[DataType][]int
	money   map[DataType][]decimal.Decimal
	events  map[DataType]map[int64]Event
	used    map[int64]struct{}
	changed bool
}

func newRecord(key int, d depth, parent *Record, bounds domain.Category) *Record {
	r := &Record{key: key, depth: d, parent: parent}
	if d == depthHour {
		ld := &leafData{
			bounds: bounds,
			counts: make(map[DataType][]int, len(DataTypes)),
			money:  make(map[DataType][]decimal.Decimal, len(DataTypes)),
			events: make(map[DataType]map[int64]Event, len(DataTypes)),
			used:   make(map[int64]struct{}),
		}
		for _, t := range DataTypes {
			ld.counts[t] = make([]int, bounds.Cells())
			ld.money[t] = make([]decimal.Decimal, bounds.Cells())
			ld.events[t] = make(map[int64]Event)
		}
		r.leaf = ld
	} else {
		r.children = make(map[int]*Record)
	}
	return r
}

// Key returns the node's bucket number: hour of day, day of month, month
// of year or the year itself, depending on depth.
func (r *Record) Key() int {
	return r.key
}

// Parent returns the enclosing record, nil at the top.
func (r *Record) Parent() *Record {
	return r.parent
}

// HasParent reports whether the record has an enclosing record.
func (r *Record) HasParent() bool {
	return r.parent != nil
}

// IsLeaf reports whether the record is an hour leaf.
func (r *Record) IsLeaf() bool {
	return r.leaf != nil
}

// Child returns the child with the given key, nil when absent.
func (r *Record) Child(key int) *Record {
	if r.leaf != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.children[key]
}

// Children returns a copy of the child list.
func (r *Record) Children() []*Record {
	if r.leaf != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.children))
	for _, c := range r.children {
		out = append(out, c)
	}
	return out
}

// childOrCreate returns the child with the given key, creating it when
// missing. Children are created at most once and never removed.
func (r *Record) childOrCreate(key int, bounds domain.Category) *Record {
	r.mu.RLock()
	c := r.children[key]
	r.mu.RUnlock()
	if c != nil {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c = r.children[key]; c == nil {
		c = newRecord(key, r.depth+1, r, bounds)
		r.children[key] = c
	}
	return c
}

// add records one event into an hour leaf. The whole step, dedup-key
// search included, is one critical section per leaf.
func (r *Record) add(t DataType, amount int, unitPrice decimal.Decimal, cat, sub, subsub int, millis int64) error {
	ld := r.leaf
	r.mu.Lock()
	defer r.mu.Unlock()

	offset, err := ld.claimOffset(millis % millisPerHour)
	if err != nil {
		return err
	}

	ld.events[t][offset] = Event{
		Amount:    amount,
		UnitPrice: unitPrice,
		Cat:       cat,
		Sub:       sub,
		SubSub:    subsub,
		Offset:    offset,
	}
	idx := ld.cellIndex(cat, sub, subsub)
	ld.counts[t][idx] += amount
	ld.money[t][idx] = ld.money[t][idx].Add(unitPrice.Mul(decimal.NewFromInt(int64(amount))))
	ld.changed = true
	return nil
}

// restore places an already-keyed event into the leaf without marking it
// dirty; used when loading persisted hours.
func (r *Record) restore(t DataType, ev Event) {
	ld := r.leaf
	r.mu.Lock()
	defer r.mu.Unlock()

	ld.used[ev.Offset] = struct{}{}
	ld.events[t][ev.Offset] = ev
	idx := ld.cellIndex(ev.Cat, ev.Sub, ev.SubSub)
	ld.counts[t][idx] += ev.Amount
	ld.money[t][idx] = ld.money[t][idx].Add(ev.UnitPrice.Mul(decimal.NewFromInt(int64(ev.Amount))))
}

func (ld *leafData) cellIndex(cat, sub, subsub int) int {
	return ((cat-1)*ld.bounds.SubCategories+(sub-1))*ld.bounds.SubSubCategories + (subsub - 1)
}

// claimOffset reserves a free offset key, perturbing the wanted one with
// alternating +/- steps on collision. A leaf that has no free key left in
// the hour's valid range fails with ErrHourSaturated.
func (ld *leafData) claimOffset(want int64) (int64, error) {
	if _, taken := ld.used[want]; !taken && want > 0 && want < millisPerHour {
		ld.used[want] = struct{}{}
		return want, nil
	}

	off := want
	var cnt int64
	for probes := int64(0); probes < maxOffsetProbes; probes++ {
		cnt++
		if cnt%2 == 0 {
			off -= cnt
		} else {
			off += cnt
		}
		if off <= 0 || off >= millisPerHour {
			continue
		}
		if _, taken := ld.used[off]; taken {
			continue
		}
		ld.used[off] = struct{}{}
		return off, nil
	}
	return 0, domain.ErrHourSaturated
}

/// Sum returns the total quantity recorded for the data type: directly
// from the counters on a leaf, recursively over the children otherwise.
// Interior nodes cache nothing, so the result is always consistent with
// the leaves underneath.
func (r *Record) Sum(t DataType) int {
	if r.leaf != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		total := 0
		for _, v := range r.leaf.counts[t] {
			total += v
		}
		return total
	}
	total := 0
	for _, c := range r.Children() {
		total += c.Sum(t)
	}
	return total
}

// At returns the quantity recorded for the data type in one cell.
func (r *Record) At(t DataType, cat, sub, subsub int) int {
	if r.leaf != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.leaf.counts[t][r.leaf.cellIndex(cat, sub, subsub)]
	}
	total := 0
	for _, c := range r.Children() {
		total += c.At(t, cat, sub, subsub)
	}
	return total
}

// MoneySum returns the total money flow recorded for the data type,
// rounded to 2 decimal places at every aggregation step.
func (r *Record) MoneySum(t DataType) decimal.Decimal {
	if r.leaf != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		total := decimal.Zero
		for _, v := range r.leaf.money[t] {
			total = total.Add(v)
		}
		return total.Round(2)
	}
	total := decimal.Zero
	for _, c := range r.Children() {
		total = total.Add(c.MoneySum(t))
	}
	return total.Round(2)
}

// MoneyAt returns the money flow recorded for the data type in one cell,
// rounded to 2 decimal places.
func (r *Record) MoneyAt(t DataType, cat, sub, subsub int) decimal.Decimal {
	if r.leaf != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.leaf.money[t][r.leaf.cellIndex(cat, sub, subsub)].Round(2)
	}
	total := decimal.Zero
	for _, c := range r.Children() {
		total = total.Add(c.MoneyAt(t, cat, sub, subsub))
	}
	return total.Round(2)
}

// Events returns a copy of the leaf's raw event log for the data type.
// Interior nodes hold no events.
func (r *Record) Events(t DataType) []Event {
	if r.leaf == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.leaf.events[t]))
	for _, ev := range r.leaf.events[t] {
		out = append(out, ev)
	}
	return out
}

// Dirty reports whether the leaf holds unflushed events.
func (r *Record) Dirty() bool {
	if r.leaf == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.leaf.changed
}
