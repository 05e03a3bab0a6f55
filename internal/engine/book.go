package engine

import (
	"sort"
	"sync"

	"bazaar_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Book is the enquiry store: one ordered cell per (type, cat, sub, subsub).
// Cells are pre-allocated from the taxonomy bounds, so lookups never
// allocate and never contend on a shared map. Each cell carries its own
// RWMutex; different cells can be written concurrently.
//
// Cells hold live liquidity only. An enquiry whose remaining amount
// reaches zero, or that gets cancelled, is removed from its cell right
// away; collectible leftovers stay reachable through the settlement
// engine's player index.
type Book struct {
	bounds domain.Category
	cells  map[domain.EnquiryType][]*cell
}

// cell is one price-ordered side of a single category triple.
// BuyOrder cells sort by descending price, SellOffer cells by ascending
// price; ties are broken by ascending CreatedSeq so the oldest enquiry
// always has priority.
type cell struct {
	typ     domain.EnquiryType
	mu      sync.RWMutex
	entries []*domain.Enquiry
	amount  int // eagerly maintained sum of remaining amounts
}

// KthEntry is the result of a k-th order statistics query.
type KthEntry struct {
	Price  decimal.Decimal
	Amount int
	ID     int64
}

// NewBook allocates every cell for the given bounds.
func NewBook(bounds domain.Category) *Book {
	b := &Book{
		bounds: bounds,
		cells:  make(map[domain.EnquiryType][]*cell, len(domain.EnquiryTypes)),
	}
	for _, t := range domain.EnquiryTypes {
		cs := make([]*cell, bounds.Cells())
		for i := range cs {
			cs[i] = &cell{typ: t}
		}
		b.cells[t] = cs
	}
	return b
}

// Bounds returns the taxonomy bounds the book was built with.
func (b *Book) Bounds() domain.Category {
	return b.bounds
}

func (b *Book) cellAt(t domain.EnquiryType, cat, sub, subsub int) *cell {
	idx := ((cat-1)*b.bounds.SubCategories+(sub-1))*b.bounds.SubSubCategories + (subsub - 1)
	return b.cells[t][idx]
}

// subCells returns all cells of the sub category (cat, sub).
func (b *Book) subCells(t domain.EnquiryType, cat, sub int) []*cell {
	start := ((cat-1)*b.bounds.SubCategories + (sub - 1)) * b.bounds.SubSubCategories
	return b.cells[t][start : start+b.bounds.SubSubCategories]
}

// Insert adds an enquiry to its cell, keeping the cell ordered.
func (b *Book) Insert(e *domain.Enquiry) error {
	if !e.Type.Valid() {
		return domain.ErrInvalidType
	}
	if !b.bounds.Contains(e.Cat, e.Sub, e.SubSub) {
		return domain.ErrInvalidCategory
	}
	c := b.cellAt(e.Type, e.Cat, e.Sub, e.SubSub)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(e)
	return nil
}

// Remove deletes an enquiry from its cell by id.
func (b *Book) Remove(t domain.EnquiryType, cat, sub, subsub int, id int64) error {
	if !b.bounds.Contains(cat, sub, subsub) {
		return domain.ErrInvalidCategory
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remove(id) {
		return domain.ErrNotFound
	}
	return nil
}

// Highest returns a copy of the highest-priced enquiry in the cell; on
// price ties the oldest wins. The second result is false when the cell is
// empty.
func (b *Book) Highest(t domain.EnquiryType, cat, sub, subsub int) (domain.Enquiry, bool) {
	if !b.bounds.Contains(cat, sub, subsub) {
		return domain.Enquiry{}, false
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.extreme(true)
	if e == nil {
		return domain.Enquiry{}, false
	}
	// resting enquiries may be collected concurrently; cell lock then
	// enquiry lock is the established order
	return e.LockedSnapshot(), true
}

// Lowest is the counterpart of Highest for the lowest unit price.
func (b *Book) Lowest(t domain.EnquiryType, cat, sub, subsub int) (domain.Enquiry, bool) {
	if !b.bounds.Contains(cat, sub, subsub) {
		return domain.Enquiry{}, false
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.extreme(false)
	if e == nil {
		return domain.Enquiry{}, false
	}
	return e.LockedSnapshot(), true
}

// HighestEnquiries returns snapshots of every enquiry tied at the
// highest unit price, keyed by id. Empty cells yield an empty map.
func (b *Book) HighestEnquiries(t domain.EnquiryType, cat, sub, subsub int) map[int64]domain.Enquiry {
	return b.extremeGroup(t, cat, sub, subsub, true)
}

// LowestEnquiries is the counterpart of HighestEnquiries for the lowest
// unit price.
func (b *Book) LowestEnquiries(t domain.EnquiryType, cat, sub, subsub int) map[int64]domain.Enquiry {
	return b.extremeGroup(t, cat, sub, subsub, false)
}

func (b *Book) extremeGroup(t domain.EnquiryType, cat, sub, subsub int, highest bool) map[int64]domain.Enquiry {
	out := make(map[int64]domain.Enquiry)
	if !b.bounds.Contains(cat, sub, subsub) {
		return out
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.extremeGroupEntries(highest) {
		out[e.ID] = e.LockedSnapshot()
	}
	return out
}

// HighestPrice returns the best price of the cell or zero when empty.
func (b *Book) HighestPrice(t domain.EnquiryType, cat, sub, subsub int) decimal.Decimal {
	return b.HighestPriceOrDefault(t, cat, sub, subsub, decimal.Zero)
}

// HighestPriceOrDefault returns the highest unit price or the supplied
// default when the cell is empty.
func (b *Book) HighestPriceOrDefault(t domain.EnquiryType, cat, sub, subsub int, def decimal.Decimal) decimal.Decimal {
	if e, ok := b.Highest(t, cat, sub, subsub); ok {
		return e.UnitPrice
	}
	return def
}

// LowestPrice returns the lowest price of the cell or zero when empty.
func (b *Book) LowestPrice(t domain.EnquiryType, cat, sub, subsub int) decimal.Decimal {
	return b.LowestPriceOrDefault(t, cat, sub, subsub, decimal.Zero)
}

// LowestPriceOrDefault returns the lowest unit price or the supplied
// default when the cell is empty.
func (b *Book) LowestPriceOrDefault(t domain.EnquiryType, cat, sub, subsub int, def decimal.Decimal) decimal.Decimal {
	if e, ok := b.Lowest(t, cat, sub, subsub); ok {
		return e.UnitPrice
	}
	return def
}

// KthLargest returns the k-th enquiry (1-indexed) under descending price,
// oldest first on ties.
func (b *Book) KthLargest(t domain.EnquiryType, cat, sub, subsub, k int) (KthEntry, error) {
	return b.kth(t, cat, sub, subsub, k, true)
}

// KthSmallest returns the k-th enquiry (1-indexed) under ascending price,
// oldest first on ties.
func (b *Book) KthSmallest(t domain.EnquiryType, cat, sub, subsub, k int) (KthEntry, error) {
	return b.kth(t, cat, sub, subsub, k, false)
}

func (b *Book) kth(t domain.EnquiryType, cat, sub, subsub, k int, largest bool) (KthEntry, error) {
	if !b.bounds.Contains(cat, sub, subsub) {
		return KthEntry{}, domain.ErrInvalidCategory
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k < 1 || k > len(c.entries) {
		return KthEntry{}, domain.ErrRankOutOfRange
	}
	var e *domain.Enquiry
	if largest == (t == domain.BuyOrder) {
		// requested direction matches the cell's native order
		e = c.entries[k-1]
	} else {
		e = c.kthReversed(k)
	}
	return KthEntry{Price: e.UnitPrice, Amount: e.Amount, ID: e.ID}, nil
}

// Sum returns the eagerly maintained total remaining amount of the cell,
// or of the whole sub category when subsub <= 0.
func (b *Book) Sum(t domain.EnquiryType, cat, sub, subsub int) int {
	if subsub <= 0 {
		if !b.bounds.ContainsSub(cat, sub) {
			return 0
		}
		total := 0
		for _, c := range b.subCells(t, cat, sub) {
			c.mu.RLock()
			total += c.amount
			c.mu.RUnlock()
		}
		return total
	}
	if !b.bounds.Contains(cat, sub, subsub) {
		return 0
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.amount
}

// Count returns the number of enquiries in the cell, or in the whole sub
// category when subsub <= 0.
func (b *Book) Count(t domain.EnquiryType, cat, sub, subsub int) int {
	if subsub <= 0 {
		if !b.bounds.ContainsSub(cat, sub) {
			return 0
		}
		total := 0
		for _, c := range b.subCells(t, cat, sub) {
			c.mu.RLock()
			total += len(c.entries)
			c.mu.RUnlock()
		}
		return total
	}
	if !b.bounds.Contains(cat, sub, subsub) {
		return 0
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LazySum recomputes the total remaining amount by scanning every entry.
// Slower than Sum but exact even while writers are active.
func (b *Book) LazySum(t domain.EnquiryType, cat, sub, subsub int) int {
	total := 0
	b.scan(t, cat, sub, subsub, func(c *cell) {
		for _, e := range c.entries {
			total += e.Amount
		}
	})
	return total
}

// LazyCount recounts the enquiries by scanning, the always-exact variant
// of Count.
func (b *Book) LazyCount(t domain.EnquiryType, cat, sub, subsub int) int {
	total := 0
	b.scan(t, cat, sub, subsub, func(c *cell) {
		total += len(c.entries)
	})
	return total
}

// ExistsAny reports whether the cell, or the whole sub category for
// subsub <= 0, holds at least one enquiry.
func (b *Book) ExistsAny(t domain.EnquiryType, cat, sub, subsub int) bool {
	found := false
	b.scan(t, cat, sub, subsub, func(c *cell) {
		if len(c.entries) > 0 {
			found = true
		}
	})
	return found
}

func (b *Book) scan(t domain.EnquiryType, cat, sub, subsub int, visit func(*cell)) {
	if subsub <= 0 {
		if !b.bounds.ContainsSub(cat, sub) {
			return
		}
		for _, c := range b.subCells(t, cat, sub) {
			c.mu.RLock()
			visit(c)
			c.mu.RUnlock()
		}
		return
	}
	if !b.bounds.Contains(cat, sub, subsub) {
		return
	}
	c := b.cellAt(t, cat, sub, subsub)
	c.mu.RLock()
	visit(c)
	c.mu.RUnlock()
}

// ---- cell internals (callers hold the cell lock) ----

// before reports whether a takes priority over b in this cell's order.
func (c *cell) before(a, b *domain.Enquiry) bool {
	cmp := a.UnitPrice.Cmp(b.UnitPrice)
	if cmp != 0 {
		if c.typ == domain.BuyOrder {
			return cmp > 0
		}
		return cmp < 0
	}
	return a.CreatedSeq < b.CreatedSeq
}

func (c *cell) insert(e *domain.Enquiry) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.before(e, c.entries[i])
	})
	c.entries = append(c.entries, nil)
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
	c.amount += e.Amount
}

func (c *cell) remove(id int64) bool {
	for i, e := range c.entries {
		if e.ID == id {
			c.amount -= e.Amount
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// best returns the enquiry with match priority, nil when empty.
func (c *cell) best() *domain.Enquiry {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[0]
}

// popBest drops the head of the cell after it was fully consumed.
func (c *cell) popBest() {
	c.entries[0] = nil
	c.entries = c.entries[1:]
}

// extreme returns the highest- or lowest-priced enquiry, oldest first on
// ties.
func (c *cell) extreme(highest bool) *domain.Enquiry {
	if len(c.entries) == 0 {
		return nil
	}
	if highest == (c.typ == domain.BuyOrder) {
		return c.entries[0]
	}
	// the wanted price group sits at the tail; its first element is the
	// oldest because ties are ordered by CreatedSeq
	return c.entries[c.lastGroupStart(len(c.entries))]
}

// extremeGroupEntries returns the full equal-price run at the highest or
// lowest price, oldest first.
func (c *cell) extremeGroupEntries(highest bool) []*domain.Enquiry {
	if len(c.entries) == 0 {
		return nil
	}
	if highest == (c.typ == domain.BuyOrder) {
		p := c.entries[0].UnitPrice
		end := 1
		for end < len(c.entries) && c.entries[end].UnitPrice.Equal(p) {
			end++
		}
		return c.entries[:end]
	}
	return c.entries[c.lastGroupStart(len(c.entries)):]
}

// lastGroupStart returns the index of the first entry of the equal-price
// run ending just before end.
func (c *cell) lastGroupStart(end int) int {
	p := c.entries[end-1].UnitPrice
	i := end - 1
	for i > 0 && c.entries[i-1].UnitPrice.Equal(p) {
		i--
	}
	return i
}

// kthReversed resolves a 1-indexed rank against the cell's order read
// backwards by price group, keeping the oldest-first rule within each
// group. The caller has checked k against the cell size.
func (c *cell) kthReversed(k int) *domain.Enquiry {
	end := len(c.entries)
	for end > 0 {
		start := c.lastGroupStart(end)
		size := end - start
		if k <= size {
			return c.entries[start+k-1]
		}
		k -= size
		end = start
	}
	return nil // unreachable while k is in range
}
