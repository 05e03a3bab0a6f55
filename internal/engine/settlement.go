package engine

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bazaar_go/internal/domain"
	"bazaar_go/internal/infra"
	"bazaar_go/internal/record"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recorder receives one call per ledger-worthy transaction. Satisfied by
// *record.Archive; nil disables recording.
type Recorder interface {
	Add(t record.DataType, amount int, unitPrice decimal.Decimal, cat, sub, subsub int) error
}

// InstantResult reports the outcome of an instant transaction. A partial
// fill is a normal outcome, not an error: Filled may be anything from 0
// to Requested. Money is what the buyer was charged, or what the seller
// was credited after tax.
type InstantResult struct {
	Requested int
	Filled    int
	Money     decimal.Decimal
}

// CollectResult reports what a collect call actually withdrew.
type CollectResult struct {
	Items int
	Coins decimal.Decimal
}

// fill is one execution inside a match loop, kept so ledger events can be
// emitted after the cell lock is released.
type fill struct {
	price decimal.Decimal
	qty   int
}

type enquiryKey struct {
	typ domain.EnquiryType
	id  int64
}

// Settlement is the single writer of the book and the sole producer of
// ledger events. It creates enquiries, executes instant trades, applies
// tax and manages cancellation and collection.
type Settlement struct {
	book  *Book
	rec   Recorder
	quota *infra.Quota
	tax   int

	seq        atomic.Int64
	nextBuyID  atomic.Int64
	nextSellID atomic.Int64

	// index of every uncollected enquiry, keyed globally and per owner
	pmu     sync.RWMutex
	byKey   map[enquiryKey]*domain.Enquiry
	byOwner map[uuid.UUID]map[enquiryKey]*domain.Enquiry
}

// NewSettlement wires the engine to its book, ledger and player quota.
func NewSettlement(book *Book, rec Recorder, quota *infra.Quota, taxPercent int) *Settlement {
	return &Settlement{
		book:    book,
		rec:     rec,
		quota:   quota,
		tax:     taxPercent,
		byKey:   make(map[enquiryKey]*domain.Enquiry),
		byOwner: make(map[uuid.UUID]map[enquiryKey]*domain.Enquiry),
	}
}

// Tax returns the configured tax percentage deducted from sale proceeds.
func (s *Settlement) Tax() int {
	return s.tax
}

// CanCreateEnquiry reports whether the player is below the cap on
// concurrently live enquiries.
func (s *Settlement) CanCreateEnquiry(owner uuid.UUID) bool {
	return s.quota.CanAcquire(owner)
}

// CreateBuyOrder posts a standing buy interest. The order first crosses
// any standing SellOffers at or below its price: those fills execute at
// the offer's price, the bought units become claimable items and the
// escrow difference accrues as remnant. Whatever is left rests in the
// book. Returns the new enquiry's id.
func (s *Settlement) CreateBuyOrder(owner uuid.UUID, amount int, price decimal.Decimal, cat, sub, subsub int) (int64, error) {
	if err := s.validate(amount, price, cat, sub, subsub); err != nil {
		return 0, err
	}
	if !s.quota.TryAcquire(owner) {
		return 0, domain.ErrEnquiryLimit
	}

	e := &domain.Enquiry{
		ID:         s.nextBuyID.Add(1),
		Owner:      owner,
		Type:       domain.BuyOrder,
		Amount:     amount,
		UnitPrice:  price,
		Cat:        cat,
		Sub:        sub,
		SubSub:     subsub,
		CreatedSeq: s.seq.Add(1),
		Status:     domain.StatusOpen,
		Remnant:    decimal.Zero,
	}

	fills := s.crossAsBuyer(e)
	s.rest(e, len(fills) > 0)
	s.register(e)

	s.logRecord(record.BuyOrder, amount, price, cat, sub, subsub)
	s.emitFills(fills, cat, sub, subsub)
	infra.GlobalMetrics.RecordEnquiryCreated()
	return e.ID, nil
}

// CreateSellOffer posts a standing sell interest. The offer first crosses
// any standing BuyOrders bidding at or above its price; per the bazaar's
// pricing rule those fills execute at the new offer's price, so the
// overbidding buyers accrue remnants. Whatever is left rests in the book.
// Returns the new enquiry's id.
func (s *Settlement) CreateSellOffer(owner uuid.UUID, amount int, price decimal.Decimal, cat, sub, subsub int) (int64, error) {
	if err := s.validate(amount, price, cat, sub, subsub); err != nil {
		return 0, err
	}
	if !s.quota.TryAcquire(owner) {
		return 0, domain.ErrEnquiryLimit
	}

	e := &domain.Enquiry{
		ID:         s.nextSellID.Add(1),
		Owner:      owner,
		Type:       domain.SellOffer,
		Amount:     amount,
		UnitPrice:  price,
		Cat:        cat,
		Sub:        sub,
		SubSub:     subsub,
		CreatedSeq: s.seq.Add(1),
		Status:     domain.StatusOpen,
		Remnant:    decimal.Zero,
	}

	fills := s.crossAsSeller(e)
	s.rest(e, len(fills) > 0)
	s.register(e)

	s.logRecord(record.SellOffer, amount, price, cat, sub, subsub)
	s.emitFills(fills, cat, sub, subsub)
	infra.GlobalMetrics.RecordEnquiryCreated()
	return e.ID, nil
}

// BuyInstantly buys up to amount units against the standing SellOffers,
// cheapest and oldest first, while the offer price stays at or below the
// caller's ceiling. Each fill executes at the offer's price; the sellers'
// proceeds become claimable. Money is the total the buyer owes.
func (s *Settlement) BuyInstantly(buyer uuid.UUID, amount int, price decimal.Decimal, cat, sub, subsub int) (InstantResult, error) {
	if err := s.validate(amount, price, cat, sub, subsub); err != nil {
		return InstantResult{}, err
	}
	start := time.Now()

	c := s.book.cellAt(domain.SellOffer, cat, sub, subsub)
	c.mu.Lock()
	remaining := amount
	money := decimal.Zero
	var fills []fill
	for remaining > 0 {
		o := c.best()
		if o == nil || o.UnitPrice.GreaterThan(price) {
			break
		}
		qty := min(remaining, o.Amount)
		s.consume(c, o, qty)
		remaining -= qty
		money = money.Add(o.UnitPrice.Mul(dec(qty)))
		fills = append(fills, fill{price: o.UnitPrice, qty: qty})
	}
	c.mu.Unlock()

	res := InstantResult{
		Requested: amount,
		Filled:    amount - remaining,
		Money:     money.Round(2),
	}
	s.emitFills(fills, cat, sub, subsub)
	infra.GlobalMetrics.RecordInstantTrade(res.Filled, time.Since(start).Nanoseconds())
	return res, nil
}

// SellInstantly sells up to amount units against the standing BuyOrders,
// best-paying and oldest first, while the bid stays at or above the
// caller's floor. Fills execute at the bid's price; the buyers' units
// become claimable items. Money is the seller's immediate, tax-adjusted
// credit.
func (s *Settlement) SellInstantly(seller uuid.UUID, amount int, price decimal.Decimal, cat, sub, subsub int) (InstantResult, error) {
	if err := s.validate(amount, price, cat, sub, subsub); err != nil {
		return InstantResult{}, err
	}
	start := time.Now()

	c := s.book.cellAt(domain.BuyOrder, cat, sub, subsub)
	c.mu.Lock()
	remaining := amount
	gross := decimal.Zero
	var fills []fill
	for remaining > 0 {
		o := c.best()
		if o == nil || o.UnitPrice.LessThan(price) {
			break
		}
		qty := min(remaining, o.Amount)
		s.consume(c, o, qty)
		remaining -= qty
		gross = gross.Add(o.UnitPrice.Mul(dec(qty)))
		fills = append(fills, fill{price: o.UnitPrice, qty: qty})
	}
	c.mu.Unlock()

	res := InstantResult{
		Requested: amount,
		Filled:    amount - remaining,
		Money:     domain.AfterTax(gross, s.tax),
	}
	s.emitFills(fills, cat, sub, subsub)
	infra.GlobalMetrics.RecordInstantTrade(res.Filled, time.Since(start).Nanoseconds())
	return res, nil
}

// CancelEnquiry withdraws the unfilled remainder of an enquiry from
// matching. The remainder becomes collectible as the original asset with
// no tax; already-filled proceeds stay claimable separately. Returns the
// number of units cancelled.
func (s *Settlement) CancelEnquiry(owner uuid.UUID, id int64, typ domain.EnquiryType, price decimal.Decimal, cat, sub, subsub int) (int, error) {
	if !typ.Valid() {
		return 0, &domain.ValidationError{Field: "type", Err: domain.ErrInvalidType}
	}
	e, err := s.lookup(owner, typ, id)
	if err != nil {
		return 0, err
	}
	// the caller-supplied coordinates must describe the enquiry
	if e.Cat != cat || e.Sub != sub || e.SubSub != subsub || !e.UnitPrice.Equal(price) {
		return 0, domain.ErrNotFound
	}

	c := s.book.cellAt(typ, cat, sub, subsub)
	c.mu.Lock()
	c.remove(id)
	e.Lock()
	cancelled := e.Amount
	if cancelled > 0 {
		e.Returned += cancelled
		e.Amount = 0
		e.Status = domain.StatusCancelled
	}
	e.Unlock()
	c.mu.Unlock()

	return cancelled, nil
}

// CollectEnquiry withdraws up to max units of the enquiry's collectible
// proceeds, claimable fills first, then cancellation refunds. Once
// amount, claimable, returned and remnant are all zero the enquiry is
// Collected and disappears.
func (s *Settlement) CollectEnquiry(owner uuid.UUID, id int64, typ domain.EnquiryType, max int) (CollectResult, error) {
	if !typ.Valid() {
		return CollectResult{}, &domain.ValidationError{Field: "type", Err: domain.ErrInvalidType}
	}
	e, err := s.lookup(owner, typ, id)
	if err != nil {
		return CollectResult{}, err
	}

	var res CollectResult
	res.Coins = decimal.Zero
	if max <= 0 {
		return res, nil
	}

	e.Lock()
	claimed := min(max, e.Claimable)
	e.Claimable -= claimed
	returned := min(max-claimed, e.Returned)
	e.Returned -= returned

	switch typ {
	case domain.SellOffer:
		res.Coins = domain.AfterTax(e.UnitPrice.Mul(dec(claimed)), s.tax)
		res.Items = returned
	case domain.BuyOrder:
		res.Items = claimed
		res.Coins = e.UnitPrice.Mul(dec(returned)).Round(2)
	}

	done := e.Settled()
	if done {
		e.Status = domain.StatusCollected
	}
	e.Unlock()

	if done {
		s.unregister(e)
	}
	infra.GlobalMetrics.RecordCollect()
	return res, nil
}

// CollectRemnants withdraws the accumulated price-difference refund of a
// BuyOrder. Returns zero on every call after the first.
func (s *Settlement) CollectRemnants(owner uuid.UUID, id int64) (decimal.Decimal, error) {
	e, err := s.lookup(owner, domain.BuyOrder, id)
	if err != nil {
		return decimal.Zero, err
	}

	e.Lock()
	remnants := e.Remnant.Round(2)
	e.Remnant = decimal.Zero
	done := e.Settled()
	if done {
		e.Status = domain.StatusCollected
	}
	e.Unlock()

	if done {
		s.unregister(e)
	}
	infra.GlobalMetrics.RecordCollect()
	return remnants, nil
}

// GetClaimableCoins sums the money value of everything the player can
// collect as coins, across both enquiry types, rounded to 2 decimals.
func (s *Settlement) GetClaimableCoins(owner uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	s.eachOwned(owner, func(e *domain.Enquiry) {
		total = total.Add(e.ClaimableCoins(s.tax))
	})
	return total.Round(2)
}

// GetClaimableItems counts the items the player can collect across both
// enquiry types.
func (s *Settlement) GetClaimableItems(owner uuid.UUID) int {
	total := 0
	s.eachOwned(owner, func(e *domain.Enquiry) {
		total += e.ClaimableItems()
	})
	return total
}

// GetClaimable returns the enquiry's matched-but-uncollected unit count.
func (s *Settlement) GetClaimable(owner uuid.UUID, id int64, typ domain.EnquiryType) (int, error) {
	e, err := s.lookup(owner, typ, id)
	if err != nil {
		return 0, err
	}
	e.Lock()
	defer e.Unlock()
	return e.Claimable, nil
}

// GetLeft returns the enquiry's remaining unfilled amount.
func (s *Settlement) GetLeft(owner uuid.UUID, id int64, typ domain.EnquiryType) (int, error) {
	e, err := s.lookup(owner, typ, id)
	if err != nil {
		return 0, err
	}
	e.Lock()
	defer e.Unlock()
	return e.Amount, nil
}

// GetRemnants sums the uncollected remnants across all of the player's
// BuyOrders.
func (s *Settlement) GetRemnants(owner uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	s.eachOwned(owner, func(e *domain.Enquiry) {
		if e.Type == domain.BuyOrder {
			total = total.Add(e.Remnant)
		}
	})
	return total.Round(2)
}

// GetRemnant returns the uncollected remnant of one BuyOrder.
func (s *Settlement) GetRemnant(owner uuid.UUID, id int64) (decimal.Decimal, error) {
	e, err := s.lookup(owner, domain.BuyOrder, id)
	if err != nil {
		return decimal.Zero, err
	}
	e.Lock()
	defer e.Unlock()
	return e.Remnant.Round(2), nil
}

// CountEnquiries returns the number of uncollected enquiries the player
// owns.
func (s *Settlement) CountEnquiries(owner uuid.UUID) int {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	return len(s.byOwner[owner])
}

// Enquiry returns a copy of one enquiry.
func (s *Settlement) Enquiry(owner uuid.UUID, id int64, typ domain.EnquiryType) (domain.Enquiry, error) {
	e, err := s.lookup(owner, typ, id)
	if err != nil {
		return domain.Enquiry{}, err
	}
	e.Lock()
	defer e.Unlock()
	return e.Snapshot(), nil
}

// Enquiries returns copies of all the player's enquiries of one type,
// oldest first.
func (s *Settlement) Enquiries(owner uuid.UUID, typ domain.EnquiryType) []domain.Enquiry {
	var out []domain.Enquiry
	s.eachOwned(owner, func(e *domain.Enquiry) {
		if e.Type == typ {
			out = append(out, e.Snapshot())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedSeq < out[j].CreatedSeq })
	return out
}

// BookState is everything needed to rebuild the live book: the tracked
// enquiries plus the id and sequence counters.
type BookState struct {
	Enquiries  []*domain.Enquiry
	NextBuyID  int64
	NextSellID int64
	NextSeq    int64
}

// State captures a snapshot of every uncollected enquiry for persistence.
func (s *Settlement) State() BookState {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	st := BookState{
		NextBuyID:  s.nextBuyID.Load(),
		NextSellID: s.nextSellID.Load(),
		NextSeq:    s.seq.Load(),
	}
	for _, e := range s.byKey {
		snap := e.LockedSnapshot()
		st.Enquiries = append(st.Enquiries, &snap)
	}
	return st
}

// Restore rebuilds the engine from a persisted snapshot. Live enquiries
// re-enter the book; everything re-enters the player index and the quota.
func (s *Settlement) Restore(st BookState) error {
	s.nextBuyID.Store(st.NextBuyID)
	s.nextSellID.Store(st.NextSellID)
	s.seq.Store(st.NextSeq)
	for _, src := range st.Enquiries {
		e := src.Snapshot()
		restored := &e
		if restored.Live() {
			if err := s.book.Insert(restored); err != nil {
				return err
			}
		}
		s.quota.Acquire(restored.Owner)
		s.register(restored)
	}
	return nil
}

// ---- internals ----

func (s *Settlement) validate(amount int, price decimal.Decimal, cat, sub, subsub int) error {
	if amount <= 0 {
		return &domain.ValidationError{Field: "amount", Err: domain.ErrInvalidAmount}
	}
	if price.Sign() <= 0 {
		return &domain.ValidationError{Field: "price", Err: domain.ErrInvalidPrice}
	}
	if !s.book.bounds.Contains(cat, sub, subsub) {
		return &domain.ValidationError{Field: "category", Err: domain.ErrInvalidCategory}
	}
	return nil
}

// crossAsBuyer fills a fresh BuyOrder from the standing SellOffers at or
// below its price, cheapest and oldest first, at the offers' prices.
func (s *Settlement) crossAsBuyer(e *domain.Enquiry) []fill {
	c := s.book.cellAt(domain.SellOffer, e.Cat, e.Sub, e.SubSub)
	c.mu.Lock()
	defer c.mu.Unlock()

	var fills []fill
	for e.Amount > 0 {
		o := c.best()
		if o == nil || o.UnitPrice.GreaterThan(e.UnitPrice) {
			break
		}
		qty := min(e.Amount, o.Amount)
		s.consume(c, o, qty)
		e.Amount -= qty
		e.Claimable += qty
		e.Remnant = e.Remnant.Add(e.UnitPrice.Sub(o.UnitPrice).Mul(dec(qty)))
		fills = append(fills, fill{price: o.UnitPrice, qty: qty})
	}
	return fills
}

// crossAsSeller fills a fresh SellOffer from the standing BuyOrders at or
// above its price, best-paying and oldest first. Fills execute at the new
// offer's price; the difference to each bid accrues as that buyer's
// remnant.
func (s *Settlement) crossAsSeller(e *domain.Enquiry) []fill {
	c := s.book.cellAt(domain.BuyOrder, e.Cat, e.Sub, e.SubSub)
	c.mu.Lock()
	defer c.mu.Unlock()

	var fills []fill
	for e.Amount > 0 {
		o := c.best()
		if o == nil || o.UnitPrice.LessThan(e.UnitPrice) {
			break
		}
		qty := min(e.Amount, o.Amount)
		remnant := o.UnitPrice.Sub(e.UnitPrice).Mul(dec(qty))
		s.consume(c, o, qty)
		o.Lock()
		o.Remnant = o.Remnant.Add(remnant)
		o.Unlock()
		e.Amount -= qty
		e.Claimable += qty
		fills = append(fills, fill{price: e.UnitPrice, qty: qty})
	}
	return fills
}

// consume fills qty units of the standing enquiry at the head of the
// cell. The caller holds the cell lock; popBest keeps the cell free of
// exhausted entries.
func (s *Settlement) consume(c *cell, o *domain.Enquiry, qty int) {
	o.Lock()
	o.Amount -= qty
	o.Claimable += qty
	if o.Amount == 0 {
		o.Status = domain.StatusFilled
	} else {
		o.Status = domain.StatusPartiallyFilled
	}
	o.Unlock()
	c.amount -= qty
	if o.Amount == 0 {
		c.popBest()
	}
}

// rest places the unfilled remainder of a fresh enquiry into the book.
func (s *Settlement) rest(e *domain.Enquiry, crossed bool) {
	if e.Amount > 0 {
		if crossed {
			e.Status = domain.StatusPartiallyFilled
		}
		_ = s.book.Insert(e) // coordinates validated up front
		return
	}
	e.Status = domain.StatusFilled
}

func (s *Settlement) register(e *domain.Enquiry) {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	k := enquiryKey{typ: e.Type, id: e.ID}
	s.byKey[k] = e
	owned := s.byOwner[e.Owner]
	if owned == nil {
		owned = make(map[enquiryKey]*domain.Enquiry)
		s.byOwner[e.Owner] = owned
	}
	owned[k] = e
}

func (s *Settlement) unregister(e *domain.Enquiry) {
	s.pmu.Lock()
	k := enquiryKey{typ: e.Type, id: e.ID}
	delete(s.byKey, k)
	if owned := s.byOwner[e.Owner]; owned != nil {
		delete(owned, k)
		if len(owned) == 0 {
			delete(s.byOwner, e.Owner)
		}
	}
	s.pmu.Unlock()
	s.quota.Release(e.Owner)
}

func (s *Settlement) lookup(owner uuid.UUID, typ domain.EnquiryType, id int64) (*domain.Enquiry, error) {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	e := s.byKey[enquiryKey{typ: typ, id: id}]
	if e == nil {
		return nil, domain.ErrNotFound
	}
	if e.Owner != owner {
		return nil, domain.ErrNotOwner
	}
	return e, nil
}

func (s *Settlement) eachOwned(owner uuid.UUID, visit func(*domain.Enquiry)) {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	for _, e := range s.byOwner[owner] {
		e.Lock()
		visit(e)
		e.Unlock()
	}
}

// emitFills reports one matched trade pair per fill to the ledger.
func (s *Settlement) emitFills(fills []fill, cat, sub, subsub int) {
	for _, f := range fills {
		s.logRecord(record.BuyInstantly, f.qty, f.price, cat, sub, subsub)
		s.logRecord(record.SellInstantly, f.qty, f.price, cat, sub, subsub)
	}
}

func (s *Settlement) logRecord(t record.DataType, amount int, price decimal.Decimal, cat, sub, subsub int) {
	if s.rec == nil {
		return
	}
	if err := s.rec.Add(t, amount, price, cat, sub, subsub); err != nil {
		// the live book stays authoritative; a dropped statistic is logged,
		// never propagated into the trade path
		slog.Warn("ledger record failed", slog.String("type", string(t)), slog.Any("error", err))
	}
}

func dec(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
