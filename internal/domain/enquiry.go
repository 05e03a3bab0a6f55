package domain

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EnquiryType discriminates the two kinds of standing interest.
type EnquiryType string

const (
	BuyOrder  EnquiryType = "BUY_ORDER"
	SellOffer EnquiryType = "SELL_OFFER"
)

// EnquiryTypes lists all types, useful for iteration.
var EnquiryTypes = []EnquiryType{BuyOrder, SellOffer}

// Valid reports whether t is a known enquiry type.
func (t EnquiryType) Valid() bool {
	return t == BuyOrder || t == SellOffer
}

// EnquiryStatus is the lifecycle state of an enquiry.
type EnquiryStatus string

const (
	StatusOpen            EnquiryStatus = "OPEN"
	StatusPartiallyFilled EnquiryStatus = "PARTIALLY_FILLED"
	StatusFilled          EnquiryStatus = "FILLED"
	StatusCancelled       EnquiryStatus = "CANCELLED"
	StatusCollected       EnquiryStatus = "COLLECTED"
)

// Enquiry is one player's standing interest: a BuyOrder or a SellOffer in
// a single category cell. The unit price and the category triple are fixed
// for the life of the enquiry; Amount only ever decreases.
//
// Claimable and Returned are unit counts. For a SellOffer, Claimable units
// were sold and convert to coins at UnitPrice minus tax, while Returned
// units are items handed back by a cancellation. For a BuyOrder it is the
// other way around: Claimable units are bought items, Returned units are
// escrowed coins refunded at UnitPrice with no tax. Remnant is money only
// and only ever accrues on BuyOrders.
type Enquiry struct {
	ID        int64
	Owner     uuid.UUID
	Type      EnquiryType
	Amount    int
	UnitPrice decimal.Decimal
	Cat       int
	Sub       int
	SubSub    int

	// CreatedSeq is a logical sequence number used for time priority;
	// the smaller value is the older enquiry.
	CreatedSeq int64

	Status    EnquiryStatus
	Claimable int
	Returned  int
	Remnant   decimal.Decimal

	// mu serializes mutations of Amount, Claimable, Returned, Remnant and
	// Status once the enquiry may be touched by concurrent collect calls.
	mu sync.Mutex
}

// Lock acquires the enquiry's mutation lock.
func (e *Enquiry) Lock() { e.mu.Lock() }

// Unlock releases the enquiry's mutation lock.
func (e *Enquiry) Unlock() { e.mu.Unlock() }

// Settled reports whether nothing is left to match or collect. A settled
// enquiry is eligible for removal.
func (e *Enquiry) Settled() bool {
	return e.Amount == 0 && e.Claimable == 0 && e.Returned == 0 && e.Remnant.IsZero()
}

// Live reports whether the enquiry still participates in matching.
func (e *Enquiry) Live() bool {
	return e.Amount > 0 && (e.Status == StatusOpen || e.Status == StatusPartiallyFilled)
}

// ClaimableCoins is the money value of the collectible proceeds, rounded
// to 2 decimal places. taxPercent applies to sold SellOffer units only;
// refunds carry no tax.
func (e *Enquiry) ClaimableCoins(taxPercent int) decimal.Decimal {
	switch e.Type {
	case SellOffer:
		return AfterTax(e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Claimable))), taxPercent)
	case BuyOrder:
		return e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Returned))).Round(2)
	}
	return decimal.Zero
}

// ClaimableItems is the number of collectible items.
func (e *Enquiry) ClaimableItems() int {
	if e.Type == BuyOrder {
		return e.Claimable
	}
	return e.Returned
}

// LockedSnapshot takes the enquiry lock for the duration of the copy.
// For readers that do not already serialize against collect calls.
func (e *Enquiry) LockedSnapshot() Enquiry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Snapshot()
}

// Snapshot returns a copy safe to hand out to readers. The caller must
// hold the enquiry lock or otherwise know the enquiry is quiescent.
func (e *Enquiry) Snapshot() Enquiry {
	return Enquiry{
		ID:         e.ID,
		Owner:      e.Owner,
		Type:       e.Type,
		Amount:     e.Amount,
		UnitPrice:  e.UnitPrice,
		Cat:        e.Cat,
		Sub:        e.Sub,
		SubSub:     e.SubSub,
		CreatedSeq: e.CreatedSeq,
		Status:     e.Status,
		Claimable:  e.Claimable,
		Returned:   e.Returned,
		Remnant:    e.Remnant,
	}
}

var hundred = decimal.NewFromInt(100)

// AfterTax deducts the tax percentage from a money amount and rounds the
// result to 2 decimal places.
func AfterTax(money decimal.Decimal, taxPercent int) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(taxPercent))).Div(hundred)
	return money.Mul(factor).Round(2)
}
