package record

import (
	"errors"
	"testing"
	"time"

	"bazaar_go/internal/domain"

	"github.com/shopspring/decimal"
)

func testBounds() domain.Category {
	return domain.Category{Categories: 2, SubCategories: 3, SubSubCategories: 4}
}

// fixedClock pins the archive to a known instant so the relative queries
// are deterministic.
func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

var testNow = time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddValidation(t *testing.T) {
	a := NewArchive(t.TempDir(), testBounds(), fixedClock(testNow))

	tests := []struct {
		name    string
		typ     DataType
		amount  int
		price   decimal.Decimal
		cat     int
		wantErr error
	}{
		{"unknown type", "TRADE", 1, d("10"), 1, domain.ErrInvalidType},
		{"zero amount", BuyInstantly, 0, d("10"), 1, domain.ErrInvalidAmount},
		{"zero price", BuyInstantly, 1, decimal.Zero, 1, domain.ErrInvalidPrice},
		{"bad category", BuyInstantly, 1, d("10"), 7, domain.ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Add(tt.typ, tt.amount, tt.price, tt.cat, 1, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestLeafCountersAndEvents(t *testing.T) {
	a := NewArchive(t.TempDir(), testBounds(), fixedClock(testNow))

	if err := a.Add(BuyInstantly, 3, d("10"), 1, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.Add(BuyInstantly, 2, d("4.5"), 1, 1, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.Add(SellOffer, 7, d("1"), 2, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	leaf := a.Record(2026, 3, 15, 14)
	if leaf == nil || !leaf.IsLeaf() {
		t.Fatal("hour leaf not created")
	}

	if got := leaf.Sum(BuyInstantly); got != 5 {
		t.Errorf("Sum: got %d, want 5", got)
	}
	if got := leaf.At(BuyInstantly, 1, 1, 1); got != 3 {
		t.Errorf("At: got %d, want 3", got)
	}
	// 3*10 + 2*4.5 = 39
	if got := leaf.MoneySum(BuyInstantly); !got.Equal(d("39")) {
		t.Errorf("MoneySum: got %s, want 39", got)
	}
	if got := leaf.MoneyAt(BuyInstantly, 1, 1, 2); !got.Equal(d("9")) {
		t.Errorf("MoneyAt: got %s, want 9", got)
	}
	if got := leaf.Sum(SellOffer); got != 7 {
		t.Errorf("other type Sum: got %d, want 7", got)
	}
	if got := leaf.Sum(SellInstantly); got != 0 {
		t.Errorf("untouched type Sum: got %d, want 0", got)
	}

	if evs := leaf.Events(BuyInstantly); len(evs) != 2 {
		t.Errorf("Events: got %d, want 2", len(evs))
	}
	if !leaf.Dirty() {
		t.Error("leaf with unflushed events not dirty")
	}
}

func TestOffsetCollisionKeepsBothEvents(t *testing.T) {
	a := NewArchive(t.TempDir(), testBounds(), fixedClock(testNow))
	millis := testNow.UnixMilli()

	// same timestamp twice: the second event gets a perturbed key instead
	// of overwriting the first
	for i := 0; i < 2; i++ {
		if err := a.AddAt(BuyInstantly, 1, d("10"), 1, 1, 1, millis); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	leaf := a.Record(2026, 3, 15, 14)
	evs := leaf.Events(BuyInstantly)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Offset == evs[1].Offset {
		t.Errorf("both events share offset %d", evs[0].Offset)
	}
	for _, ev := range evs {
		if ev.Offset <= 0 || ev.Offset >= millisPerHour {
			t.Errorf("offset %d outside the hour's valid range", ev.Offset)
		}
	}
	if got := leaf.Sum(BuyInstantly); got != 2 {
		t.Errorf("Sum: got %d, want 2", got)
	}
}

func TestClaimOffsetProbing(t *testing.T) {
	tests := []struct {
		name string
		used []int64
		want int64
		got  int64
	}{
		{"free slot taken as-is", nil, 100, 100},
		{"first step right", []int64{100}, 100, 101},
		{"second step left", []int64{100, 101}, 100, 99},
		{"third step right again", []int64{100, 101, 99}, 100, 102},
		{"lower boundary skipped", []int64{1}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ld := &leafData{used: make(map[int64]struct{})}
			for _, off := range tt.used {
				ld.used[off] = struct{}{}
			}
			got, err := ld.claimOffset(tt.want)
			if err != nil {
				t.Fatalf("claimOffset: %v", err)
			}
			if got != tt.got {
				t.Errorf("got offset %d, want %d", got, tt.got)
			}
			if _, taken := ld.used[got]; !taken {
				t.Errorf("offset %d not marked as used", got)
			}
		})
	}
}

func TestClaimOffsetSaturated(t *testing.T) {
	// fill every valid key directly; driving the archive through millions
	// of adds would drown the signal in event bookkeeping
	ld := &leafData{used: make(map[int64]struct{}, millisPerHour)}
	for off := int64(1); off < millisPerHour; off++ {
		ld.used[off] = struct{}{}
	}

	if _, err := ld.claimOffset(1234); !errors.Is(err, domain.ErrHourSaturated) {
		t.Errorf("full hour: got %v, want ErrHourSaturated", err)
	}
}

func TestInteriorAggregation(t *testing.T) {
	a := NewArchive(t.TempDir(), testBounds(), fixedClock(testNow))

	// three hours across two days of the same month
	stamps := []time.Time{
		time.Date(2026, time.March, 15, 9, 5, 0, 0, time.UTC),
		time.Date(2026, time.March, 15, 17, 40, 0, 0, time.UTC),
		time.Date(2026, time.March, 16, 3, 0, 1, 0, time.UTC),
	}
	for _, ts := range stamps {
		if err := a.AddAt(SellInstantly, 4, d("2.505"), 1, 2, 3, ts.UnixMilli()); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	tests := []struct {
		name  string
		parts []int
		want  int
	}{
		{"hour", []int{2026, 3, 15, 9}, 4},
		{"day", []int{2026, 3, 15}, 8},
		{"month", []int{2026, 3}, 12},
		{"year", []int{2026}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := a.Record(tt.parts...)
			if r == nil {
				t.Fatal("record missing")
			}
			if got := r.Sum(SellInstantly); got != tt.want {
				t.Errorf("Sum: got %d, want %d", got, tt.want)
			}
			if got := r.At(SellInstantly, 1, 2, 3); got != tt.want {
				t.Errorf("At: got %d, want %d", got, tt.want)
			}
		})
	}

	// every aggregation step rounds to 2 decimals: each leaf holds
	// 4*2.505 = 10.02, so the year sees 30.06
	year := a.Record(2026)
	if got := year.MoneySum(SellInstantly); !got.Equal(d("30.06")) {
		t.Errorf("year MoneySum: got %s, want 30.06", got)
	}
	if year.IsLeaf() {
		t.Error("year node reported as leaf")
	}
	if year.Events(SellInstantly) != nil {
		t.Error("interior node returned events")
	}
	if year.Dirty() {
		t.Error("interior node reported dirty")
	}
}

func TestRecordLookup(t *testing.T) {
	a := NewArchive(t.TempDir(), testBounds(), fixedClock(testNow))
	if err := a.Add(BuyOrder, 1, d("1"), 1, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	if r := a.Record(2026, 3, 15, 14); r == nil {
		t.Error("written hour not found")
	}
	if r := a.Record(2026, 3, 15, 15); r != nil {
		t.Error("unwritten hour resolved to a record")
	}
	if r := a.Record(2025); r != nil {
		t.Error("unwritten year resolved to a record")
	}
	if r := a.Record(); r != nil {
		t.Error("empty lookup resolved to a record")
	}

	years := a.Years()
	if len(years) != 1 || years[0].Key() != 2026 {
		t.Fatalf("Years: got %+v", years)
	}
	hour := a.Record(2026, 3, 15, 14)
	if !hour.HasParent() || hour.Parent().Key() != 15 {
		t.Error("hour leaf not linked to its day")
	}
}
