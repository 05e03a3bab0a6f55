package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"bazaar_go/internal/domain"
	"bazaar_go/internal/engine"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists book snapshots in SQLite so the live enquiries survive
// a restart. The ledger has its own YAML archive; this database only
// carries engine state.
type Storage struct {
	db *gorm.DB
}

// EnquiryRow is the persisted form of one enquiry. Money fields are
// stored as decimal strings, never as floats.
type EnquiryRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Type      string `gorm:"primaryKey"`
	Owner     string `gorm:"index"`
	Amount    int
	UnitPrice string
	Cat       int
	Sub       int
	SubSub    int

	CreatedSeq int64
	Status     string
	Claimable  int
	Returned   int
	Remnant    string
}

// TableName sets the table name for enquiry rows.
func (EnquiryRow) TableName() string {
	return "enquiries"
}

// CounterRow stores one named engine counter.
type CounterRow struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}

// TableName sets the table name for counter rows.
func (CounterRow) TableName() string {
	return "counters"
}

const (
	counterNextBuyID  = "next_buy_id"
	counterNextSellID = "next_sell_id"
	counterNextSeq    = "next_seq"
)

// NewStorage opens (or creates) the SQLite database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&EnquiryRow{}, &CounterRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveState replaces the persisted snapshot with the given one, as a
// single transaction so a crash never leaves a half-written book.
func (s *Storage) SaveState(st engine.BookState) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&EnquiryRow{}).Error; err != nil {
			return err
		}
		for _, e := range st.Enquiries {
			row := EnquiryRow{
				ID:         e.ID,
				Type:       string(e.Type),
				Owner:      e.Owner.String(),
				Amount:     e.Amount,
				UnitPrice:  e.UnitPrice.String(),
				Cat:        e.Cat,
				Sub:        e.Sub,
				SubSub:     e.SubSub,
				CreatedSeq: e.CreatedSeq,
				Status:     string(e.Status),
				Claimable:  e.Claimable,
				Returned:   e.Returned,
				Remnant:    e.Remnant.String(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		counters := []CounterRow{
			{Name: counterNextBuyID, Value: st.NextBuyID},
			{Name: counterNextSellID, Value: st.NextSellID},
			{Name: counterNextSeq, Value: st.NextSeq},
		}
		for _, c := range counters {
			if err := tx.Save(&c).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadState reads the persisted snapshot. An empty database yields an
// empty state, not an error.
func (s *Storage) LoadState() (engine.BookState, error) {
	var st engine.BookState

	var rows []EnquiryRow
	if err := s.db.Find(&rows).Error; err != nil {
		return st, err
	}
	for _, row := range rows {
		e, err := rowToEnquiry(row)
		if err != nil {
			return st, fmt.Errorf("corrupt enquiry row %d/%s: %w", row.ID, row.Type, err)
		}
		st.Enquiries = append(st.Enquiries, e)
	}
	return st, s.loadCounters(&st)
}

func (s *Storage) loadCounters(st *engine.BookState) error {
	var counters []CounterRow
	if err := s.db.Find(&counters).Error; err != nil {
		return err
	}
	for _, c := range counters {
		switch c.Name {
		case counterNextBuyID:
			st.NextBuyID = c.Value
		case counterNextSellID:
			st.NextSellID = c.Value
		case counterNextSeq:
			st.NextSeq = c.Value
		}
	}
	return nil
}

func rowToEnquiry(row EnquiryRow) (*domain.Enquiry, error) {
	owner, err := uuid.Parse(row.Owner)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(row.UnitPrice)
	if err != nil {
		return nil, err
	}
	remnant, err := decimal.NewFromString(row.Remnant)
	if err != nil {
		return nil, err
	}
	return &domain.Enquiry{
		ID:         row.ID,
		Owner:      owner,
		Type:       domain.EnquiryType(row.Type),
		Amount:     row.Amount,
		UnitPrice:  price,
		Cat:        row.Cat,
		Sub:        row.Sub,
		SubSub:     row.SubSub,
		CreatedSeq: row.CreatedSeq,
		Status:     domain.EnquiryStatus(row.Status),
		Claimable:  row.Claimable,
		Returned:   row.Returned,
		Remnant:    remnant,
	}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
