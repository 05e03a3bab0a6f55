package record

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bazaar_go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Archive owns the record tree and its on-disk mirror. Hour leaves are
// created on first write, mutated under their own lock and flushed as one
// YAML file per hour under dir/year/month/day. Interior nodes are never
// persisted; loading rebuilds them from the directory layout.
type Archive struct {
	bounds domain.Category
	dir    string
	now    func() time.Time
	root   *Record
}

// NewArchive creates an archive rooted at dir. A nil clock defaults to
// time.Now; timestamps are bucketed in UTC.
func NewArchive(dir string, bounds domain.Category, clock func() time.Time) *Archive {
	if clock == nil {
		clock = time.Now
	}
	return &Archive{
		bounds: bounds,
		dir:    dir,
		now:    clock,
		root:   newRecord(0, depthRoot, nil, bounds),
	}
}

// Add records a transaction at the current time.
func (a *Archive) Add(t DataType, amount int, unitPrice decimal.Decimal, cat, sub, subsub int) error {
	return a.AddAt(t, amount, unitPrice, cat, sub, subsub, a.now().UnixMilli())
}

// AddAt records a transaction into the hour leaf the timestamp falls
// into, creating the path to it as needed.
func (a *Archive) AddAt(t DataType, amount int, unitPrice decimal.Decimal, cat, sub, subsub int, millis int64) error {
	if !t.Valid() {
		return &domain.ValidationError{Field: "type", Err: domain.ErrInvalidType}
	}
	if amount <= 0 {
		return &domain.ValidationError{Field: "amount", Err: domain.ErrInvalidAmount}
	}
	if unitPrice.Sign() <= 0 {
		return &domain.ValidationError{Field: "unitPrice", Err: domain.ErrInvalidPrice}
	}
	if !a.bounds.Contains(cat, sub, subsub) {
		return &domain.ValidationError{Field: "category", Err: domain.ErrInvalidCategory}
	}

	ts := time.UnixMilli(millis).UTC()
	leaf := a.root.
		childOrCreate(ts.Year(), a.bounds).
		childOrCreate(int(ts.Month()), a.bounds).
		childOrCreate(ts.Day(), a.bounds).
		childOrCreate(ts.Hour(), a.bounds)
	return leaf.add(t, amount, unitPrice, cat, sub, subsub, millis)
}

// Record resolves a node by (year[, month[, day[, hour]]]). Returns nil
// when the bucket was never written.
func (a *Archive) Record(parts ...int) *Record {
	r := a.root
	for _, p := range parts {
		if r = r.Child(p); r == nil {
			return nil
		}
	}
	if r == a.root {
		return nil
	}
	return r
}

// Years returns the year records, the top level of the tree.
func (a *Archive) Years() []*Record {
	return a.root.Children()
}

// RecordsOfLastHours returns the hour leaves of the last n hours, newest
// first. Hours without transactions yield nil slots.
func (a *Archive) RecordsOfLastHours(n int) []*Record {
	out := make([]*Record, n)
	now := a.now().UTC()
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(i) * time.Hour)
		out[i] = a.Record(ts.Year(), int(ts.Month()), ts.Day(), ts.Hour())
	}
	return out
}

// RecordsOfLastDays returns the day records of the last n days, newest
// first, with nil slots for empty days.
func (a *Archive) RecordsOfLastDays(n int) []*Record {
	out := make([]*Record, n)
	now := a.now().UTC()
	for i := 0; i < n; i++ {
		ts := now.AddDate(0, 0, -i)
		out[i] = a.Record(ts.Year(), int(ts.Month()), ts.Day())
	}
	return out
}

// RecordsOfLastMonths returns the month records of the last n months,
// newest first, with nil slots for empty months.
func (a *Archive) RecordsOfLastMonths(n int) []*Record {
	out := make([]*Record, n)
	now := a.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := first.AddDate(0, -i, 0)
		out[i] = a.Record(ts.Year(), int(ts.Month()))
	}
	return out
}

// RecordsOfLastYears returns the year records of the last n years,
// newest first, with nil slots for empty years.
func (a *Archive) RecordsOfLastYears(n int) []*Record {
	out := make([]*Record, n)
	year := a.now().UTC().Year()
	for i := 0; i < n; i++ {
		out[i] = a.Record(year - i)
	}
	return out
}

// fileEvent is the persisted form of one raw event.
type fileEvent struct {
	Amount    int    `yaml:"a"`
	UnitPrice string `yaml:"u-p"`
	Code      string `yaml:"c"`
}

// Flush writes every dirty hour leaf to its file. A leaf that fails to
// write stays dirty and is reported; the other leaves are still flushed.
func (a *Archive) Flush() error {
	var errs []error
	for _, year := range a.root.Children() {
		for _, month := range year.Children() {
			for _, day := range month.Children() {
				for _, hour := range day.Children() {
					if err := a.flushLeaf(hour); err != nil {
						slog.Error("record flush failed", slog.Any("error", err))
						errs = append(errs, err)
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (a *Archive) flushLeaf(r *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ld := r.leaf
	if !ld.changed {
		return nil
	}

	// the parent chain carries the leaf's calendar coordinates
	hour := r.key
	day := r.parent.key
	month := r.parent.parent.key
	year := r.parent.parent.parent.key

	dir := filepath.Join(a.dir, strconv.Itoa(year), strconv.Itoa(month), strconv.Itoa(day))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.PersistenceError{Path: dir, Err: err}
	}

	doc := make(map[DataType]map[int64]fileEvent, len(DataTypes))
	for _, t := range DataTypes {
		if len(ld.events[t]) == 0 {
			continue
		}
		evs := make(map[int64]fileEvent, len(ld.events[t]))
		for off, ev := range ld.events[t] {
			evs[off] = fileEvent{
				Amount:    ev.Amount,
				UnitPrice: ev.UnitPrice.String(),
				Code:      a.bounds.Code(ev.Cat, ev.Sub, ev.SubSub),
			}
		}
		doc[t] = evs
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return &domain.PersistenceError{Path: dir, Err: err}
	}

	path := filepath.Join(dir, strconv.Itoa(hour)+".yml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &domain.PersistenceError{Path: path, Err: err}
	}

	ld.changed = false
	return nil
}

// Load rebuilds the tree from the archive directory. Unreadable or
// malformed entries are skipped with a warning; the archive stays usable
// with whatever loaded cleanly. A missing directory is not an error.
func (a *Archive) Load() error {
	years, err := os.ReadDir(a.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.PersistenceError{Path: a.dir, Err: err}
	}

	for _, yearDir := range years {
		year, ok := dirKey(yearDir)
		if !ok {
			continue
		}
		months, err := os.ReadDir(filepath.Join(a.dir, yearDir.Name()))
		if err != nil {
			slog.Warn("skipping unreadable year", slog.Int("year", year), slog.Any("error", err))
			continue
		}
		for _, monthDir := range months {
			month, ok := dirKey(monthDir)
			if !ok {
				continue
			}
			days, err := os.ReadDir(filepath.Join(a.dir, yearDir.Name(), monthDir.Name()))
			if err != nil {
				slog.Warn("skipping unreadable month", slog.Int("month", month), slog.Any("error", err))
				continue
			}
			for _, dayDir := range days {
				day, ok := dirKey(dayDir)
				if !ok {
					continue
				}
				dayPath := filepath.Join(a.dir, yearDir.Name(), monthDir.Name(), dayDir.Name())
				hours, err := os.ReadDir(dayPath)
				if err != nil {
					slog.Warn("skipping unreadable day", slog.Int("day", day), slog.Any("error", err))
					continue
				}
				for _, hourFile := range hours {
					hour, ok := hourKey(hourFile)
					if !ok {
						continue
					}
					a.loadLeaf(filepath.Join(dayPath, hourFile.Name()), year, month, day, hour)
				}
			}
		}
	}
	return nil
}

func (a *Archive) loadLeaf(path string, year, month, day, hour int) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("skipping unreadable record file", slog.String("path", path), slog.Any("error", err))
		return
	}

	var doc map[DataType]map[int64]fileEvent
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping malformed record file", slog.String("path", path), slog.Any("error", err))
		return
	}

	leaf := a.root.
		childOrCreate(year, a.bounds).
		childOrCreate(month, a.bounds).
		childOrCreate(day, a.bounds).
		childOrCreate(hour, a.bounds)

	for t, evs := range doc {
		if !t.Valid() {
			slog.Warn("skipping unknown record type", slog.String("path", path), slog.String("type", string(t)))
			continue
		}
		for offset, fe := range evs {
			ev, err := a.parseEvent(offset, fe)
			if err != nil {
				slog.Warn("skipping malformed record event",
					slog.String("path", path),
					slog.Int64("offset", offset),
					slog.Any("error", err))
				continue
			}
			leaf.restore(t, ev)
		}
	}
}

func (a *Archive) parseEvent(offset int64, fe fileEvent) (Event, error) {
	price, err := decimal.NewFromString(fe.UnitPrice)
	if err != nil {
		return Event{}, err
	}
	cat, sub, subsub, err := a.parseCode(fe.Code)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Amount:    fe.Amount,
		UnitPrice: price,
		Cat:       cat,
		Sub:       sub,
		SubSub:    subsub,
		Offset:    offset,
	}, nil
}

// parseCode splits the padded concatenated category code back into a
// triple, e.g. "011203" -> (1, 12, 3).
func (a *Archive) parseCode(code string) (cat, sub, subsub int, err error) {
	if len(code) != 6 {
		return 0, 0, 0, fmt.Errorf("bad category code %q", code)
	}
	cat, err = strconv.Atoi(code[0:2])
	if err == nil {
		sub, err = strconv.Atoi(code[2:4])
	}
	if err == nil {
		subsub, err = strconv.Atoi(code[4:6])
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad category code %q", code)
	}
	if !a.bounds.Contains(cat, sub, subsub) {
		return 0, 0, 0, fmt.Errorf("category code %q out of bounds", code)
	}
	return cat, sub, subsub, nil
}

func dirKey(e os.DirEntry) (int, bool) {
	if !e.IsDir() {
		return 0, false
	}
	v, err := strconv.Atoi(e.Name())
	if err != nil {
		return 0, false
	}
	return v, true
}

func hourKey(e os.DirEntry) (int, bool) {
	name, ok := strings.CutSuffix(e.Name(), ".yml")
	if e.IsDir() || !ok {
		return 0, false
	}
	v, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return v, true
}
