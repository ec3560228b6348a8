package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"github.com/karlseguin/ccache/v3"
	"gorm.io/gorm"
)

const (
	dayLayout = "2006-01-02"
	day       = 24 * time.Hour

	// maxQuoteDays bounds the range a single availability query may span.
	maxQuoteDays = 366
)

var errUnitInactive = ValidationError{Field: "unit_id", Msg: "unit is not accepting reservations"}

type AvailabilityQuery struct {
	UnitID           uuid.UUID
	UnitType         models.UnitType
	Start            time.Time
	End              time.Time
	RequiredCapacity int
}

type AvailabilityResult struct {
	IsAvailable       bool       `json:"is_available"`
	Conflicts         []Conflict `json:"conflicts"`
	RemainingCapacity int        `json:"remaining_capacity"`
	Capacity          int        `json:"capacity"`
}

// AvailabilityService derives free capacity from live bookings and blocked
// periods on every call. Quote-time results may be cached briefly; the
// transactional variant never touches the cache.
type AvailabilityService struct {
	db       *gorm.DB
	cache    *ccache.Cache[*AvailabilityResult]
	cacheTTL time.Duration
}

func NewAvailabilityService(db *gorm.DB, cacheTTL time.Duration) *AvailabilityService {
	s := &AvailabilityService{db: db, cacheTTL: cacheTTL}
	if cacheTTL > 0 {
		s.cache = ccache.New(ccache.Configure[*AvailabilityResult]().MaxSize(5000))
	}
	return s
}

// CheckAvailability is the advisory quote-time check.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey(q)
	if s.cache != nil {
		if item := s.cache.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
	}

	result, err := s.evaluate(s.db.WithContext(ctx), q)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, result, s.cacheTTL)
	}
	return result, nil
}

// CheckAvailabilityTx re-runs the check on the caller's transaction.
func (s *AvailabilityService) CheckAvailabilityTx(tx *gorm.DB, q AvailabilityQuery) (*AvailabilityResult, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	return s.evaluate(tx, q)
}

// Invalidate drops every cached quote for a unit.
func (s *AvailabilityService) Invalidate(unitID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(unitID.String() + ":")
}

func cacheKey(q AvailabilityQuery) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", q.UnitID, q.UnitType, q.Start.Unix(), q.End.Unix(), q.RequiredCapacity)
}

func normalizeQuery(q AvailabilityQuery) (AvailabilityQuery, error) {
	if q.UnitID == uuid.Nil {
		return q, ValidationError{Field: "unit_id", Msg: "is required"}
	}
	if !q.UnitType.Valid() {
		return q, ValidationError{Field: "unit_type", Msg: "must be property, vehicle or tour"}
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return q, ValidationError{Field: "dates", Msg: "start and end are required"}
	}
	q.Start = q.Start.UTC()
	q.End = q.End.UTC()
	if q.End.Before(q.Start) {
		return q, ValidationError{Field: "end_date", Msg: "must not be before start_date"}
	}
	if q.End.Equal(q.Start) && q.UnitType != models.UnitTour {
		return q, ValidationError{Field: "end_date", Msg: "must be after start_date"}
	}
	if q.End.Sub(q.Start) > maxQuoteDays*day {
		return q, ValidationError{Field: "end_date", Msg: fmt.Sprintf("range may not exceed %d days", maxQuoteDays)}
	}
	if q.RequiredCapacity <= 0 {
		q.RequiredCapacity = 1
	}
	return q, nil
}

// occupancy is anything that consumes a unit for a range: a booking or a
// blocked period. Single-day ranges (start == end) occupy their calendar day.
type occupancy struct {
	key    string
	start  time.Time
	end    time.Time
	manual bool
}

func (o occupancy) overlaps(from, to time.Time) bool {
	if !o.start.Before(to) {
		return false
	}
	if o.end.After(from) {
		return true
	}
	return o.end.Equal(o.start) && !o.start.Before(from)
}

// queryWindow maps the request onto the half-open range it occupies.
func queryWindow(q AvailabilityQuery) (time.Time, time.Time) {
	if q.End.Equal(q.Start) {
		from := truncateDay(q.Start)
		return from, from.Add(day)
	}
	return q.Start, q.End
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// overlapScope selects rows whose range intersects [from, to), counting
// single-day rows by their start.
func overlapScope(from, to time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("start_date < ? AND (end_date > ? OR (end_date = start_date AND start_date >= ?))", to, from, from)
	}
}

func (s *AvailabilityService) evaluate(db *gorm.DB, q AvailabilityQuery) (*AvailabilityResult, error) {
	var unit models.InventoryUnit
	if err := db.First(&unit, "id = ?", q.UnitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "unit", Err: err}
		}
		return nil, InfrastructureError{Op: "load unit", Err: err}
	}
	if unit.UnitType != q.UnitType {
		return nil, NotFoundError{Resource: "unit"}
	}
	if !unit.IsActive {
		return nil, errUnitInactive
	}

	from, to := queryWindow(q)

	var bookings []models.Booking
	err := db.Model(&models.Booking{}).
		Select("id", "start_date", "end_date").
		Where("unit_id = ? AND unit_type = ? AND status IN ?", unit.ID, unit.UnitType, models.ActiveBookingStatuses).
		Scopes(overlapScope(from, to)).
		Find(&bookings).Error
	if err != nil {
		return nil, InfrastructureError{Op: "load bookings", Err: err}
	}

	var blocks []models.BlockedPeriod
	err = db.Where("unit_id = ? AND unit_type = ?", unit.ID, unit.UnitType).
		Scopes(overlapScope(from, to)).
		Find(&blocks).Error
	if err != nil {
		return nil, InfrastructureError{Op: "load blocked periods", Err: err}
	}

	occupied := make([]occupancy, 0, len(bookings)+len(blocks))
	live := make(map[uuid.UUID]struct{}, len(bookings))
	for _, b := range bookings {
		live[b.ID] = struct{}{}
		occupied = append(occupied, occupancy{key: b.ID.String(), start: b.StartDate.UTC(), end: b.EndDate.UTC()})
	}
	for _, bp := range blocks {
		o := occupancy{key: "bp:" + bp.ID.String(), start: bp.StartDate.UTC(), end: bp.EndDate.UTC()}
		switch {
		case bp.Reason == models.BlockReasonBlocked:
			o.manual = true
		case bp.BookingID != nil:
			// a booked period and its booking are the same claim; a period
			// left behind by a cancelled booking holds nothing
			if _, ok := live[*bp.BookingID]; !ok {
				continue
			}
			o.key = bp.BookingID.String()
		}
		occupied = append(occupied, o)
	}

	capacity := unit.EffectiveCapacity()
	peak := 0
	var conflicts []Conflict

	for d := truncateDay(from); d.Before(to); d = d.Add(day) {
		winStart, winEnd := d, d.Add(day)
		if winStart.Before(from) {
			winStart = from
		}
		if winEnd.After(to) {
			winEnd = to
		}

		claims := make(map[string]struct{})
		blocked := false
		for _, o := range occupied {
			if !o.overlaps(winStart, winEnd) {
				continue
			}
			if o.manual {
				blocked = true
				continue
			}
			claims[o.key] = struct{}{}
		}

		if len(claims) > peak {
			peak = len(claims)
		}
		switch {
		case blocked:
			conflicts = append(conflicts, Conflict{Date: d.Format(dayLayout), Reason: models.BlockReasonBlocked})
		case len(claims)+q.RequiredCapacity > capacity:
			conflicts = append(conflicts, Conflict{Date: d.Format(dayLayout), Reason: models.BlockReasonBooked})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i].Date < conflicts[j].Date })

	remaining := capacity - peak
	if remaining < 0 {
		remaining = 0
	}
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	return &AvailabilityResult{
		IsAvailable:       len(conflicts) == 0,
		Conflicts:         conflicts,
		RemainingCapacity: remaining,
		Capacity:          capacity,
	}, nil
}
