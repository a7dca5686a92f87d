package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
)

// Campaign is the booking season: where it starts, which timezone defines
// "today", how many days can be booked ahead and how many participants
// fit on one experience date.
type Campaign struct {
	Start       time.Time
	Location    *time.Location
	WindowDays  int
	Ceiling     int
	CountryCode string
}

// ExperienceReader loads experiences by id.
type ExperienceReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Experience, error)
}

// CapacityReader reports how many participants are held per date.
type CapacityReader interface {
	Reserved(ctx context.Context, experienceID uint64, day time.Time) (int, error)
	ReservedBetween(ctx context.Context, experienceID uint64, from, to time.Time) (map[string]int, error)
}

// DateAvailability is one bookable date of an experience.
type DateAvailability struct {
	Date           string `json:"date"`
	RemainingSpots int    `json:"remainingSpots"`
	FewSpotsLeft   bool   `json:"fewSpotsLeft"`
}

// DateCheck is the capacity state of a single date.
type DateCheck struct {
	Available      bool `json:"available"`
	BookedCount    int  `json:"bookedCount"`
	RemainingSpots int  `json:"remainingSpots"`
}

// fewSpotsThreshold and the highlighted days of month mark a date as
// "few spots left" in the storefront.
const fewSpotsThreshold = 3

var highlightedDays = map[int]bool{5: true, 10: true, 15: true, 20: true, 25: true}

// AvailabilityService computes which dates of an experience can still be
// booked. Remaining capacity is always the ceiling minus the participants
// held by pending and confirmed bookings.
type AvailabilityService struct {
	experiences ExperienceReader
	capacity    CapacityReader
	campaign    Campaign
	now         func() time.Time
}

func NewAvailabilityService(experiences ExperienceReader, capacity CapacityReader, campaign Campaign) *AvailabilityService {
	if campaign.Location == nil {
		campaign.Location = time.UTC
	}
	if campaign.Ceiling <= 0 {
		campaign.Ceiling = model.CapacityCeiling
	}
	return &AvailabilityService{experiences: experiences, capacity: capacity, campaign: campaign, now: time.Now}
}

// WithClock replaces the clock; tests use it to pin "today".
func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

// Campaign returns the season settings the service was built with.
func (s *AvailabilityService) Campaign() Campaign { return s.campaign }

// Today is the current calendar day in the campaign timezone.
func (s *AvailabilityService) Today() time.Time {
	return model.Day(s.now().In(s.campaign.Location))
}

// Window returns the first and last bookable day, both inclusive.
func (s *AvailabilityService) Window() (from, to time.Time) {
	from = s.Today()
	if start := model.Day(s.campaign.Start); from.Before(start) {
		from = start
	}
	return from, from.AddDate(0, 0, s.campaign.WindowDays)
}

// InWindow reports whether day lies inside the bookable window.
func (s *AvailabilityService) InWindow(day time.Time) bool {
	from, to := s.Window()
	day = model.Day(day)
	return !day.Before(from) && !day.After(to)
}

// AvailableDates lists the dates of the window that the experience's rule
// allows and that still have at least one free spot. Inactive experiences
// have no dates.
func (s *AvailabilityService) AvailableDates(ctx context.Context, experienceID uint64) ([]DateAvailability, error) {
	exp, err := s.experiences.GetByID(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	out := []DateAvailability{}
	if !exp.IsActive() {
		return out, nil
	}

	from, to := s.Window()
	reserved, err := s.capacity.ReservedBetween(ctx, experienceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load reserved capacity: %w", err)
	}

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !exp.Availability.Allows(d) {
			continue
		}
		remaining := s.campaign.Ceiling - reserved[model.FormatDay(d)]
		if remaining <= 0 {
			continue
		}
		out = append(out, DateAvailability{
			Date:           model.FormatDay(d),
			RemainingSpots: remaining,
			FewSpotsLeft:   remaining <= fewSpotsThreshold || highlightedDays[d.Day()],
		})
	}
	return out, nil
}

// CheckDateAvailability reports the capacity state of one date. It does
// not look at the experience's rule; the ledger applies that on booking.
func (s *AvailabilityService) CheckDateAvailability(ctx context.Context, experienceID uint64, day time.Time) (DateCheck, error) {
	if _, err := s.experiences.GetByID(ctx, experienceID); err != nil {
		return DateCheck{}, err
	}
	booked, err := s.capacity.Reserved(ctx, experienceID, model.Day(day))
	if err != nil {
		return DateCheck{}, fmt.Errorf("load reserved capacity: %w", err)
	}
	remaining := s.campaign.Ceiling - booked
	if remaining < 0 {
		remaining = 0
	}
	return DateCheck{Available: remaining > 0, BookedCount: booked, RemainingSpots: remaining}, nil
}

// errOutsideWindow is returned for dates the campaign does not cover.
var errOutsideWindow = fmt.Errorf("%w: date is outside the bookable period", apperr.ErrValidation)
