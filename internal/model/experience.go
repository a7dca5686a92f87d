package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Experience is a bookable activity offered by an affiliate partner.
//
// Fields:
//
//	ID           – primary key identifier.
//	PartnerID    – owning partner (partners.id).
//	Title        – display title, snapshotted onto bookings.
//	Description  – free text.
//	Location     – where the experience takes place.
//	Duration     – human readable duration ("2 timer").
//	Price        – price per booking in DKK.
//	Category     – free form category label.
//	Availability – which dates can be booked (single, list or always).
//	Status       – ACTIVE experiences accept bookings, INACTIVE ones do not.
type Experience struct {
	ID           uint64           `json:"id"`           // experiences.id
	PartnerID    uint64           `json:"partner_id"`   // experiences.partner_id
	Title        string           `json:"title"`        // experiences.title
	Description  string           `json:"description"`  // experiences.description
	Location     string           `json:"location"`     // experiences.location
	Duration     string           `json:"duration"`     // experiences.duration
	Price        float64          `json:"price"`        // experiences.price
	Category     string           `json:"category"`     // experiences.category
	Availability AvailabilityRule `json:"availability"` // experiences.available_dates (JSON)
	Status       string           `json:"status"`       // experiences.status
	CreatedAt    time.Time        `json:"created_at"`   // experiences.created_at
	UpdatedAt    time.Time        `json:"updated_at"`   // experiences.updated_at
}

const (
	ExperienceActive   = "active"
	ExperienceInactive = "inactive"
)

// IsActive reports whether the experience accepts new bookings.
func (e Experience) IsActive() bool { return e.Status == ExperienceActive }

// AvailabilityType selects how an experience's bookable dates are defined.
type AvailabilityType string

const (
	AvailabilitySingle AvailabilityType = "single"
	AvailabilityList   AvailabilityType = "list"
	AvailabilityAlways AvailabilityType = "always"
)

// AvailabilityRule is stored as JSON in experiences.available_dates, e.g.
// {"type":"list","dates":["2025-12-05","2025-12-06"]}.
type AvailabilityRule struct {
	Type  AvailabilityType `json:"type"`
	Date  string           `json:"date,omitempty"`
	Dates []string         `json:"dates,omitempty"`
}

// ParseAvailabilityRule decodes a stored rule. NULL or empty columns mean
// the experience is always open.
func ParseAvailabilityRule(raw []byte) (AvailabilityRule, error) {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return AvailabilityRule{Type: AvailabilityAlways}, nil
	}
	var r AvailabilityRule
	if err := json.Unmarshal(raw, &r); err != nil {
		return AvailabilityRule{}, fmt.Errorf("decode availability rule: %w", err)
	}
	if r.Type == "" {
		r.Type = AvailabilityAlways
	}
	return r, r.Validate()
}

// Validate checks that the rule's dates are well formed for its type.
func (r AvailabilityRule) Validate() error {
	switch r.Type {
	case AvailabilityAlways:
		return nil
	case AvailabilitySingle:
		if _, err := ParseDay(r.Date); err != nil {
			return fmt.Errorf("single availability needs a date: %w", err)
		}
		return nil
	case AvailabilityList:
		if len(r.Dates) == 0 {
			return fmt.Errorf("list availability needs at least one date")
		}
		for _, d := range r.Dates {
			if _, err := ParseDay(d); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown availability type %q", r.Type)
}

// Allows reports whether day is bookable under the rule.
func (r AvailabilityRule) Allows(day time.Time) bool {
	key := FormatDay(day)
	switch r.Type {
	case AvailabilitySingle:
		return r.Date == key
	case AvailabilityList:
		for _, d := range r.Dates {
			if d == key {
				return true
			}
		}
		return false
	}
	return true
}

// JSON returns the column value for experiences.available_dates.
func (r AvailabilityRule) JSON() ([]byte, error) {
	if r.Type == "" {
		r.Type = AvailabilityAlways
	}
	return json.Marshal(r)
}
