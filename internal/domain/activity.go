// Package domain defines the shared trip-planning records and the closed
// enumerations that validation matches exhaustively.
package domain

import "time"

// Category is the closed set of activity categories.
type Category string

const (
	CategoryCulture    Category = "Culture"
	CategoryDecouverte Category = "Découverte"
	CategoryFood       Category = "Food"
	CategoryNightlife  Category = "Nightlife"
	CategoryShopping   Category = "Shopping"
	CategoryNature     Category = "Nature"
	CategoryExperience Category = "Expérience"
	CategoryTransport  Category = "Transport"
	CategoryAutre      Category = "Autre"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCulture, CategoryDecouverte, CategoryFood, CategoryNightlife,
		CategoryShopping, CategoryNature, CategoryExperience, CategoryTransport,
		CategoryAutre:
		return true
	}
	return false
}

// Categories lists every category, in display order.
func Categories() []Category {
	return []Category{
		CategoryCulture, CategoryDecouverte, CategoryFood, CategoryNightlife,
		CategoryShopping, CategoryNature, CategoryExperience, CategoryTransport,
		CategoryAutre,
	}
}

// TimeSlot is the suggested moment of day for an activity. Empty means no
// suggestion.
type TimeSlot string

const (
	TimeSlotNone      TimeSlot = ""
	TimeSlotMatin     TimeSlot = "Matin"
	TimeSlotApresMidi TimeSlot = "Après-midi"
	TimeSlotSoiree    TimeSlot = "Soirée"
	TimeSlotJournee   TimeSlot = "Journée"
)

// Valid reports whether s is a known time slot (the empty slot counts).
func (s TimeSlot) Valid() bool {
	switch s {
	case TimeSlotNone, TimeSlotMatin, TimeSlotApresMidi, TimeSlotSoiree, TimeSlotJournee:
		return true
	}
	return false
}

// Activity is one catalog entry of the shared group.
type Activity struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Category            Category  `json:"category"`
	Neighborhood        string    `json:"neighborhood"`
	Address             string    `json:"address"`
	Image               string    `json:"image"`
	MapsLink            string    `json:"mapsLink"`
	Rating              *float64  `json:"rating"`
	AveragePriceKrw     *float64  `json:"averagePriceKrw"`
	ReservationRequired bool      `json:"reservationRequired"`
	SuggestedTimeSlot   TimeSlot  `json:"suggestedTimeSlot"`
	Notes               string    `json:"notes"`
	CreateBy            string    `json:"createBy"`
	CreateByName        string    `json:"createByName"`
	FavoritesUser       []string  `json:"favoritesUser"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// IsFavoriteOf reports whether uid is in the favorites set.
func (a Activity) IsFavoriteOf(uid string) bool {
	for _, member := range a.FavoritesUser {
		if member == uid {
			return true
		}
	}
	return false
}

// ActivityDraft is the caller-supplied payload for creating an activity.
// Optional numeric fields are pointers so "absent" survives the transport.
type ActivityDraft struct {
	Name                string
	Category            string
	Neighborhood        string
	Address             string
	Image               string
	MapsLink            string
	GoogleQuery         string
	Rating              *float64
	AveragePriceKrw     *float64
	ReservationRequired bool
	SuggestedTimeSlot   string
	Notes               string
}
