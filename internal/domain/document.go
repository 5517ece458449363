package domain

import (
	"encoding/json"
	"time"

	"example.com/tripboard/internal/store"
)

// ActivityFromDocument decodes a stored activity. Unknown fields are
// ignored; missing fields decode to their zero values so partially written
// documents stay readable.
func ActivityFromDocument(doc store.Document) Activity {
	return Activity{
		ID:                  docString(doc, "id"),
		Name:                docString(doc, "name"),
		Category:            Category(docString(doc, "category")),
		Neighborhood:        docString(doc, "neighborhood"),
		Address:             docString(doc, "address"),
		Image:               docString(doc, "image"),
		MapsLink:            docString(doc, "mapsLink"),
		Rating:              docFloatPtr(doc, "rating"),
		AveragePriceKrw:     docFloatPtr(doc, "averagePriceKrw"),
		ReservationRequired: docBool(doc, "reservationRequired"),
		SuggestedTimeSlot:   TimeSlot(docString(doc, "suggestedTimeSlot")),
		Notes:               docString(doc, "notes"),
		CreateBy:            docString(doc, "createBy"),
		CreateByName:        docString(doc, "createByName"),
		FavoritesUser:       docStringSlice(doc, "favoritesUser"),
		CreatedAt:           docTime(doc, "createdAt"),
		UpdatedAt:           docTime(doc, "updatedAt"),
	}
}

// ActivitiesFromDocuments decodes a snapshot list.
func ActivitiesFromDocuments(docs []store.Document) []Activity {
	out := make([]Activity, 0, len(docs))
	for _, doc := range docs {
		out = append(out, ActivityFromDocument(doc))
	}
	return out
}

// PlanningItemFromDocument decodes a stored planning item. Items written
// before the period field existed decode as unsorted.
func PlanningItemFromDocument(doc store.Document) PlanningItem {
	period := Period(docString(doc, "period"))
	if !period.Valid() {
		period = PeriodUnsorted
	}
	return PlanningItem{
		ID:        docString(doc, "id"),
		Title:     docString(doc, "title"),
		Category:  docString(doc, "category"),
		When:      docString(doc, "when"),
		Period:    period,
		Done:      docBool(doc, "done"),
		Time:      docString(doc, "time"),
		Note:      docString(doc, "note"),
		CreatedAt: docTime(doc, "createdAt"),
		UpdatedAt: docTime(doc, "updatedAt"),
	}
}

// GroupFromDocument decodes the shared group document.
func GroupFromDocument(doc store.Document) Group {
	group := Group{
		ID:        docString(doc, "id"),
		Name:      docString(doc, "name"),
		Members:   make(map[string]Member),
		CreatedAt: docTime(doc, "createdAt"),
		UpdatedAt: docTime(doc, "updatedAt"),
	}
	members, _ := doc["members"].(map[string]any)
	if members == nil {
		if typed, ok := doc["members"].(store.Document); ok {
			members = map[string]any(typed)
		}
	}
	for uid, raw := range members {
		entry, ok := raw.(map[string]any)
		if !ok {
			if typed, isDoc := raw.(store.Document); isDoc {
				entry = map[string]any(typed)
			} else {
				continue
			}
		}
		member := store.Document(entry)
		group.Members[uid] = Member{
			Role:        docString(member, "role"),
			JoinedAt:    docTime(member, "joinedAt"),
			DisplayName: docString(member, "displayName"),
		}
	}
	return group
}

func docString(doc store.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docBool(doc store.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func docFloatPtr(doc store.Document, key string) *float64 {
	switch v := doc[key].(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func docTime(doc store.Document, key string) time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func docStringSlice(doc store.Document, key string) []string {
	switch v := doc[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
