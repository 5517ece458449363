// Package validate holds the domain rules applied to drafts and patches
// before anything is sent to the store. Rules return a message for the user
// (empty means valid); callers turn a non-empty message into a rejected
// operation without issuing any store call.
package validate

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"example.com/tripboard/internal/domain"
	"example.com/tripboard/internal/store"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Date reports whether s is a canonical YYYY-MM-DD planning date. Both the
// shape and the calendar are checked, so "2024-13-40" is rejected.
func Date(s string) bool {
	if !dateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Activity checks a creation draft against the catalog rules.
func Activity(d domain.ActivityDraft) string {
	if strings.TrimSpace(d.Name) == "" || len([]rune(strings.TrimSpace(d.Name))) < 2 {
		return "Le nom est requis (≥ 2 caractères)."
	}
	if d.Category == "" {
		return "La catégorie est requise."
	}
	if !domain.Category(d.Category).Valid() {
		return "Catégorie inconnue."
	}
	if d.Rating != nil && (*d.Rating < 0 || *d.Rating > 5) {
		return "Note 0–5."
	}
	if d.AveragePriceKrw != nil && *d.AveragePriceKrw < 0 {
		return "Prix moyen invalide."
	}
	if !domain.TimeSlot(d.SuggestedTimeSlot).Valid() {
		return "Créneau suggéré inconnu."
	}
	return ""
}

// ActivityPatch checks the mutable fields of an update patch. Absent fields
// pass; present fields obey the same bounds as creation.
func ActivityPatch(patch store.Document) string {
	if raw, ok := patch["name"]; ok {
		name, _ := raw.(string)
		if len([]rune(strings.TrimSpace(name))) < 2 {
			return "Le nom est requis (≥ 2 caractères)."
		}
	}
	if raw, ok := patch["category"]; ok {
		category, _ := raw.(string)
		if !domain.Category(category).Valid() || category == "" {
			return "Catégorie inconnue."
		}
	}
	if rating, ok := numberField(patch, "rating"); ok && (rating < 0 || rating > 5) {
		return "Note 0–5."
	}
	if price, ok := numberField(patch, "averagePriceKrw"); ok && price < 0 {
		return "Prix moyen invalide."
	}
	return ""
}

// PlanningItem checks a planning draft.
func PlanningItem(d domain.PlanningDraft) string {
	if strings.TrimSpace(d.Title) == "" || len([]rune(strings.TrimSpace(d.Title))) < 2 {
		return "Le titre est requis (≥ 2 caractères)."
	}
	if d.When != "" && !Date(d.When) {
		return "Format de date invalide (YYYY-MM-DD)."
	}
	if d.Period != "" && !domain.Period(d.Period).Valid() {
		return "Période inconnue."
	}
	return ""
}

// SanitizePatch returns a copy of patch with legacy fields stripped. The
// deprecated durationMin field still arrives from old clients and is
// dropped silently rather than rejected.
func SanitizePatch(patch store.Document) store.Document {
	out := make(store.Document, len(patch))
	for k, v := range patch {
		if k == "durationMin" {
			continue
		}
		out[k] = v
	}
	return out
}

func numberField(patch store.Document, key string) (float64, bool) {
	switch v := patch[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
