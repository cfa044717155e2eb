// Package entities contains core domain data structures.
package entities

import (
	"strings"
	"time"
)

// Gender is the declared gender of a person.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender converts free-form input to a Gender. Anything unrecognized is unknown.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "man":
		return GenderMale
	case "female", "f", "woman":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Known reports whether the gender was declared.
func (g Gender) Known() bool {
	return g == GenderMale || g == GenderFemale
}

// Person is the subset of a user profile the kinship engine reads.
// Profiles are owned elsewhere; the engine only looks at gender and birth date.
type Person struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"` // Lowercase for matching (e.g., "amina")
	Gender         Gender     `json:"gender"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GenderOf returns the person's gender, treating a nil person as unknown.
func GenderOf(p *Person) Gender {
	if p == nil || p.Gender == "" {
		return GenderUnknown
	}
	return p.Gender
}

// AgeAt returns the person's age in whole years at t, and false when the birth date is unknown.
func (p *Person) AgeAt(t time.Time) (int, bool) {
	if p == nil || p.BirthDate == nil {
		return 0, false
	}
	b := *p.BirthDate
	years := t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		years--
	}
	return years, true
}

// NormalizeName converts a name to lowercase for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
