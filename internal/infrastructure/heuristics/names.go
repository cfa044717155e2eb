// Package heuristics provides last-resort guesses for missing profile data.
package heuristics

import (
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// NameList guesses a gender from the first given name.
// It only picks a tentative label; the result is never stored on the person.
type NameList struct {
	names map[string]entities.Gender
}

var defaultMale = []string{
	"adam", "ahmed", "ali", "amir", "bilal", "daniel", "david", "faisal", "george",
	"hamza", "hassan", "hussein", "ibrahim", "ismail", "jacob", "james", "john",
	"karim", "khalid", "mahmoud", "michael", "mohammed", "muhammad", "mustafa",
	"omar", "paul", "peter", "robert", "sami", "samir", "thomas", "tariq",
	"william", "yahya", "youssef", "yusuf", "zaid",
}

var defaultFemale = []string{
	"aisha", "amina", "anna", "asma", "elizabeth", "emma", "fatima", "hana",
	"huda", "khadija", "layla", "leila", "linda", "maria", "mariam", "mary",
	"maryam", "nadia", "noor", "nour", "rania", "salma", "sara", "sarah",
	"sophia", "yasmin", "zainab", "zahra",
}

// NewNameList builds a guesser from the built-in lists plus extra entries.
// Extra entries override the built-in ones.
func NewNameList(extra map[string]entities.Gender) *NameList {
	names := make(map[string]entities.Gender, len(defaultMale)+len(defaultFemale)+len(extra))
	for _, n := range defaultMale {
		names[n] = entities.GenderMale
	}
	for _, n := range defaultFemale {
		names[n] = entities.GenderFemale
	}
	for n, g := range extra {
		names[strings.ToLower(strings.TrimSpace(n))] = g
	}
	return &NameList{names: names}
}

// GuessGender returns the listed gender of the first word of name, or unknown.
func (l *NameList) GuessGender(name string) entities.Gender {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return entities.GenderUnknown
	}
	if g, ok := l.names[fields[0]]; ok {
		return g
	}
	return entities.GenderUnknown
}
