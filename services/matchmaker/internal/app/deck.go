package app

import (
	"math/rand"

	"pawmatch/pkg/domain"
)

// deckFilters are the soft preference filters applied during deck
// generation. A zero field means the filter is off.
type deckFilters struct {
	species   domain.PetSpecies
	ageBucket domain.AgeBucket
	city      string
}

func filtersFromPreferences(p domain.Preferences) deckFilters {
	return deckFilters{
		species:   p.Species,
		ageBucket: p.AgeBucket,
		city:      p.City,
	}
}

func (f deckFilters) matches(pet domain.Pet) bool {
	if f.species != "" && pet.Species != f.species {
		return false
	}
	if f.ageBucket != "" && pet.AgeBucket() != f.ageBucket {
		return false
	}
	if f.city != "" && pet.City != f.city {
		return false
	}
	return true
}

// relaxStep disables one filter. Steps run in a fixed precedence order
// until the deck reaches its minimum viable size, which keeps the
// relax-before-empty rule explicit and testable on its own.
type relaxStep struct {
	name string
	drop func(*deckFilters)
}

var relaxOrder = []relaxStep{
	{name: "location", drop: func(f *deckFilters) { f.city = "" }},
	{name: "age", drop: func(f *deckFilters) { f.ageBucket = "" }},
	{name: "type", drop: func(f *deckFilters) { f.species = "" }},
}

// buildDeck filters candidates by preference, relaxing filters in order when
// the result would be smaller than minSize, then shuffles uniformly and
// truncates to maxSize. Candidates must already exclude swiped pets.
func buildDeck(candidates []domain.Pet, prefs domain.Preferences, minSize, maxSize int) []string {
	filters := filtersFromPreferences(prefs)
	selected := filterPets(candidates, filters)
	for _, step := range relaxOrder {
		if len(selected) >= minSize {
			break
		}
		step.drop(&filters)
		selected = filterPets(candidates, filters)
	}

	ids := make([]string, 0, len(selected))
	for _, pet := range selected {
		ids = append(ids, pet.ID)
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	if maxSize > 0 && len(ids) > maxSize {
		ids = ids[:maxSize]
	}
	return ids
}

func filterPets(candidates []domain.Pet, filters deckFilters) []domain.Pet {
	out := make([]domain.Pet, 0, len(candidates))
	for _, pet := range candidates {
		if filters.matches(pet) {
			out = append(out, pet)
		}
	}
	return out
}
