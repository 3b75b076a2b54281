package domain

import "time"

type PetSpecies string

const (
	SpeciesDog   PetSpecies = "dog"
	SpeciesCat   PetSpecies = "cat"
	SpeciesOther PetSpecies = "other"
)

// AgeBucket is the coarse age grouping used by deck preference filters.
type AgeBucket string

const (
	AgeYoung  AgeBucket = "young"
	AgeAdult  AgeBucket = "adult"
	AgeSenior AgeBucket = "senior"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchConfirmed MatchStatus = "confirmed"
	MatchClosed    MatchStatus = "closed"
)

// Pet is an adoptable animal listed by a shelter. The swipe core reads pets;
// it never mutates them except through photo uploads.
type Pet struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Species     PetSpecies `json:"species"`
	Breed       string     `json:"breed,omitempty"`
	Description string     `json:"description,omitempty"`
	AgeMonths   int        `json:"ageMonths"`
	City        string     `json:"city,omitempty"`
	ShelterName string     `json:"shelterName,omitempty"`
	PhotoKeys   []string   `json:"-"`
	Available   bool       `json:"available"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// AgeBucket maps the pet's age in months onto the filter buckets.
func (p Pet) AgeBucket() AgeBucket {
	switch {
	case p.AgeMonths < 12:
		return AgeYoung
	case p.AgeMonths < 84:
		return AgeAdult
	default:
		return AgeSenior
	}
}

// Preferences are soft deck filters; empty fields mean "no preference".
type Preferences struct {
	Species   PetSpecies `json:"species,omitempty"`
	AgeBucket AgeBucket  `json:"ageBucket,omitempty"`
	City      string     `json:"city,omitempty"`
}

// AppUser is an adopter account. Profile and auth flows live outside the
// swipe core; only ID and Preferences matter here.
type AppUser struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName,omitempty"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Swipe records one user's decision on one pet. At most one Swipe may ever
// exist per (UserID, PetID); the first decision is authoritative.
type Swipe struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PetID     string    `json:"petId"`
	Liked     bool      `json:"liked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Match promotes a liked swipe to an adoption candidate pairing. At most one
// Match may exist per (UserID, PetID).
type Match struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	PetID     string      `json:"petId"`
	Status    MatchStatus `json:"status"`
	MatchedAt time.Time   `json:"matchedAt"`
}
