package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pawmatch/pkg/domain"
)

// MemoryStore keeps everything in-process. It mirrors the uniqueness
// semantics of the Postgres store under a mutex, which makes it a faithful
// substitute in tests, including concurrent ones.
type MemoryStore struct {
	mu       sync.RWMutex
	pets     map[string]domain.Pet
	petOrder []string
	users    map[string]domain.AppUser
	swipes   map[string]domain.Swipe // key: userID + "\x00" + petID
	matches  map[string]domain.Match // same key shape
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pets:    make(map[string]domain.Pet),
		users:   make(map[string]domain.AppUser),
		swipes:  make(map[string]domain.Swipe),
		matches: make(map[string]domain.Match),
	}
}

func pairKey(userID, petID string) string {
	return userID + "\x00" + petID
}

func (m *MemoryStore) SavePet(_ context.Context, p domain.Pet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pets[p.ID]; !exists {
		m.petOrder = append(m.petOrder, p.ID)
	}
	m.pets[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPet(_ context.Context, id string) (domain.Pet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pet, ok := m.pets[id]
	return pet, ok, nil
}

func (m *MemoryStore) AppendPetPhoto(_ context.Context, petID, photoKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pet, ok := m.pets[petID]
	if !ok {
		return fmt.Errorf("pet %s not found", petID)
	}
	pet.PhotoKeys = append(pet.PhotoKeys, photoKey)
	pet.UpdatedAt = time.Now().UTC()
	m.pets[petID] = pet
	return nil
}

func (m *MemoryStore) ListAdoptablePets(_ context.Context, userID string) ([]domain.Pet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pets := make([]domain.Pet, 0, len(m.petOrder))
	for _, id := range m.petOrder {
		pet := m.pets[id]
		if !pet.Available {
			continue
		}
		if _, swiped := m.swipes[pairKey(userID, id)]; swiped {
			continue
		}
		pets = append(pets, pet)
	}
	return pets, nil
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.AppUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (domain.AppUser, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) CreateSwipe(_ context.Context, s domain.Swipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(s.UserID, s.PetID)
	if _, exists := m.swipes[key]; exists {
		return ErrDuplicateSwipe
	}
	m.swipes[key] = s
	return nil
}

func (m *MemoryStore) GetSwipe(_ context.Context, userID, petID string) (domain.Swipe, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	swipe, ok := m.swipes[pairKey(userID, petID)]
	return swipe, ok, nil
}

func (m *MemoryStore) ListSwipedPetIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for _, swipe := range m.swipes {
		if swipe.UserID == userID {
			ids = append(ids, swipe.PetID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) CreateMatchIfAbsent(_ context.Context, match domain.Match) (domain.Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(match.UserID, match.PetID)
	if existing, exists := m.matches[key]; exists {
		return existing, false, nil
	}
	m.matches[key] = match
	return match, true, nil
}

func (m *MemoryStore) GetMatch(_ context.Context, userID, petID string) (domain.Match, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[pairKey(userID, petID)]
	return match, ok, nil
}

func (m *MemoryStore) ListMatchesByUser(_ context.Context, userID string) ([]domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]domain.Match, 0)
	for _, match := range m.matches {
		if match.UserID == userID {
			matches = append(matches, match)
		}
	}
	return matches, nil
}
