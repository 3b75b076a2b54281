package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pawmatch/pkg/cache"
	"pawmatch/pkg/domain"
	"pawmatch/pkg/queue"
	"pawmatch/pkg/storage"
	"pawmatch/pkg/store"
)

type fakeResizer struct {
	jobs []queue.JobStatus
	fail bool
}

func (f *fakeResizer) Enqueue(_ context.Context, petID, storageKey string) (queue.JobStatus, error) {
	if f.fail {
		return queue.JobStatus{}, errors.New("queue down")
	}
	job := queue.JobStatus{
		ID:         fmt.Sprintf("job-%d", len(f.jobs)+1),
		PetID:      petID,
		StorageKey: storageKey,
		Status:     queue.StatusQueued,
	}
	f.jobs = append(f.jobs, job)
	return job, nil
}

type fixture struct {
	app     *App
	store   *store.MemoryStore
	objects *storage.MemoryObjectStore
	resizer *fakeResizer
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T, requireAvail bool) *fixture {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	memStore := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	resizer := &fakeResizer{}
	core, err := New(Config{
		Store:                 memStore,
		Decks:                 cache.NewRedisDeckCache(client, time.Hour),
		Resizer:               resizer,
		Objects:               objects,
		DeckMinSize:           2,
		DeckMaxSize:           100,
		MatchRequireAvailable: requireAvail,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &fixture{app: core, store: memStore, objects: objects, resizer: resizer, redis: srv}
}

func (f *fixture) seedUser(t *testing.T, id string) {
	t.Helper()
	err := f.store.SaveUser(context.Background(), domain.AppUser{
		ID:        id,
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("save user: %v", err)
	}
}

func (f *fixture) seedPets(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("pet-%02d", i)
		err := f.store.SavePet(context.Background(), domain.Pet{
			ID:        id,
			Name:      "Pet " + id,
			Species:   domain.SpeciesDog,
			AgeMonths: 24,
			Available: true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("save pet: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestGetDeckEmptyPoolReturnsEmptyDeck(t *testing.T) {
	f := newFixture(t, true)
	f.seedUser(t, "u1")
	deck, err := f.app.GetDeck(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(deck) != 0 {
		t.Fatalf("want empty deck, got %v", deck)
	}
}

func TestGetDeckUnknownUser(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.app.GetDeck(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestGetDeckExcludesSwipedPets(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 5)
	if _, err := f.app.RecordSwipe(ctx, "u1", "pet-00", false); err != nil {
		t.Fatalf("swipe: %v", err)
	}

	deck, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(deck) != 4 {
		t.Fatalf("want 4 pets, got %d", len(deck))
	}
	for _, id := range deck {
		if id == "pet-00" {
			t.Fatalf("swiped pet present in freshly generated deck")
		}
	}
}

func TestGetDeckServesCachedDeckUnchanged(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 10)

	first, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	// A new pet arriving must not perturb the cached deck.
	if err := f.store.SavePet(ctx, domain.Pet{ID: "pet-new", Species: domain.SpeciesDog, AgeMonths: 12, Available: true}); err != nil {
		t.Fatalf("save pet: %v", err)
	}
	second, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("cached deck changed size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached deck order changed at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestRecordSwipeEvictsFromCachedDeck(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 10)

	deck, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	target := deck[0]
	if _, err := f.app.RecordSwipe(ctx, "u1", target, false); err != nil {
		t.Fatalf("swipe: %v", err)
	}

	after, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(after) != len(deck)-1 {
		t.Fatalf("want %d pets after eviction, got %d", len(deck)-1, len(after))
	}
	for _, id := range after {
		if id == target {
			t.Fatalf("swiped pet still in cached deck")
		}
	}
}

func TestSwipeThroughWholeDeckTriggersRegeneration(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 6)

	deck, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	for _, id := range deck {
		if _, err := f.app.RecordSwipe(ctx, "u1", id, false); err != nil {
			t.Fatalf("swipe %s: %v", id, err)
		}
	}

	// Fresh pets arrive; the drained deck must regenerate and exclude all
	// previously swiped pets.
	if err := f.store.SavePet(ctx, domain.Pet{ID: "pet-fresh", Species: domain.SpeciesDog, AgeMonths: 12, Available: true}); err != nil {
		t.Fatalf("save pet: %v", err)
	}
	next, err := f.app.GetDeck(ctx, "u1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(next) != 1 || next[0] != "pet-fresh" {
		t.Fatalf("regenerated deck must contain only the fresh pet, got %v", next)
	}
}

func TestRecordSwipeDuplicateReturnsPriorDecision(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 3)

	first, err := f.app.RecordSwipe(ctx, "u1", "pet-01", true)
	if err != nil {
		t.Fatalf("first swipe: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first swipe must not be a duplicate")
	}

	second, err := f.app.RecordSwipe(ctx, "u1", "pet-01", false)
	if err != nil {
		t.Fatalf("duplicate swipe must not be an error, got %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("second swipe must report duplicate")
	}
	if !second.Swipe.Liked || second.Swipe.ID != first.Swipe.ID {
		t.Fatalf("duplicate must return the prior decision, got %+v", second.Swipe)
	}
}

func TestRecordSwipeLikeCreatesExactlyOneMatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 3)

	first, err := f.app.RecordSwipe(ctx, "u1", "pet-01", true)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if first.Match == nil {
		t.Fatalf("liked swipe must produce a match")
	}

	// Retried like: duplicate swipe, same match, no second row.
	second, err := f.app.RecordSwipe(ctx, "u1", "pet-01", true)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if second.Match == nil || second.Match.ID != first.Match.ID {
		t.Fatalf("retry must return the existing match, got %+v", second.Match)
	}
	matches, err := f.app.ListMatches(ctx, "u1")
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("want exactly one match, got %d", len(matches))
	}
}

func TestRecordSwipePassDoesNotMatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 3)

	result, err := f.app.RecordSwipe(ctx, "u1", "pet-01", false)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if result.Match != nil {
		t.Fatalf("pass must not create a match")
	}
	if match, _ := f.app.MaybeCreateMatch(ctx, "u1", "pet-01"); match != nil {
		t.Fatalf("match engine must not promote a pass")
	}
}

func TestMatchGatedOnAvailability(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	if err := f.store.SavePet(ctx, domain.Pet{ID: "pet-gone", Species: domain.SpeciesCat, AgeMonths: 12, Available: false}); err != nil {
		t.Fatalf("save pet: %v", err)
	}
	result, err := f.app.RecordSwipe(ctx, "u1", "pet-gone", true)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if result.Match != nil {
		t.Fatalf("unavailable pet must not match while gating is on")
	}
}

func TestMatchAvailabilityGateIsPolicy(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.seedUser(t, "u1")
	if err := f.store.SavePet(ctx, domain.Pet{ID: "pet-gone", Species: domain.SpeciesCat, AgeMonths: 12, Available: false}); err != nil {
		t.Fatalf("save pet: %v", err)
	}
	result, err := f.app.RecordSwipe(ctx, "u1", "pet-gone", true)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if result.Match == nil {
		t.Fatalf("with gating off, a liked swipe must match")
	}
}

func TestMaybeCreateMatchTreatsAdminMatchAsPreexisting(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 2)

	// Admin assignment created out of band.
	admin := domain.Match{ID: "admin-match", UserID: "u1", PetID: "pet-00", Status: domain.MatchConfirmed, MatchedAt: time.Now().UTC()}
	if _, _, err := f.store.CreateMatchIfAbsent(ctx, admin); err != nil {
		t.Fatalf("seed admin match: %v", err)
	}

	result, err := f.app.RecordSwipe(ctx, "u1", "pet-00", true)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if result.Match == nil || result.Match.ID != "admin-match" {
		t.Fatalf("pre-existing match must be returned, not duplicated: %+v", result.Match)
	}
}

func TestRecordSwipeUnknownPet(t *testing.T) {
	f := newFixture(t, true)
	f.seedUser(t, "u1")
	if _, err := f.app.RecordSwipe(context.Background(), "u1", "ghost", true); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("want ErrPetNotFound, got %v", err)
	}
}

func TestUploadPhotoStoresOriginalAndEnqueues(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedPets(t, 1)

	payload := strings.NewReader("not-really-a-jpeg")
	result, err := f.app.UploadPhoto(ctx, "pet-00", "fluffy.jpg", payload, int64(payload.Len()))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(result.StorageKey, "pets/pet-00/original/") {
		t.Fatalf("unexpected storage key: %s", result.StorageKey)
	}
	if _, ok := f.objects.Bytes(result.StorageKey); !ok {
		t.Fatalf("original not stored")
	}
	if len(f.resizer.jobs) != 1 || f.resizer.jobs[0].StorageKey != result.StorageKey {
		t.Fatalf("resize job not enqueued: %+v", f.resizer.jobs)
	}
	pet, _, err := f.store.GetPet(ctx, "pet-00")
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	if len(pet.PhotoKeys) != 1 || pet.PhotoKeys[0] != result.StorageKey {
		t.Fatalf("photo key not recorded on pet: %+v", pet.PhotoKeys)
	}
}

func TestEnqueueResizeQueueUnavailable(t *testing.T) {
	f := newFixture(t, true)
	f.resizer.fail = true
	if _, err := f.app.EnqueueResize(context.Background(), "pet-00", "pets/pet-00/original/a.jpg"); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("want ErrQueueUnavailable, got %v", err)
	}
}

func TestDeckCardsSkipsDelistedPets(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seedUser(t, "u1")
	f.seedPets(t, 4)

	if _, err := f.app.GetDeck(ctx, "u1"); err != nil {
		t.Fatalf("warm deck: %v", err)
	}
	// Delist one pet after the deck was cached.
	pet, _, _ := f.store.GetPet(ctx, "pet-02")
	pet.Available = false
	if err := f.store.SavePet(ctx, pet); err != nil {
		t.Fatalf("save pet: %v", err)
	}

	cards, err := f.app.DeckCards(ctx, "u1")
	if err != nil {
		t.Fatalf("deck cards: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("want 3 cards, got %d", len(cards))
	}
	for _, card := range cards {
		if card.ID == "pet-02" {
			t.Fatalf("delisted pet served as a card")
		}
	}
}
