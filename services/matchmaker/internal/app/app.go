package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pawmatch/internal/util"
	"pawmatch/pkg/cache"
	"pawmatch/pkg/domain"
	"pawmatch/pkg/metrics"
	"pawmatch/pkg/queue"
	"pawmatch/pkg/storage"
	"pawmatch/pkg/store"
)

// ResizeEnqueuer publishes resize jobs; satisfied by *queue.ResizeQueue.
type ResizeEnqueuer interface {
	Enqueue(ctx context.Context, petID, storageKey string) (queue.JobStatus, error)
}

// Config holds runtime configuration for the matchmaker core.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Decks       cache.DeckCache
	Resizer     ResizeEnqueuer
	Objects     storage.ObjectStore
	Metrics     *metrics.Collector

	DeckMinSize int
	DeckMaxSize int
	// MatchRequireAvailable gates match creation on pet availability.
	MatchRequireAvailable bool
	ThumbnailTag          string
	PresignExpiry         time.Duration
}

// App wires the deck generator, swipe recorder, match engine and upload
// intake together.
type App struct {
	store         store.Store
	decks         cache.DeckCache
	resizer       ResizeEnqueuer
	objects       storage.ObjectStore
	metrics       *metrics.Collector
	deckMinSize   int
	deckMaxSize   int
	requireAvail  bool
	thumbnailTag  string
	presignExpiry time.Duration
}

// New constructs the matchmaker core. Store may be injected for tests; when
// nil it is built from DatabaseURL.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Decks == nil {
		return nil, errors.New("deck cache required")
	}
	if cfg.Resizer == nil {
		return nil, errors.New("resize queue required")
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	deckMinSize := cfg.DeckMinSize
	if deckMinSize <= 0 {
		deckMinSize = 10
	}
	deckMaxSize := cfg.DeckMaxSize
	if deckMaxSize <= 0 {
		deckMaxSize = 100
	}
	thumbnailTag := strings.TrimSpace(cfg.ThumbnailTag)
	if thumbnailTag == "" {
		thumbnailTag = "w256"
	}
	presignExpiry := cfg.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &App{
		store:         dataStore,
		decks:         cfg.Decks,
		resizer:       cfg.Resizer,
		objects:       cfg.Objects,
		metrics:       collector,
		deckMinSize:   deckMinSize,
		deckMaxSize:   deckMaxSize,
		requireAvail:  cfg.MatchRequireAvailable,
		thumbnailTag:  thumbnailTag,
		presignExpiry: presignExpiry,
	}, nil
}

// Metrics exposes the collector for the HTTP layer.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// GetDeck returns the user's current deck of pet IDs, generating and caching
// a fresh one on a miss. An empty candidate pool yields an empty deck, not
// an error. Nothing is cached when generation fails partway.
func (a *App) GetDeck(ctx context.Context, userID string) ([]string, error) {
	ids, ok, err := a.decks.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if ok {
		a.metrics.RecordDeckCacheHit()
		return ids, nil
	}
	a.metrics.RecordDeckCacheMiss()

	user, found, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return nil, ErrUserNotFound
	}
	candidates, err := a.store.ListAdoptablePets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	deck := buildDeck(candidates, user.Preferences, a.deckMinSize, a.deckMaxSize)
	if len(deck) == 0 {
		return []string{}, nil
	}
	if err := a.decks.Put(ctx, userID, deck); err != nil {
		// Serve the generated deck anyway; the next request regenerates
		// from the store, which stays correct because swiped pets are
		// excluded there too.
		util.LoggerFromContext(ctx).Warn("deck cache write failed", "user_id", userID, "err", err)
	}
	a.metrics.RecordDeckGenerated()
	return deck, nil
}

// DeckCards returns the deck hydrated into pet cards with presigned
// thumbnail URLs. Pets delisted since generation are skipped.
func (a *App) DeckCards(ctx context.Context, userID string) ([]domain.Pet, error) {
	ids, err := a.GetDeck(ctx, userID)
	if err != nil {
		return nil, err
	}
	cards := make([]domain.Pet, 0, len(ids))
	for _, id := range ids {
		pet, ok, err := a.store.GetPet(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok || !pet.Available {
			continue
		}
		cards = append(cards, pet)
	}
	return cards, nil
}

// SwipeResult is the outcome of RecordSwipe. Duplicate means the pair was
// already decided; Swipe then carries the prior, authoritative decision.
type SwipeResult struct {
	Swipe     domain.Swipe
	Match     *domain.Match
	Duplicate bool
}

// RecordSwipe persists the decision, evicts the pet from the cached deck and
// invokes the match engine on a like. A duplicate is a normal outcome, not
// an error: the prior decision is returned.
func (a *App) RecordSwipe(ctx context.Context, userID, petID string, liked bool) (SwipeResult, error) {
	if _, ok, err := a.store.GetPet(ctx, petID); err != nil {
		return SwipeResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	} else if !ok {
		return SwipeResult{}, ErrPetNotFound
	}

	swipe := domain.Swipe{
		ID:        uuid.NewString(),
		UserID:    userID,
		PetID:     petID,
		Liked:     liked,
		CreatedAt: time.Now().UTC(),
	}
	err := a.store.CreateSwipe(ctx, swipe)
	if errors.Is(err, store.ErrDuplicateSwipe) {
		return a.priorDecision(ctx, userID, petID)
	}
	if err != nil {
		return SwipeResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	a.metrics.RecordSwipe(liked)

	// Cache eviction is best-effort: a stale entry only costs one extra
	// duplicate-swipe round trip, while failing the swipe would lose the
	// user's decision.
	if err := a.decks.Remove(ctx, userID, petID); err != nil {
		util.LoggerFromContext(ctx).Warn("deck eviction failed", "user_id", userID, "pet_id", petID, "err", err)
	}

	result := SwipeResult{Swipe: swipe}
	if liked {
		match, err := a.MaybeCreateMatch(ctx, userID, petID)
		if err != nil {
			// The swipe is durable and match creation is idempotent, so a
			// retried swipe (DuplicateSwipe path) or a later invocation
			// completes the match.
			util.LoggerFromContext(ctx).Error("match creation failed", "user_id", userID, "pet_id", petID, "err", err)
		} else {
			result.Match = match
		}
	}
	return result, nil
}

// priorDecision resolves the DuplicateSwipe outcome: load the authoritative
// swipe and, when it was a like, re-run the idempotent match engine so a
// crash between swipe and match writes heals on retry.
func (a *App) priorDecision(ctx context.Context, userID, petID string) (SwipeResult, error) {
	a.metrics.RecordDuplicateSwipe()
	prior, ok, err := a.store.GetSwipe(ctx, userID, petID)
	if err != nil {
		return SwipeResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return SwipeResult{}, fmt.Errorf("%w: duplicate swipe for user %s pet %s but no row found", store.ErrConsistency, userID, petID)
	}
	result := SwipeResult{Swipe: prior, Duplicate: true}
	if prior.Liked {
		match, err := a.MaybeCreateMatch(ctx, userID, petID)
		if err != nil {
			util.LoggerFromContext(ctx).Error("match creation failed on retry", "user_id", userID, "pet_id", petID, "err", err)
		} else {
			result.Match = match
		}
	}
	return result, nil
}

// MaybeCreateMatch promotes a liked swipe to a match exactly once. It
// returns nil without error when the pair does not qualify: no liked swipe,
// or the pet is unavailable while availability gating is on. Invoking it
// again for the same pair returns the existing match.
func (a *App) MaybeCreateMatch(ctx context.Context, userID, petID string) (*domain.Match, error) {
	swipe, ok, err := a.store.GetSwipe(ctx, userID, petID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok || !swipe.Liked {
		return nil, nil
	}
	if a.requireAvail {
		pet, ok, err := a.store.GetPet(ctx, petID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok || !pet.Available {
			return nil, nil
		}
	}
	match, created, err := a.store.CreateMatchIfAbsent(ctx, domain.Match{
		ID:        uuid.NewString(),
		UserID:    userID,
		PetID:     petID,
		Status:    domain.MatchPending,
		MatchedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConsistency) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created {
		a.metrics.RecordMatchCreated()
	}
	return &match, nil
}

// ListMatches returns the user's matches, newest first.
func (a *App) ListMatches(ctx context.Context, userID string) ([]domain.Match, error) {
	matches, err := a.store.ListMatchesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return matches, nil
}

// UploadResult reports where the original landed and the queued resize job.
type UploadResult struct {
	StorageKey string          `json:"storageKey"`
	Job        queue.JobStatus `json:"job"`
}

// UploadPhoto stores the original image and enqueues thumbnail generation.
// The original is kept even when enqueueing fails, so the job can be
// re-driven through EnqueueResize.
func (a *App) UploadPhoto(ctx context.Context, petID, filename string, r io.Reader, size int64) (UploadResult, error) {
	if a.objects == nil {
		return UploadResult{}, errors.New("object storage not configured")
	}
	if _, ok, err := a.store.GetPet(ctx, petID); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	} else if !ok {
		return UploadResult{}, ErrPetNotFound
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("pets/%s/original/%s%s", petID, util.NewID(), ext)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return UploadResult{}, fmt.Errorf("save photo: %w", err)
	}
	if err := a.store.AppendPetPhoto(ctx, petID, key); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	job, err := a.EnqueueResize(ctx, petID, key)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{StorageKey: key, Job: job}, nil
}

// EnqueueResize publishes a resize job for an already-stored original.
func (a *App) EnqueueResize(ctx context.Context, petID, storageKey string) (queue.JobStatus, error) {
	job, err := a.resizer.Enqueue(ctx, petID, storageKey)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return job, nil
}

// ThumbnailURLs presigns the thumbnail variant of each pet photo. The URLs
// resolve once the image worker has produced the variants.
func (a *App) ThumbnailURLs(ctx context.Context, pet domain.Pet) []string {
	if a.objects == nil {
		return nil
	}
	urls := make([]string, 0, len(pet.PhotoKeys))
	for _, key := range pet.PhotoKeys {
		thumbKey := storage.VariantKey(key, a.thumbnailTag)
		url, err := a.objects.PresignGet(ctx, thumbKey, a.presignExpiry)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("presign failed", "key", thumbKey, "err", err)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}
