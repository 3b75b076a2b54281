package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"pawmatch/pkg/domain"
)

const migrateLockID int64 = 52905290

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent service replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&PetModel{}, &UserModel{}, &SwipeModel{}, &MatchModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SavePet inserts or updates a pet listing.
func (s *GormStore) SavePet(ctx context.Context, p domain.Pet) error {
	model := petToModel(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "species", "breed", "description", "age_months",
			"city", "shelter_name", "photo_keys", "available", "updated_at",
		}),
	}).Create(&model).Error
}

// GetPet retrieves a pet by ID.
func (s *GormStore) GetPet(ctx context.Context, id string) (domain.Pet, bool, error) {
	var model PetModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Pet{}, false, nil
		}
		return domain.Pet{}, false, err
	}
	return petFromModel(model), true, nil
}

// AppendPetPhoto adds a photo key to the pet's photo list. The jsonb append
// runs server-side so concurrent uploads do not lose entries.
func (s *GormStore) AppendPetPhoto(ctx context.Context, petID, photoKey string) error {
	raw, err := json.Marshal(photoKey)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&PetModel{}).
		Where("id = ?", petID).
		Updates(map[string]any{
			"photo_keys": gorm.Expr("COALESCE(photo_keys, '[]'::jsonb) || ?::jsonb", string(raw)),
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListAdoptablePets returns available pets minus the user's swipe set.
func (s *GormStore) ListAdoptablePets(ctx context.Context, userID string) ([]domain.Pet, error) {
	swiped := s.db.Model(&SwipeModel{}).Select("pet_id").Where("user_id = ?", userID)
	var models []PetModel
	if err := s.db.WithContext(ctx).
		Where("available = ?", true).
		Where("id NOT IN (?)", swiped).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	pets := make([]domain.Pet, 0, len(models))
	for _, m := range models {
		pets = append(pets, petFromModel(m))
	}
	return pets, nil
}

// SaveUser inserts or updates an adopter account.
func (s *GormStore) SaveUser(ctx context.Context, u domain.AppUser) error {
	model, err := userToModel(u)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "preferences", "updated_at"}),
	}).Create(&model).Error
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(ctx context.Context, id string) (domain.AppUser, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AppUser{}, false, nil
		}
		return domain.AppUser{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateSwipe persists the swipe. The unique index on (user_id, pet_id) is
// the serialization point: ON CONFLICT DO NOTHING with zero rows affected
// means another request already decided this pair.
func (s *GormStore) CreateSwipe(ctx context.Context, swipe domain.Swipe) error {
	model := SwipeModel{
		ID:        swipe.ID,
		UserID:    swipe.UserID,
		PetID:     swipe.PetID,
		Liked:     swipe.Liked,
		CreatedAt: swipe.CreatedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "pet_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateSwipe
	}
	return nil
}

// GetSwipe returns the recorded decision for a (user, pet) pair.
func (s *GormStore) GetSwipe(ctx context.Context, userID, petID string) (domain.Swipe, bool, error) {
	var model SwipeModel
	if err := s.db.WithContext(ctx).
		First(&model, "user_id = ? AND pet_id = ?", userID, petID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Swipe{}, false, nil
		}
		return domain.Swipe{}, false, err
	}
	return swipeFromModel(model), true, nil
}

// ListSwipedPetIDs returns every pet ID the user has decided on.
func (s *GormStore) ListSwipedPetIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&SwipeModel{}).
		Where("user_id = ?", userID).
		Pluck("pet_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateMatchIfAbsent inserts the match unless the pair already has one.
// Losing the conflict and then failing to read the winner back means the
// constraint lied to us; that surfaces as ErrConsistency.
func (s *GormStore) CreateMatchIfAbsent(ctx context.Context, match domain.Match) (domain.Match, bool, error) {
	model := MatchModel{
		ID:        match.ID,
		UserID:    match.UserID,
		PetID:     match.PetID,
		Status:    string(match.Status),
		MatchedAt: match.MatchedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "pet_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return domain.Match{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return match, true, nil
	}
	existing, ok, err := s.GetMatch(ctx, match.UserID, match.PetID)
	if err != nil {
		return domain.Match{}, false, err
	}
	if !ok {
		return domain.Match{}, false, fmt.Errorf("%w: match conflict for user %s pet %s but no row found", ErrConsistency, match.UserID, match.PetID)
	}
	return existing, false, nil
}

// GetMatch returns the match for a (user, pet) pair.
func (s *GormStore) GetMatch(ctx context.Context, userID, petID string) (domain.Match, bool, error) {
	var model MatchModel
	if err := s.db.WithContext(ctx).
		First(&model, "user_id = ? AND pet_id = ?", userID, petID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Match{}, false, nil
		}
		return domain.Match{}, false, err
	}
	return matchFromModel(model), true, nil
}

// ListMatchesByUser returns the user's matches, newest first.
func (s *GormStore) ListMatchesByUser(ctx context.Context, userID string) ([]domain.Match, error) {
	var models []MatchModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("matched_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(models))
	for _, m := range models {
		matches = append(matches, matchFromModel(m))
	}
	return matches, nil
}

func petToModel(p domain.Pet) PetModel {
	photos, _ := json.Marshal(p.PhotoKeys)
	return PetModel{
		ID:          p.ID,
		Name:        p.Name,
		Species:     string(p.Species),
		Breed:       p.Breed,
		Description: p.Description,
		AgeMonths:   p.AgeMonths,
		City:        p.City,
		ShelterName: p.ShelterName,
		PhotoKeys:   photos,
		Available:   p.Available,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func petFromModel(m PetModel) domain.Pet {
	var photos []string
	if len(m.PhotoKeys) > 0 {
		_ = json.Unmarshal(m.PhotoKeys, &photos)
	}
	return domain.Pet{
		ID:          m.ID,
		Name:        m.Name,
		Species:     domain.PetSpecies(m.Species),
		Breed:       m.Breed,
		Description: m.Description,
		AgeMonths:   m.AgeMonths,
		City:        m.City,
		ShelterName: m.ShelterName,
		PhotoKeys:   photos,
		Available:   m.Available,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func userToModel(u domain.AppUser) (UserModel, error) {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return UserModel{}, err
	}
	return UserModel{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Preferences: prefs,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}, nil
}

func userFromModel(m UserModel) domain.AppUser {
	var prefs domain.Preferences
	if len(m.Preferences) > 0 {
		_ = json.Unmarshal(m.Preferences, &prefs)
	}
	return domain.AppUser{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Preferences: prefs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func swipeFromModel(m SwipeModel) domain.Swipe {
	return domain.Swipe{
		ID:        m.ID,
		UserID:    m.UserID,
		PetID:     m.PetID,
		Liked:     m.Liked,
		CreatedAt: m.CreatedAt,
	}
}

func matchFromModel(m MatchModel) domain.Match {
	return domain.Match{
		ID:        m.ID,
		UserID:    m.UserID,
		PetID:     m.PetID,
		Status:    domain.MatchStatus(m.Status),
		MatchedAt: m.MatchedAt,
	}
}
