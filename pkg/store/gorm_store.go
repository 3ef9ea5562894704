package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"selfiebot/pkg/domain"
)

const migrateLockID int64 = 51784102

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
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
		if err := tx.AutoMigrate(&UserModel{}, &SessionModel{}, &PhotoModel{}, &VariantModel{}, &PromptLogModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'session_models'
					AND constraint_name = 'session_models_user_id_fkey'
				) THEN
					ALTER TABLE session_models
					ADD CONSTRAINT session_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'photo_models'
					AND constraint_name = 'photo_models_user_id_fkey'
				) THEN
					ALTER TABLE photo_models
					ADD CONSTRAINT photo_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'variant_models'
					AND constraint_name = 'variant_models_photo_id_fkey'
				) THEN
					ALTER TABLE variant_models
					ADD CONSTRAINT variant_models_photo_id_fkey
					FOREIGN KEY (photo_id) REFERENCES photo_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure user foreign keys: %w", err)
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

func (s *GormStore) ensureUser(tx *gorm.DB, userID string) error {
	now := time.Now().UTC()
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserModel{ID: userID, CreatedAt: now, UpdatedAt: now}).Error
}

// GetOrCreateSession returns the user's session, creating user and session in TOP_MENU on first contact.
func (s *GormStore) GetOrCreateSession(userID string) (domain.Session, error) {
	var model SessionModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUser(tx, userID); err != nil {
			return err
		}
		fresh := SessionModel{
			UserID:    userID,
			State:     string(domain.StateTopMenu),
			Submenu:   encodeSubmenu(domain.Submenu{}),
			UpdatedAt: time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return err
		}
		return tx.First(&model, "user_id = ?", userID).Error
	})
	if err != nil {
		return domain.Session{}, err
	}
	return sessionFromModel(model), nil
}

// GetSession looks up a session without creating it.
func (s *GormStore) GetSession(userID string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// SetSession writes state and submenu.
func (s *GormStore) SetSession(userID string, state domain.State, submenu domain.Submenu) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return s.db.Model(&SessionModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"state":      string(state),
			"submenu":    encodeSubmenu(submenu),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetPaginationOffset stores the gallery offset.
func (s *GormStore) SetPaginationOffset(userID string, offset int) error {
	if offset < 0 {
		offset = 0
	}
	return s.db.Model(&SessionModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"pagination_offset": offset,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// TouchLastText records the time of the latest inbound text.
func (s *GormStore) TouchLastText(userID string, at time.Time) error {
	at = at.UTC()
	return s.db.Model(&SessionModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"last_text_at": at,
			"updated_at":   at,
		}).Error
}

// NextPhotoIndex atomically increments and returns the user's photo counter.
func (s *GormStore) NextPhotoIndex(userID string) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var model UserModel
		res := s.db.Model(&model).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "photo_seq"}}}).
			Where("id = ?", userID).
			UpdateColumn("photo_seq", gorm.Expr("photo_seq + 1"))
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return model.PhotoSeq, nil
		}
		if err := s.ensureUser(s.db, userID); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("reserve photo index for %s: user row missing", userID)
}

// CreatePhoto stores an original, replacing any record at the same index.
func (s *GormStore) CreatePhoto(p domain.Photo) (domain.Photo, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	model := photoToModel(p)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "index_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "mime_type"}),
	}).Create(&model).Error
	if err != nil {
		return domain.Photo{}, err
	}
	return p, nil
}

// GetPhotoByIndex returns the user's photo at index.
func (s *GormStore) GetPhotoByIndex(userID string, index int) (domain.Photo, bool, error) {
	var model PhotoModel
	if err := s.db.Where("user_id = ? AND index_number = ?", userID, index).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Photo{}, false, nil
		}
		return domain.Photo{}, false, err
	}
	return photoFromModel(model), true, nil
}

// LatestPhoto returns the photo with the highest index.
func (s *GormStore) LatestPhoto(userID string) (domain.Photo, bool, error) {
	var model PhotoModel
	if err := s.db.Where("user_id = ?", userID).Order("index_number DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Photo{}, false, nil
		}
		return domain.Photo{}, false, err
	}
	return photoFromModel(model), true, nil
}

// CreateVariant records a generated edit.
func (s *GormStore) CreateVariant(v domain.Variant) (domain.Variant, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	model := variantToModel(v)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Variant{}, err
	}
	return v, nil
}

// LatestVariant returns the most recent variant of a photo.
func (s *GormStore) LatestVariant(photoID string) (domain.Variant, bool, error) {
	var model VariantModel
	if err := s.db.Where("photo_id = ?", photoID).Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, false, nil
		}
		return domain.Variant{}, false, err
	}
	return variantFromModel(model), true, nil
}

// AppendPromptLog records an audit row.
func (s *GormStore) AppendPromptLog(entry domain.PromptLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	model := PromptLogModel{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Category:    entry.Category,
		RawText:     entry.RawText,
		Instruction: entry.Instruction,
		CreatedAt:   entry.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// DeleteUserData removes the user and everything owned by it.
func (s *GormStore) DeleteUserData(userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		photoIDs := tx.Model(&PhotoModel{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("photo_id IN (?)", photoIDs).Delete(&VariantModel{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PhotoModel{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PromptLogModel{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SessionModel{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&UserModel{}, "id = ?", userID).Error; err != nil {
			return err
		}
		return nil
	})
}

func encodeSubmenu(s domain.Submenu) []byte {
	raw, _ := json.Marshal(s)
	return raw
}

func decodeSubmenu(raw []byte) domain.Submenu {
	var s domain.Submenu
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		UserID:           m.UserID,
		State:            domain.State(m.State),
		Submenu:          decodeSubmenu(m.Submenu),
		PaginationOffset: m.PaginationOffset,
		UpdatedAt:        m.UpdatedAt,
		LastTextAt:       m.LastTextAt,
	}
}

func photoToModel(p domain.Photo) PhotoModel {
	return PhotoModel{
		ID:          p.ID,
		UserID:      p.UserID,
		IndexNumber: p.IndexNumber,
		Path:        p.Path,
		MimeType:    p.MimeType,
		CreatedAt:   p.CreatedAt,
	}
}

func photoFromModel(m PhotoModel) domain.Photo {
	return domain.Photo{
		ID:          m.ID,
		UserID:      m.UserID,
		IndexNumber: m.IndexNumber,
		Path:        m.Path,
		MimeType:    m.MimeType,
		CreatedAt:   m.CreatedAt,
	}
}

func variantToModel(v domain.Variant) VariantModel {
	return VariantModel{
		ID:         v.ID,
		PhotoID:    v.PhotoID,
		Mode:       int(v.Mode),
		ResultPath: v.ResultPath,
		Prompt:     v.Prompt,
		CreatedAt:  v.CreatedAt,
	}
}

func variantFromModel(m VariantModel) domain.Variant {
	return domain.Variant{
		ID:         m.ID,
		PhotoID:    m.PhotoID,
		Mode:       domain.Mode(m.Mode),
		ResultPath: m.ResultPath,
		Prompt:     m.Prompt,
		CreatedAt:  m.CreatedAt,
	}
}
