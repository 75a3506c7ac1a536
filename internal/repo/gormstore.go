package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"taskgate/internal/domain"
)

type documentRecord struct {
	Collection string `gorm:"primaryKey;size:64"`
	DocID      string `gorm:"column:id;primaryKey;size:128"`
	Body       string `gorm:"type:text;not null"`
	Version    int64  `gorm:"not null"`
	Touched    string `gorm:"column:updated_at;size:40;not null"`
}

func (documentRecord) TableName() string { return "documents" }

func (r documentRecord) document() Document {
	return Document{Collection: r.Collection, ID: r.DocID, Body: []byte(r.Body), Version: r.Version, UpdatedAt: r.Touched}
}

type eventRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	TS         string `gorm:"column:ts;size:40;not null"`
	Type       string `gorm:"size:64;not null"`
	EntityKind string `gorm:"size:64;not null;index:idx_events_entity"`
	EntityID   string `gorm:"size:128;index:idx_events_entity"`
	ActorID    string `gorm:"size:255;not null"`
	Payload    string `gorm:"column:payload_json;type:text;not null"`
}

func (eventRecord) TableName() string { return "events" }

// GormStore keeps documents in PostgreSQL through gorm.
type GormStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

type GormConfig struct {
	DSN      string
	LogLevel string
}

// OpenGorm connects to PostgreSQL and migrates the document tables.
func OpenGorm(cfg GormConfig) (*GormStore, error) {
	level := logger.Error
	switch cfg.LogLevel {
	case "silent":
		level = logger.Silent
	case "warn":
		level = logger.Warn
	case "info":
		level = logger.Info
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&documentRecord{}, &eventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{DB: db, Now: time.Now}, nil
}

func (s *GormStore) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var rec documentRecord
	err := s.DB.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, storeErr("get", err)
	}
	return rec.document(), nil
}

func (s *GormStore) Put(ctx context.Context, doc Document, expected int64) (Document, error) {
	rec := documentRecord{Collection: doc.Collection, DocID: doc.ID, Body: string(doc.Body), Version: 1, Touched: s.now()}
	db := s.DB.WithContext(ctx)
	switch {
	case expected == AnyVersion:
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"body":       rec.Body,
					"version":    gorm.Expr("documents.version + 1"),
					"updated_at": rec.Touched,
				}),
			}).Create(&rec).Error; err != nil {
				return err
			}
			return tx.Where("collection = ? AND id = ?", rec.Collection, rec.DocID).First(&rec).Error
		})
		if err != nil {
			return Document{}, storeErr("put", err)
		}
		return rec.document(), nil
	case expected == NoVersion:
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return Document{}, storeErr("put", res.Error)
		}
		if res.RowsAffected == 0 {
			return Document{}, ErrConflict
		}
		return rec.document(), nil
	default:
		res := db.Model(&documentRecord{}).
			Where("collection = ? AND id = ? AND version = ?", rec.Collection, rec.DocID, expected).
			Updates(map[string]any{"body": rec.Body, "version": gorm.Expr("version + 1"), "updated_at": rec.Touched})
		if res.Error != nil {
			return Document{}, storeErr("put", res.Error)
		}
		if res.RowsAffected == 0 {
			return Document{}, ErrConflict
		}
		rec.Version = expected + 1
		return rec.document(), nil
	}
}

func (s *GormStore) Delete(ctx context.Context, collection, id string, expected int64) error {
	q := s.DB.WithContext(ctx).Where("collection = ? AND id = ?", collection, id)
	if expected != AnyVersion {
		q = q.Where("version = ?", expected)
	}
	res := q.Delete(&documentRecord{})
	if res.Error != nil {
		return storeErr("delete", res.Error)
	}
	if res.RowsAffected == 0 && expected != AnyVersion {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, collection string) ([]Document, error) {
	var recs []documentRecord
	if err := s.DB.WithContext(ctx).Where("collection = ?", collection).Order("id").Find(&recs).Error; err != nil {
		return nil, storeErr("list", err)
	}
	docs := make([]Document, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (s *GormStore) AppendEvent(ctx context.Context, evt domain.Event) error {
	rec := eventRecord{
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    evt.Payload,
	}
	return storeErr("append_event", s.DB.WithContext(ctx).Create(&rec).Error)
}

func (s *GormStore) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	q := s.DB.WithContext(ctx).Model(&eventRecord{})
	if f.EntityKind != "" {
		q = q.Where("entity_kind = ?", f.EntityKind)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	q = q.Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var recs []eventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storeErr("list_events", err)
	}
	res := make([]domain.Event, 0, len(recs))
	for _, r := range recs {
		res = append(res, domain.Event{
			ID: r.ID, TS: r.TS, Type: r.Type, EntityKind: r.EntityKind,
			EntityID: r.EntityID, ActorID: r.ActorID, Payload: r.Payload,
		})
	}
	return res, nil
}
