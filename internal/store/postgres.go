package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one row of the kv_entries table.
type Entry struct {
	Namespace string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

// Postgres is a durable KV. Several namespaces share one table.
type Postgres struct {
	db        *gorm.DB
	namespace string
}

// NewPostgres migrates the kv_entries table and returns a store scoped to namespace.
func NewPostgres(db *gorm.DB, namespace string) (*Postgres, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating kv_entries: %w", err)
	}
	return &Postgres{db: db, namespace: namespace}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := p.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", p.namespace, key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres get: %w", err)
	}
	return e.Value, nil
}

func (p *Postgres) Put(ctx context.Context, key, value string) error {
	e := Entry{Namespace: p.namespace, Key: key, Value: value}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("postgres put: %w", err)
	}
	return nil
}

func (p *Postgres) PutIfAbsent(ctx context.Context, key, value string) (bool, error) {
	e := Entry{Namespace: p.namespace, Key: key, Value: value}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&e)
	if res.Error != nil {
		return false, fmt.Errorf("postgres insert: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", p.namespace, key).
		Delete(&Entry{}).Error
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}
