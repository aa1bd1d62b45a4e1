package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
)

// SettingsRepository 应用设置仓储实现，表中只有 id=1 一行
type SettingsRepository struct {
	client *Client
}

var _ repository.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository 创建设置仓储
func NewSettingsRepository(client *Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

func (r *SettingsRepository) Get(ctx context.Context) (*entity.AppSettings, error) {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var s entity.AppSettings
	if err := db.First(&s, "id = ?", entity.SettingsRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *entity.AppSettings) error {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.Save")
	defer span.End()

	s.ID = entity.SettingsRowID
	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(s).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.AppSettings{}, "id = ?", entity.SettingsRowID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}
