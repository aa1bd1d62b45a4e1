package repository

import (
	"context"

	"prompt-blueprint-api/internal/domain/entity"
)

// SettingsRepository 应用设置仓储接口
type SettingsRepository interface {
	// Get 读取设置，不存在时返回 nil, nil
	Get(ctx context.Context) (*entity.AppSettings, error)

	// Save 写入设置（upsert）
	Save(ctx context.Context, s *entity.AppSettings) error

	// Delete 删除设置行
	Delete(ctx context.Context) error
}
