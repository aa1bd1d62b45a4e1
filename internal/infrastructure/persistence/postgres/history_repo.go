package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
)

// HistoryRepository 生成历史仓储实现
type HistoryRepository struct {
	client *Client
}

var _ repository.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository 创建生成历史仓储
func NewHistoryRepository(client *Client) *HistoryRepository {
	return &HistoryRepository{client: client}
}

// Create 保存记录
func (r *HistoryRepository) Create(ctx context.Context, h *entity.PromptHistory) error {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(h).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取记录
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*entity.PromptHistory, error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var h entity.PromptHistory
	if err := db.First(&h, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &h, nil
}

// List 分页查询
func (r *HistoryRepository) List(ctx context.Context, filter *repository.HistoryFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.PromptHistory], error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.PromptHistory{})

	if filter != nil {
		if q := strings.TrimSpace(filter.Query); q != "" {
			query = query.Where("input_text ILIKE ?", "%"+escapeLike(q)+"%")
		}
		if filter.Kind != "" {
			query = query.Where("kind = ?", filter.Kind)
		}
		if filter.Provider != "" {
			query = query.Where("provider = ?", filter.Provider)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	var items []*entity.PromptHistory
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return repository.NewPagedResult(items, total, pagination), nil
}

// Recent 最近成功记录的输入文本，按最近使用时间倒序去重
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.Recent")
	defer span.End()

	if limit <= 0 || limit > repository.MaxRecentLimit {
		limit = repository.MaxRecentLimit
	}

	var rows []struct {
		InputText string
	}
	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.PromptHistory{}).
		Select("input_text, MAX(created_at) AS last_used").
		Where("success = ? AND input_text <> ''", true).
		Group("input_text").
		Order("last_used DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query recent history: %w", err)
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.InputText)
	}
	return out, nil
}

// Delete 删除单条记录
func (r *HistoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Delete(&entity.PromptHistory{}, "id = ?", id)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to delete history: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Clear 清空全部记录
func (r *HistoryRepository) Clear(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.Clear")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entity.PromptHistory{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to clear history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats 汇总统计
func (r *HistoryRepository) Stats(ctx context.Context) (*repository.HistoryStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.HistoryRepository.Stats")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var totals struct {
		Total           int64
		Succeeded       int64
		Degraded        int64
		AvgProcessingMs float64
	}
	if err := db.Model(&entity.PromptHistory{}).
		Select("COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS succeeded, " +
			"COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0) AS degraded, " +
			"COALESCE(AVG(processing_ms), 0) AS avg_processing_ms").
		Scan(&totals).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate history: %w", err)
	}

	var perProvider []struct {
		Provider string
		Count    int64
	}
	if err := db.Model(&entity.PromptHistory{}).
		Select("provider, COUNT(*) AS count").
		Group("provider").
		Order("count DESC, provider").
		Scan(&perProvider).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate history by provider: %w", err)
	}

	stats := &repository.HistoryStats{
		Total:           totals.Total,
		Succeeded:       totals.Succeeded,
		Degraded:        totals.Degraded,
		Failed:          totals.Total - totals.Succeeded,
		ByProvider:      make(map[string]int64, len(perProvider)),
		AvgProcessingMs: totals.AvgProcessingMs,
	}
	for i, row := range perProvider {
		stats.ByProvider[row.Provider] = row.Count
		if i == 0 {
			stats.MostUsedProvider = row.Provider
		}
	}
	return stats, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
