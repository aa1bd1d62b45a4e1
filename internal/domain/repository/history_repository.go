package repository

import (
	"context"

	"prompt-blueprint-api/internal/domain/entity"
)

// MaxRecentLimit 最近记录查询上限
const MaxRecentLimit = 50

// HistoryFilter 历史过滤条件
type HistoryFilter struct {
	// Query 按输入文本模糊匹配
	Query    string
	Kind     entity.GenerationKind
	Provider string
}

// HistoryStats 历史统计
type HistoryStats struct {
	Total            int64            `json:"total"`
	Succeeded        int64            `json:"succeeded"`
	Degraded         int64            `json:"degraded"`
	Failed           int64            `json:"failed"`
	ByProvider       map[string]int64 `json:"by_provider"`
	MostUsedProvider string           `json:"most_used_provider,omitempty"`
	AvgProcessingMs  float64          `json:"avg_processing_ms"`
}

// HistoryRepository 生成历史仓储接口
type HistoryRepository interface {
	// Create 保存记录
	Create(ctx context.Context, h *entity.PromptHistory) error

	// GetByID 根据 ID 获取，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.PromptHistory, error)

	// List 分页查询，按创建时间倒序
	List(ctx context.Context, filter *HistoryFilter, pagination Pagination) (*PagedResult[*entity.PromptHistory], error)

	// Recent 最近成功记录的输入文本（去重）
	Recent(ctx context.Context, limit int) ([]string, error)

	// Delete 删除单条，返回是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// Clear 清空全部记录，返回删除条数
	Clear(ctx context.Context) (int64, error)

	// Stats 统计
	Stats(ctx context.Context) (*HistoryStats, error)
}
