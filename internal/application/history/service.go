package history

import (
	"context"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
)

// Service 历史查询服务
type Service struct {
	repo repository.HistoryRepository
}

func NewService(repo repository.HistoryRepository) *Service {
	return &Service{repo: repo}
}

// List 分页查询
func (s *Service) List(ctx context.Context, filter *repository.HistoryFilter, page, pageSize int) (*repository.PagedResult[*entity.PromptHistory], error) {
	if filter != nil && filter.Kind != "" && !filter.Kind.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "Unknown history kind '%s'.", filter.Kind)
	}
	res, err := s.repo.List(ctx, filter, repository.NewPagination(page, pageSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list history")
	}
	return res, nil
}

// Get 获取单条记录
func (s *Service) Get(ctx context.Context, id string) (*entity.PromptHistory, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get history")
	}
	if h == nil {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "History entry '%s' not found.", id)
	}
	return h, nil
}

// Recent 最近使用过的提示词
func (s *Service) Recent(ctx context.Context, limit int) ([]string, error) {
	out, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load recent prompts")
	}
	return out, nil
}

// Delete 删除单条记录
func (s *Service) Delete(ctx context.Context, id string) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete history")
	}
	if !found {
		return apperrors.Newf(apperrors.CodeNotFound, "History entry '%s' not found.", id)
	}
	return nil
}

// Clear 清空全部记录
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.repo.Clear(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to clear history")
	}
	logger.Info(ctx, "history cleared", "deleted", n)
	return n, nil
}

// Stats 统计
func (s *Service) Stats(ctx context.Context) (*repository.HistoryStats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to compute history stats")
	}
	return st, nil
}
