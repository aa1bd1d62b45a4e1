// Package settings 管理单行应用设置：默认后端、nsfw 开关与已保存的 API key
package settings

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/domain/repository"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
	"prompt-blueprint-api/pkg/utils"
)

// CacheKey 设置缓存键
const CacheKey = "settings:app"

// Cache 读穿缓存
type Cache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// Defaults 数据库无设置行时的默认值
type Defaults struct {
	Provider string
	NSFW     bool
}

// Patch 部分更新；nil 字段保持不变，APIKeys 中的空值表示删除
type Patch struct {
	DefaultProvider *string
	NSFWEnabled     *bool
	APIKeys         map[string]string
}

// View 对外展示的设置，API key 已掩码
type View struct {
	DefaultProvider string            `json:"default_provider"`
	NSFWEnabled     bool              `json:"nsfw_enabled"`
	APIKeys         map[string]string `json:"api_keys"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// cached 缓存中的设置；实体的 APIKeys 不参与 JSON 序列化
type cached struct {
	DefaultProvider string            `json:"default_provider"`
	NSFWEnabled     bool              `json:"nsfw_enabled"`
	APIKeys         map[string]string `json:"api_keys"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Stored          bool              `json:"stored"`
}

// Service 设置服务
type Service struct {
	repo     repository.SettingsRepository
	cache    Cache
	ttl      time.Duration
	registry *provider.Registry
	defaults Defaults
	tx       repository.Transactor
}

// NewService 创建设置服务；cache 可为 nil
func NewService(repo repository.SettingsRepository, cache Cache, ttl time.Duration, registry *provider.Registry, defaults Defaults) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		ttl:      ttl,
		registry: registry,
		defaults: defaults,
	}
}

// WithTransactor 读改写操作在事务中执行
func (s *Service) WithTransactor(tx repository.Transactor) *Service {
	s.tx = tx
	return s
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTransaction(ctx, fn)
}

// Get 读取当前设置
func (s *Service) Get(ctx context.Context) (*entity.AppSettings, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.entity(), nil
}

func (s *Service) load(ctx context.Context) (*cached, error) {
	if s.cache == nil {
		return s.loadFromRepo(ctx)
	}

	raw, err := s.cache.GetOrLoadSafe(ctx, CacheKey, s.ttl, func(ctx context.Context) (any, error) {
		return s.loadFromRepo(ctx)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		// 缓存不可用时直接读库
		logger.Warn(ctx, "settings cache unavailable, reading database", "error", err.Error())
		return s.loadFromRepo(ctx)
	}

	var c cached
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to decode cached settings")
	}
	return &c, nil
}

func (s *Service) loadFromRepo(ctx context.Context) (*cached, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load settings")
	}
	if row == nil {
		return &cached{
			DefaultProvider: s.defaults.Provider,
			NSFWEnabled:     s.defaults.NSFW,
			APIKeys:         map[string]string{},
		}, nil
	}
	keys := make(map[string]string, len(row.APIKeys))
	for k, v := range row.APIKeys {
		keys[k] = v
	}
	return &cached{
		DefaultProvider: row.DefaultProvider,
		NSFWEnabled:     row.NSFWEnabled,
		APIKeys:         keys,
		UpdatedAt:       row.UpdatedAt,
		Stored:          true,
	}, nil
}

// Update 应用部分更新并使缓存失效
func (s *Service) Update(ctx context.Context, patch Patch) (*View, error) {
	var next *entity.AppSettings
	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.loadFromRepo(ctx)
		if err != nil {
			return err
		}
		next = current.entity()

		if patch.DefaultProvider != nil {
			c, err := s.registry.Lookup(*patch.DefaultProvider)
			if err != nil {
				return err
			}
			next.DefaultProvider = c.ID
		}
		if patch.NSFWEnabled != nil {
			next.NSFWEnabled = *patch.NSFWEnabled
		}
		for id, key := range patch.APIKeys {
			c, err := s.registry.Lookup(id)
			if err != nil {
				return err
			}
			if key = strings.TrimSpace(key); key == "" {
				delete(next.APIKeys, c.ID)
				continue
			}
			next.APIKeys[c.ID] = key
		}
		return s.save(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	logger.Info(ctx, "settings updated",
		"default_provider", next.DefaultProvider,
		"nsfw_enabled", next.NSFWEnabled,
		"api_key_count", len(next.APIKeys))
	return viewOf(next, true), nil
}

// DeleteAPIKey 删除某个后端的已保存 key，返回是否存在
func (s *Service) DeleteAPIKey(ctx context.Context, providerID string) (bool, error) {
	c, err := s.registry.Lookup(providerID)
	if err != nil {
		return false, err
	}

	found := false
	err = s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.loadFromRepo(ctx)
		if err != nil {
			return err
		}
		if _, ok := current.APIKeys[c.ID]; !ok {
			return nil
		}
		found = true
		next := current.entity()
		delete(next.APIKeys, c.ID)
		return s.save(ctx, next)
	})
	if err != nil || !found {
		return false, err
	}
	s.invalidate(ctx)

	logger.Info(ctx, "api key removed", "provider", c.ID)
	return true, nil
}

// Reset 删除设置行，恢复配置默认值
func (s *Service) Reset(ctx context.Context) (*View, error) {
	if err := s.repo.Delete(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to reset settings")
	}
	s.invalidate(ctx)
	logger.Info(ctx, "settings reset to defaults")
	return s.View(ctx)
}

// Seed 设置行不存在时写入默认值
func (s *Service) Seed(ctx context.Context) (bool, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load settings")
	}
	if row != nil {
		return false, nil
	}
	if err := s.save(ctx, entity.NewAppSettings(s.defaults.Provider, s.defaults.NSFW)); err != nil {
		return false, err
	}
	s.invalidate(ctx)
	return true, nil
}

// View 返回掩码后的设置
func (s *Service) View(ctx context.Context) (*View, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return viewOf(c.entity(), c.Stored), nil
}

// DefaultProvider 当前默认后端；读取失败时退回配置默认值
func (s *Service) DefaultProvider(ctx context.Context) string {
	c, err := s.load(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read settings, using default provider", "error", err.Error())
		return s.defaults.Provider
	}
	if c.DefaultProvider == "" {
		return s.defaults.Provider
	}
	return c.DefaultProvider
}

// Credentials 已保存的 API key，键为后端 ID
func (s *Service) Credentials(ctx context.Context) map[string]string {
	c, err := s.load(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read settings, no stored credentials", "error", err.Error())
		return map[string]string{}
	}
	out := make(map[string]string, len(c.APIKeys))
	for k, v := range c.APIKeys {
		out[k] = v
	}
	return out
}

// NSFWEnabled 当前 nsfw 开关
func (s *Service) NSFWEnabled(ctx context.Context) bool {
	c, err := s.load(ctx)
	if err != nil {
		return s.defaults.NSFW
	}
	return c.NSFWEnabled
}

func (s *Service) save(ctx context.Context, next *entity.AppSettings) error {
	next.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, next); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save settings")
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey); err != nil {
		logger.Warn(ctx, "failed to invalidate settings cache", "error", err.Error())
	}
}

func (c *cached) entity() *entity.AppSettings {
	out := entity.NewAppSettings(c.DefaultProvider, c.NSFWEnabled)
	for k, v := range c.APIKeys {
		out.APIKeys[k] = v
	}
	out.UpdatedAt = c.UpdatedAt
	return out
}

func viewOf(s *entity.AppSettings, stored bool) *View {
	v := &View{
		DefaultProvider: s.DefaultProvider,
		NSFWEnabled:     s.NSFWEnabled,
		APIKeys:         make(map[string]string, len(s.APIKeys)),
	}
	for k, key := range s.APIKeys {
		v.APIKeys[k] = utils.MaskSecret(key)
	}
	if stored && !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}
