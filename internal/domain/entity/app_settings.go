package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SettingsRowID 应用设置固定行 ID
const SettingsRowID = 1

// APIKeyMap provider -> API key，以 jsonb 存储
type APIKeyMap map[string]string

// Value 实现 driver.Valuer
func (m APIKeyMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner
func (m *APIKeyMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = APIKeyMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported api_keys column type %T", src)
	}
	out := APIKeyMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode api_keys: %w", err)
	}
	*m = out
	return nil
}

// AppSettings 应用设置（单行）
type AppSettings struct {
	ID              int       `gorm:"primaryKey;autoIncrement:false" json:"-"`
	DefaultProvider string    `gorm:"size:32;not null" json:"default_provider"`
	NSFWEnabled     bool      `json:"nsfw_enabled"`
	APIKeys         APIKeyMap `gorm:"type:jsonb" json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 表名
func (AppSettings) TableName() string {
	return "app_settings"
}

// NewAppSettings 创建默认设置
func NewAppSettings(defaultProvider string, nsfw bool) *AppSettings {
	return &AppSettings{
		ID:              SettingsRowID,
		DefaultProvider: defaultProvider,
		NSFWEnabled:     nsfw,
		APIKeys:         APIKeyMap{},
		UpdatedAt:       time.Now(),
	}
}

// Clone 深拷贝，避免共享缓存中的 map
func (s *AppSettings) Clone() *AppSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.APIKeys = make(APIKeyMap, len(s.APIKeys))
	for k, v := range s.APIKeys {
		out.APIKeys[k] = v
	}
	return &out
}
