// Package contract 定义流水线结构化输出的 JSON Schema 契约
package contract

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema 命名的 JSON Schema
type Schema struct {
	Name string
	Doc  map[string]any

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

// NewSchema 创建 Schema
func NewSchema(name string, doc map[string]any) *Schema {
	return &Schema{Name: name, Doc: doc}
}

func (s *Schema) compile() (*gojsonschema.Schema, error) {
	s.once.Do(func() {
		s.compiled, s.err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.Doc))
		if s.err != nil {
			s.err = fmt.Errorf("compile schema %s: %w", s.Name, s.err)
		}
	})
	return s.compiled, s.err
}

// Validate 校验文档，返回问题列表；为空表示通过
func (s *Schema) Validate(doc any) []string {
	compiled, err := s.compile()
	if err != nil {
		return []string{err.Error()}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{fmt.Sprintf("validate %s: %v", s.Name, err)}
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return issues
}

// Hint 返回紧凑的 Schema 文本，嵌入提示词
func (s *Schema) Hint() string {
	b, err := json.Marshal(s.Doc)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func obj(required []string, props map[string]any) map[string]any {
	o := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func freeObject() map[string]any {
	return map[string]any{"type": "object"}
}
