// Package parser 将模型自由文本输出约束为经过校验的结构化文档
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"prompt-blueprint-api/internal/workflow/contract"
	"prompt-blueprint-api/internal/workflow/node"
	"prompt-blueprint-api/pkg/metrics"
)

// Outcome 解析结果
type Outcome[T any] struct {
	Value       T
	JSON        string
	WasFallback bool
	Issues      []string
}

// Report 与类型无关的解析摘要
type Report struct {
	WasFallback bool
	Issues      []string
}

// Report 返回摘要
func (o Outcome[T]) Report() Report {
	return Report{WasFallback: o.WasFallback, Issues: o.Issues}
}

// Parse 提取、解码、校验原始输出；任一步失败均返回 fallback 结果。
// 解码与校验是原子的：失败时不会保留任何已解码字段。
func Parse[T any](raw string, schema *contract.Schema, fallback func() T) Outcome[T] {
	value, text, issues := decode[T](raw, schema)
	if len(issues) == 0 {
		return Outcome[T]{Value: value, JSON: text}
	}

	if schema != nil {
		metrics.ParserFallbackTotal.WithLabelValues(schema.Name).Inc()
	}
	out := Outcome[T]{Value: fallback(), WasFallback: true, Issues: issues}
	if b, err := json.Marshal(out.Value); err == nil {
		out.JSON = string(b)
	}
	return out
}

func decode[T any](raw string, schema *contract.Schema) (T, string, []string) {
	var zero T

	text, ok := node.ExtractLargestJSONObject(raw)
	if !ok {
		return zero, "", []string{fmt.Sprintf("no JSON object found in output: %q", node.TruncateByRunes(raw, 120))}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return zero, "", []string{fmt.Sprintf("decode JSON: %v", err)}
	}

	if schema != nil {
		if issues := schema.Validate(doc); len(issues) > 0 {
			return zero, "", issues
		}
	}

	var value T
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&value); err != nil {
		return zero, "", []string{fmt.Sprintf("decode into %T: %v", value, err)}
	}

	return value, text, nil
}
