package node

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// MaxScanBytes 逐括号扫描的输入上限。
// 每个未闭合的 '{' 都会向后扫描到结尾，最坏 O(n²)；超过上限时只检查代码块。
const MaxScanBytes = 256 << 10

// ExtractLargestJSONObject 从模型输出中截取最大的完整 JSON 对象。
// 模型常在 JSON 前后附带说明文字或 markdown 代码块，均可容忍。
func ExtractLargestJSONObject(s string) (string, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", false
	}

	best := ""
	consider := func(candidate string) {
		if len(candidate) > len(best) && isJSONObject(candidate) {
			best = candidate
		}
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		consider(strings.TrimSpace(m[1]))
	}
	if len(raw) > MaxScanBytes {
		return best, best != ""
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		end := matchBrace(raw, i)
		if end < 0 {
			continue
		}
		candidate := raw[i : end+1]
		if isJSONObject(candidate) {
			consider(candidate)
			// 内部嵌套对象必然更短，直接跳过
			i = end
		}
	}

	return best, best != ""
}

// matchBrace 返回与 start 处 '{' 匹配的 '}' 下标，忽略字符串内的括号
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for j := start; j < len(s); j++ {
		c := s[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	return json.Valid([]byte(s))
}
