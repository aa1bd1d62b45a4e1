package node

import "strings"

// IsResponseFormatUnsupportedError 判断后端是否拒绝了结构化输出参数
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"):
		return true
	case strings.Contains(msg, "json_schema"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	case strings.Contains(msg, "response_schema"):
		return true
	case strings.Contains(msg, "structured output") && strings.Contains(msg, "not supported"):
		return true
	default:
		return false
	}
}
