// Package utils 提供通用工具函数
package utils

import "strings"

// MaskSecret 掩码敏感凭证，保留首尾各 4 个字符
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-8) + string(runes[len(runes)-4:])
}
