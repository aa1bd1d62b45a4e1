package generation

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "prompt-blueprint-api/pkg/errors"
)

// DetectImageType 先按扩展名判断 MIME，再按内容嗅探
func DetectImageType(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidParam, "Image must not be empty.")
	}
	if ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename))); ext != "" {
		if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
			return stripParams(t), nil
		}
	}
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return stripParams(t), nil
	}
	return "", apperrors.New(apperrors.CodeInvalidParam, "Uploaded file is not a supported image.")
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}
