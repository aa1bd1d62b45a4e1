package llm

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"

	"prompt-blueprint-api/internal/domain/provider"
	apperrors "prompt-blueprint-api/pkg/errors"
)

var statusCodePattern = regexp.MustCompile(`(?i)status(?: code)?[:=\s]+(\d{3})`)

// classify 将后端错误归入 Timeout / BackendRejected / TransportError
func classify(ctx context.Context, cfg *provider.EffectiveConfig, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	id := cfg.ID
	// 调用上下文已结束时，SDK 返回的错误未必包装了 ctx.Err()
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return timeoutError(cfg, err)
	case ctx.Err() != nil:
		return apperrors.Wrap(err, apperrors.CodeCancelled, "Request to provider '"+id+"' was cancelled")
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(cfg, err)
	}

	status := statusOf(err)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return timeoutError(cfg, err)
	case status >= 400 && status < 500:
		return apperrors.Wrap(err, apperrors.CodeBackendRejected,
			"Provider '"+id+"' rejected the request (HTTP "+strconv.Itoa(status)+")")
	case status >= 500:
		return apperrors.Wrap(err, apperrors.CodeTransportError,
			"Provider '"+id+"' failed with HTTP "+strconv.Itoa(status))
	default:
		return apperrors.Wrap(err, apperrors.CodeTransportError, "Request to provider '"+id+"' failed")
	}
}

func timeoutError(cfg *provider.EffectiveConfig, err error) error {
	return apperrors.Wrap(err, apperrors.CodeTimeout,
		"Request to provider '"+cfg.ID+"' timed out after "+cfg.Timeout.String())
}

func statusOf(err error) int {
	var anthropicErr *anthropic.Error
	if stderrors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var genaiErrPtr *genai.APIError
	if stderrors.As(err, &genaiErrPtr) && genaiErrPtr != nil {
		return genaiErrPtr.Code
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

func emptyResponseError(cfg *provider.EffectiveConfig) error {
	return apperrors.New(apperrors.CodeTransportError, "Provider '"+cfg.ID+"' returned an empty response")
}
