// Package jobs 提交与执行异步生成任务
package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/studio"
	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
)

// Publisher 任务发布者
type Publisher interface {
	PublishPromptJob(ctx context.Context, job *messaging.PromptJobMessage) (string, error)
}

// Service 任务提交与查询
type Service struct {
	publisher Publisher
	store     repository.JobStore
}

func NewService(publisher Publisher, store repository.JobStore) *Service {
	return &Service{publisher: publisher, store: store}
}

// Submit 校验任务类型，写入 pending 状态并发布到任务流
func (s *Service) Submit(ctx context.Context, req *messaging.PromptJobMessage) (*entity.PromptJob, error) {
	kind := entity.GenerationKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam,
			"Unknown job kind '%s'. Supported kinds: text, image, convert.", req.Kind)
	}

	if kind == entity.GenerationKindConvert {
		if _, err := decodeBlueprint(req.Blueprint); err != nil {
			return nil, err
		}
	}

	msg := *req
	msg.JobID = uuid.NewString()
	msg.Kind = string(kind)

	job := entity.NewPromptJob(msg.JobID, kind)
	if err := s.store.Save(ctx, job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to store job status")
	}
	if _, err := s.publisher.PublishPromptJob(ctx, &msg); err != nil {
		job.Fail("failed to enqueue job", nil)
		if saveErr := s.store.Save(ctx, job); saveErr != nil {
			logger.Error(ctx, "failed to mark job as failed", saveErr, "job_id", job.ID)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to enqueue job")
	}

	logger.Info(ctx, "job submitted", "job_id", job.ID, "kind", string(kind))
	return job, nil
}

// Get 读取任务状态
func (s *Service) Get(ctx context.Context, id string) (*entity.PromptJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load job status")
	}
	if job == nil {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "Job '%s' not found.", id)
	}
	return job, nil
}

// Runner 执行任务所需的门面操作
type Runner interface {
	GenerateFromText(ctx context.Context, in studio.TextInput) *studio.GenerationResult
	GenerateFromImage(ctx context.Context, in studio.ImageInput) *studio.GenerationResult
	ConvertPrompt(ctx context.Context, in studio.ConvertInput) *studio.ConversionResult
}

// Processor worker 端的任务处理器
type Processor struct {
	runner Runner
	store  repository.JobStore
}

func NewProcessor(runner Runner, store repository.JobStore) *Processor {
	return &Processor{runner: runner, store: store}
}

// Handle 处理一条 prompt_job 消息
// 流水线失败写入 failed 终态并确认消息；只有状态存储出错时返回错误触发重投
func (p *Processor) Handle(ctx context.Context, msg *messaging.Message) error {
	var req messaging.PromptJobMessage
	if err := msg.UnmarshalPayload(&req); err != nil {
		logger.Error(ctx, "invalid job payload", err, "message_id", msg.ID)
		return nil
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, req.JobID)

	job, err := p.store.Get(ctx, req.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", req.JobID, err)
	}
	if job == nil {
		// 状态已过期，按新任务处理
		job = entity.NewPromptJob(req.JobID, entity.GenerationKind(req.Kind))
	}
	if job.Status.Terminal() {
		logger.Info(ctx, "job already finished, skipping redelivery", "status", string(job.Status))
		return nil
	}

	job.Start()
	if err := p.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save running job %s: %w", job.ID, err)
	}

	success, errMsg, result := p.run(ctx, &req)
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	if success {
		job.Complete(raw)
	} else {
		job.Fail(errMsg, raw)
	}
	if err := p.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save finished job %s: %w", job.ID, err)
	}

	logger.Info(ctx, "job finished",
		"status", string(job.Status),
		"duration_ms", job.DurationMs,
		"attempts", job.Attempts)
	return nil
}

func (p *Processor) run(ctx context.Context, req *messaging.PromptJobMessage) (bool, string, any) {
	switch entity.GenerationKind(req.Kind) {
	case entity.GenerationKindText:
		res := p.runner.GenerateFromText(ctx, studio.TextInput{
			Prompt:   req.Prompt,
			Provider: req.Provider,
			NSFW:     req.NSFW,
			JobID:    req.JobID,
		})
		return res.Success, res.Error, res
	case entity.GenerationKindImage:
		image, err := base64.StdEncoding.DecodeString(StripDataURI(req.ImageBase64))
		if err != nil {
			return rejected("Image must be valid base64.")
		}
		res := p.runner.GenerateFromImage(ctx, studio.ImageInput{
			Image:    image,
			Filename: req.Filename,
			Provider: req.Provider,
			NSFW:     req.NSFW,
			JobID:    req.JobID,
		})
		return res.Success, res.Error, res
	case entity.GenerationKindConvert:
		bp, err := decodeBlueprint(req.Blueprint)
		if err != nil {
			res := studio.RejectedConversion(ctx, req.Provider, req.Target, err)
			return false, res.Error, res
		}
		res := p.runner.ConvertPrompt(ctx, studio.ConvertInput{
			Blueprint: bp,
			Target:    req.Target,
			Provider:  req.Provider,
			JobID:     req.JobID,
		})
		return res.Success, res.Error, res
	default:
		return rejected(fmt.Sprintf("Unknown job kind '%s'.", req.Kind))
	}
}

// decodeBlueprint 与 HTTP 转换接口使用同一套校验；缺失的区块或未知字段都会被拒绝
func decodeBlueprint(raw json.RawMessage) (*blueprint.Blueprint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "Blueprint is required for convert jobs.")
	}
	return conversion.ParseBlueprint(raw)
}

func rejected(msg string) (bool, string, any) {
	return false, msg, &studio.GenerationResult{
		Error:     msg,
		ErrorCode: apperrors.CodeInvalidParam.Name(),
	}
}

// StripDataURI 去掉 data:image/png;base64, 前缀
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
