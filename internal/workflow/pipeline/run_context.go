package pipeline

import (
	"sync"
	"time"

	"prompt-blueprint-api/internal/domain/provider"
)

// State 流水线运行状态
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StageStatus 阶段执行结果
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageDegraded  StageStatus = "degraded"
	StageFailed    StageStatus = "failed"
)

// StageRecord 单个阶段的执行记录
type StageRecord struct {
	Name             string
	Status           StageStatus
	Raw              string
	Parsed           any
	Degraded         bool
	Issues           []string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
	Err              error
}

// RunContext 单次运行的上下文，仅属于一次执行，不跨请求共享。
// 读写方法加锁，便于调用方在运行期间观察状态。
type RunContext struct {
	Inputs   map[string]any
	Provider *provider.EffectiveConfig

	mu      sync.RWMutex
	state   State
	current string
	records []StageRecord
	index   map[string]int
}

// NewRunContext 创建运行上下文
func NewRunContext(cfg *provider.EffectiveConfig, inputs map[string]any) *RunContext {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &RunContext{
		Inputs:   inputs,
		Provider: cfg,
		state:    StatePending,
		index:    make(map[string]int),
	}
}

// State 当前状态
func (rc *RunContext) State() State {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.state
}

// Current 正在执行（或最后执行）的阶段名
func (rc *RunContext) Current() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.current
}

// Records 返回阶段记录副本，按执行顺序排列
func (rc *RunContext) Records() []StageRecord {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]StageRecord, len(rc.records))
	copy(out, rc.records)
	return out
}

// Record 返回指定阶段的记录
func (rc *RunContext) Record(name string) (StageRecord, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	i, ok := rc.index[name]
	if !ok {
		return StageRecord{}, false
	}
	return rc.records[i], true
}

// Output 返回阶段的解析结果
func (rc *RunContext) Output(name string) any {
	r, _ := rc.Record(name)
	return r.Parsed
}

// Raw 返回阶段的原始输出
func (rc *RunContext) Raw(name string) string {
	r, _ := rc.Record(name)
	return r.Raw
}

// InputString 读取字符串输入
func (rc *RunContext) InputString(key string) string {
	s, _ := rc.Inputs[key].(string)
	return s
}

// Degraded 是否有阶段降级
func (rc *RunContext) Degraded() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, r := range rc.records {
		if r.Degraded {
			return true
		}
	}
	return false
}

// Usage 汇总全部阶段的 token 用量
func (rc *RunContext) Usage() (promptTokens, completionTokens int) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, r := range rc.records {
		promptTokens += r.PromptTokens
		completionTokens += r.CompletionTokens
	}
	return promptTokens, completionTokens
}

// Model 最后一次成功调用返回的模型名
func (rc *RunContext) Model() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for i := len(rc.records) - 1; i >= 0; i-- {
		if m := rc.records[i].Model; m != "" {
			return m
		}
	}
	if rc.Provider != nil {
		return rc.Provider.Model
	}
	return ""
}

func (rc *RunContext) setState(s State, current string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = s
	if current != "" {
		rc.current = current
	}
}

func (rc *RunContext) append(r StageRecord) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.index[r.Name] = len(rc.records)
	rc.records = append(rc.records, r)
}
