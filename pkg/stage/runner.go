package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"pcba_station/pkg/logger"
	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"

	"github.com/google/uuid"
)

// ErrUnknownStage 未注册的阶段名称
var ErrUnknownStage = errors.New("unknown stage")

// Observer 接收每一个发出的阶段事件（testing 与最终结果）
type Observer interface {
	Observe(result *models.StageResult)
}

// ObserverFunc 函数形式的 Observer
type ObserverFunc func(result *models.StageResult)

func (f ObserverFunc) Observe(result *models.StageResult) { f(result) }

// RunnerConfig 阶段执行器配置
type RunnerConfig struct {
	Reporter   reporter.Reporter
	Endpoint   string // 事件接口地址
	Rand       *rand.Rand
	Delay      Delay
	StageDelay time.Duration
	Registry   *Registry
	Logger     logger.Logger
	Now        func() time.Time
}

// Runner 阶段执行器，单线程使用
type Runner struct {
	reporter   reporter.Reporter
	endpoint   string
	rng        *rand.Rand
	delay      Delay
	stageDelay time.Duration
	registry   *Registry
	logger     logger.Logger
	now        func() time.Time
	observers  []Observer
}

// NewRunner 创建阶段执行器，未设置的字段使用默认值
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		reporter:   cfg.Reporter,
		endpoint:   cfg.Endpoint,
		rng:        cfg.Rand,
		delay:      cfg.Delay,
		stageDelay: cfg.StageDelay,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}

	if r.rng == nil {
		r.rng = NewRand(SeedFromClock())
	}
	if r.delay == nil {
		r.delay = RealDelay{}
	}
	if r.registry == nil {
		r.registry = DefaultRegistry()
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// AddObserver 注册事件观察者
func (r *Runner) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// Evaluate 直接计算一个阶段的最终结果，不发送、不等待
func (r *Runner) Evaluate(stage models.Stage, serial string) (*models.StageResult, error) {
	eval, ok := r.registry.Get(stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	status, detail := eval(r.rng)
	return &models.StageResult{
		Serial:    serial,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Timestamp: models.FormatTimestamp(r.now()),
	}, nil
}

// Run 执行单一阶段：先发 testing，等待，再计算并发出最终结果
func (r *Runner) Run(ctx context.Context, stage models.Stage, serial string) (*models.StageResult, error) {
	return r.run(ctx, stage, serial, "")
}

func (r *Runner) run(ctx context.Context, stage models.Stage, serial, runID string) (*models.StageResult, error) {
	if _, ok := r.registry.Get(stage); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	startTime := r.now()
	r.logger.Info("[PCBA] Testing %s for %s...", stage, serial)

	r.emit(ctx, &models.StageResult{
		Serial:    serial,
		Stage:     stage,
		Status:    models.StatusTesting,
		Timestamp: models.FormatTimestamp(startTime),
		RunID:     runID,
	})

	// 模拟测试延迟
	if err := r.delay.Sleep(ctx, r.stageDelay); err != nil {
		return nil, err
	}

	result, err := r.Evaluate(stage, serial)
	if err != nil {
		return nil, err
	}
	result.RunID = runID
	result.Duration = r.now().Sub(startTime)

	r.emit(ctx, result)
	r.logger.Info("[PCBA] %s: %s", stage, result.Status)

	return result, nil
}

// RunFullTest 依序执行全部阶段，单一阶段失败不会中断流程
func (r *Runner) RunFullTest(ctx context.Context, serial string) ([]*models.StageResult, error) {
	runID := uuid.NewString()
	r.logger.Info("========================================")
	r.logger.Info("开始测试序号: %s (run %s)", serial, runID)

	results := make([]*models.StageResult, 0, len(models.AllStages))
	for _, stage := range models.AllStages {
		result, err := r.run(ctx, stage, serial, runID)
		if err != nil {
			r.logger.Warn("测试中断: %s at %s: %v", serial, stage, err)
			return results, err
		}
		results = append(results, result)
	}

	passed := 0
	for _, result := range results {
		if result.Status == models.StatusPass {
			passed++
		}
	}
	r.logger.Info("测试完成: %s (%d/%d pass)", serial, passed, len(results))
	r.logger.Info("========================================")

	return results, nil
}

// emit 发送事件并通知观察者，发送失败只记录日志
func (r *Runner) emit(ctx context.Context, result *models.StageResult) {
	for _, o := range r.observers {
		o.Observe(result)
	}

	if r.reporter == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("序列化事件失败: %v", err)
		return
	}

	if err := r.reporter.Send(ctx, r.endpoint, payload); err != nil {
		r.logger.Warn("POST failed: %v", err)
		return
	}
	r.logger.Debug("已发送事件: %s %s %s", result.Serial, result.Stage, result.Status)
}
