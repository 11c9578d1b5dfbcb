package command

import (
	"context"
	"errors"
	"time"

	"pcba_station/pkg/logger"
	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"
)

// TestRunner 执行完整测试流程
type TestRunner interface {
	RunFullTest(ctx context.Context, serial string) ([]*models.StageResult, error)
}

// Hooks 命令处理过程中的回调，均可为空
type Hooks struct {
	OnCommand func(cmd models.Command)
	OnUID     func(uid string)
}

// InterpreterConfig 命令解释器配置
type InterpreterConfig struct {
	Runner           TestRunner
	Reporter         reporter.Reporter
	UIDFoundEndpoint string
	UIDs             *UIDGenerator
	Delay            stage.Delay
	SearchDelay      time.Duration
	Logger           logger.Logger
	Hooks            Hooks
}

// Interpreter 解析命令并分派到测试流程或 UID 搜索
type Interpreter struct {
	runner      TestRunner
	reporter    reporter.Reporter
	uidEndpoint string
	uids        *UIDGenerator
	delay       stage.Delay
	searchDelay time.Duration
	logger      logger.Logger
	hooks       Hooks
}

// NewInterpreter 创建命令解释器
func NewInterpreter(cfg InterpreterConfig) *Interpreter {
	in := &Interpreter{
		runner:      cfg.Runner,
		reporter:    cfg.Reporter,
		uidEndpoint: cfg.UIDFoundEndpoint,
		uids:        cfg.UIDs,
		delay:       cfg.Delay,
		searchDelay: cfg.SearchDelay,
		logger:      cfg.Logger,
		hooks:       cfg.Hooks,
	}

	if in.uids == nil {
		in.uids = NewUIDGenerator(stage.NewRand(stage.SeedFromClock()), nil)
	}
	if in.delay == nil {
		in.delay = stage.RealDelay{}
	}
	if in.logger == nil {
		in.logger = logger.Nop()
	}

	return in
}

// Handle 解析并执行一行命令。无法解析的行会被丢弃，只有 ctx 取消才返回错误
func (in *Interpreter) Handle(ctx context.Context, line string) error {
	cmd, err := Parse(line)
	if err != nil {
		if !errors.Is(err, ErrEmptyLine) {
			in.logger.Warn("忽略无法识别的命令: %v", err)
		}
		return nil
	}

	in.logger.Info("收到命令: %s", cmd)
	if in.hooks.OnCommand != nil {
		in.hooks.OnCommand(cmd)
	}

	switch cmd.Kind {
	case models.CommandSearch:
		_, err = in.HandleSearch(ctx)
	case models.CommandTest, models.CommandLegacy:
		err = in.HandleTest(ctx, cmd.Serial)
	}

	return err
}

// HandleSearch 模拟搜索延迟后生成 UID 并上报
func (in *Interpreter) HandleSearch(ctx context.Context) (string, error) {
	in.logger.Info("Searching for device...")
	if err := in.delay.Sleep(ctx, in.searchDelay); err != nil {
		return "", err
	}

	uid := in.uids.Generate()
	in.logger.Info("Device found! UID: %s", uid)

	if in.hooks.OnUID != nil {
		in.hooks.OnUID(uid)
	}

	if in.reporter != nil {
		if err := reporter.SendJSON(ctx, in.reporter, in.uidEndpoint, models.UIDPayload{UID: uid}); err != nil {
			in.logger.Warn("Failed to send UID to backend: %v", err)
		}
	}

	return uid, nil
}

// HandleTest 对指定序号执行完整测试流程
func (in *Interpreter) HandleTest(ctx context.Context, serial string) error {
	_, err := in.runner.RunFullTest(ctx, serial)
	return err
}
