package watcher

import (
	"context"

	"pcba_station/pkg/logger"
)

// Handler 处理一行命令
type Handler interface {
	Handle(ctx context.Context, line string) error
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, line string) error

func (f HandlerFunc) Handle(ctx context.Context, line string) error { return f(ctx, line) }

// Watcher 单线程循环：取得命令、同步处理，处理完成后才会看到下一次变化
type Watcher struct {
	source  Source
	handler Handler
	logger  logger.Logger
}

// New 创建监看器
func New(source Source, handler Handler, log logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{source: source, handler: handler, logger: log}
}

// Run 持续运行直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("等待测试请求...")

	for {
		line, err := w.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := w.handler.Handle(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("处理命令失败: %v", err)
		}
	}
}
