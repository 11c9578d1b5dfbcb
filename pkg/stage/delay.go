package stage

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay 模拟耗时的等待能力，测试时可替换为 NoDelay
type Delay interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealDelay 真实等待，可被 ctx 打断
type RealDelay struct{}

func (RealDelay) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay 立即返回
type NoDelay struct{}

func (NoDelay) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// NewRand 创建随机数生成器，进程启动时创建一次并在各组件间共享
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SeedFromClock 以当前时间作为种子
func SeedFromClock() uint64 {
	return uint64(time.Now().UnixNano())
}
