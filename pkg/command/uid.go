package command

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// UIDPattern 生成的 UID 格式
var UIDPattern = regexp.MustCompile(`^NL-\d{8}-\d{4}$`)

// UIDGenerator 生成模拟设备 UID：NL-YYYYMMDD-NNNN
type UIDGenerator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewUIDGenerator 创建 UID 生成器，now 为 nil 时使用 time.Now
func NewUIDGenerator(rng *rand.Rand, now func() time.Time) *UIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &UIDGenerator{rng: rng, now: now}
}

// Generate 以当前 UTC 日期和 0~9999 的随机后缀生成 UID
func (g *UIDGenerator) Generate() string {
	t := g.now().UTC()
	return fmt.Sprintf("NL-%04d%02d%02d-%04d", t.Year(), int(t.Month()), t.Day(), g.rng.IntN(10000))
}
