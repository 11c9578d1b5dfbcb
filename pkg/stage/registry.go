package stage

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"pcba_station/pkg/models"
)

// Evaluator 计算阶段的最终状态和细节数据
type Evaluator func(rng *rand.Rand) (models.Status, map[string]interface{})

// Registry 阶段注册表
type Registry struct {
	evaluators map[models.Stage]Evaluator
	mu         sync.RWMutex
}

// StageInfo 阶段信息
type StageInfo struct {
	Name     models.Stage      `json:"name"`
	PassRate float64           `json:"pass_rate"`
	Detail   map[string]string `json:"detail"`
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[models.Stage]Evaluator),
	}
}

// DefaultRegistry 注册了全部内置阶段的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterBuiltinStages()
	return r
}

// Register 注册阶段
func (r *Registry) Register(stage models.Stage, fn Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[stage] = fn
}

// Get 获取阶段
func (r *Registry) Get(stage models.Stage) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, exists := r.evaluators[stage]
	return fn, exists
}

// RegisterBuiltinStages 注册内置的五个阶段
func (r *Registry) RegisterBuiltinStages() {
	r.Register(models.StageWifi, WifiStage)
	r.Register(models.StageFirmware, FirmwareStage)
	r.Register(models.StageTouch, TouchStage)
	r.Register(models.StageBluetooth, BluetoothStage)
	r.Register(models.StageSpeaker, SpeakerStage)
}

// GetStageInfo 获取内置阶段信息
func GetStageInfo() []StageInfo {
	return []StageInfo{
		{Name: models.StageWifi, PassRate: 0.85, Detail: map[string]string{"rssi": "dBm, -70 ~ -30"}},
		{Name: models.StageFirmware, PassRate: 0.95, Detail: map[string]string{"version": "major.minor.patch"}},
		{Name: models.StageTouch, PassRate: 0.9 * 0.9 * 0.9, Detail: map[string]string{"passed": "0 ~ 3", "total": "3"}},
		{Name: models.StageBluetooth, PassRate: 0.90, Detail: map[string]string{"rssi": "dBm, -70 ~ -40"}},
		{Name: models.StageSpeaker, PassRate: 0.80, Detail: map[string]string{"spl_db": "dB, 70 ~ 89"}},
	}
}

// passOrFail 按通过率随机判定
func passOrFail(rng *rand.Rand, ratio float64) models.Status {
	if rng.Float64() < ratio {
		return models.StatusPass
	}
	return models.StatusFail
}

// intBetween 返回 [lo, hi] 内的均匀整数
func intBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

// WifiStage WiFi 信号测试
func WifiStage(rng *rand.Rand) (models.Status, map[string]interface{}) {
	rssi := intBetween(rng, -70, -30)
	return passOrFail(rng, 0.85), map[string]interface{}{"rssi": rssi}
}

// FirmwareStage 固件版本检查
func FirmwareStage(rng *rand.Rand) (models.Status, map[string]interface{}) {
	version := fmt.Sprintf("%d.%d.%d", intBetween(rng, 1, 3), rng.IntN(10), rng.IntN(20))
	return passOrFail(rng, 0.95), map[string]interface{}{"version": version}
}

// TouchStage 三个按键各自 90% 通过，全部通过才算 pass
func TouchStage(rng *rand.Rand) (models.Status, map[string]interface{}) {
	const buttons = 3
	passed := 0
	for i := 0; i < buttons; i++ {
		if passOrFail(rng, 0.9) == models.StatusPass {
			passed++
		}
	}

	status := models.StatusFail
	if passed == buttons {
		status = models.StatusPass
	}
	return status, map[string]interface{}{"passed": passed, "total": buttons}
}

// BluetoothStage 蓝牙信号测试
func BluetoothStage(rng *rand.Rand) (models.Status, map[string]interface{}) {
	rssi := intBetween(rng, -70, -40)
	return passOrFail(rng, 0.90), map[string]interface{}{"rssi": rssi}
}

// SpeakerStage 喇叭声压测试
func SpeakerStage(rng *rand.Rand) (models.Status, map[string]interface{}) {
	spl := intBetween(rng, 70, 89)
	return passOrFail(rng, 0.80), map[string]interface{}{"spl_db": spl}
}
