package models

import "time"

// TimestampLayout 事件时间戳格式（UTC，秒精度）
const TimestampLayout = "2006-01-02T15:04:05Z"

// Stage 测试阶段名称
type Stage string

const (
	StageWifi      Stage = "wifi"
	StageFirmware  Stage = "firmware"
	StageTouch     Stage = "touch"
	StageBluetooth Stage = "bluetooth"
	StageSpeaker   Stage = "speaker"
)

// AllStages 完整测试流程的固定顺序
var AllStages = []Stage{StageWifi, StageFirmware, StageTouch, StageBluetooth, StageSpeaker}

// ParseStage 将名称解析为测试阶段
func ParseStage(name string) (Stage, bool) {
	for _, s := range AllStages {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// Status 阶段状态
type Status string

const (
	StatusTesting Status = "testing"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
)

// StageResult 表示一次阶段事件，直接发送到 /api/pcba/events
type StageResult struct {
	Serial    string                 `json:"serial"`           // 序号
	Stage     Stage                  `json:"stage"`            // 测试阶段
	Status    Status                 `json:"status"`           // testing, pass, fail
	Detail    map[string]interface{} `json:"detail,omitempty"` // 阶段数据，testing 时省略
	Timestamp string                 `json:"timestamp"`        // ISO-8601 UTC
	RunID     string                 `json:"-"`                // 本地执行ID，不上报
	Duration  time.Duration          `json:"-"`                // 阶段耗时（仅最终结果）
}

// Final 是否为最终结果
func (r *StageResult) Final() bool {
	return r.Status == StatusPass || r.Status == StatusFail
}

// FormatTimestamp 按事件格式输出时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// UIDPayload UID 上报结构
type UIDPayload struct {
	UID string `json:"uid"`
}

// TestRecord 产线测试记录，发送到 /api/test-records/
type TestRecord struct {
	DeviceID     string  `json:"device_id"`
	ProductName  string  `json:"product_name"`
	SerialNumber string  `json:"serial_number"`
	TestStation  string  `json:"test_station"`
	TestResult   string  `json:"test_result"` // PASS, FAIL
	TestTime     string  `json:"test_time"`
	TestData     string  `json:"test_data,omitempty"` // JSON 字符串
	Voltage      float64 `json:"voltage"`
	Current      float64 `json:"current"`
	Temperature  float64 `json:"temperature"`
}
