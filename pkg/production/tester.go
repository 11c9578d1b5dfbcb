package production

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"pcba_station/pkg/logger"
	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"

	"github.com/google/uuid"
)

// 测试结果
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// 序号起始值
const firstSerial = 1000

// TestTimeLayout test_time 字段格式（本地时间，微秒）
const TestTimeLayout = "2006-01-02T15:04:05.000000"

// ProductNames 可选的产品型号
var ProductNames = []string{"产品型号A", "产品型号B", "产品型号C"}

// Details test_data 字段中的详细数据
type Details struct {
	RunID          string `json:"run_id"`
	VoltageSpec    string `json:"voltage_spec"`
	CurrentSpec    string `json:"current_spec"`
	TempSpec       string `json:"temp_spec"`
	VoltageOK      bool   `json:"voltage_ok"`
	CurrentOK      bool   `json:"current_ok"`
	TempOK         bool   `json:"temp_ok"`
	TestDurationMs int    `json:"test_duration_ms"`
}

// Summary 一轮测试的统计
type Summary struct {
	Total    int `json:"total"`
	Uploaded int `json:"uploaded"`
	Passed   int `json:"passed"`
}

// Config 产线测试器配置
type Config struct {
	DeviceID    string
	TestStation string
	Reporter    reporter.Reporter
	Endpoint    string
	Rand        *rand.Rand
	Delay       stage.Delay
	Logger      logger.Logger
	Now         func() time.Time
}

// Tester 模拟产线测试设备，生成测试记录并上传
type Tester struct {
	deviceID    string
	testStation string
	reporter    reporter.Reporter
	endpoint    string
	rng         *rand.Rand
	delay       stage.Delay
	logger      logger.Logger
	now         func() time.Time
	counter     int
}

// New 创建测试器
func New(cfg Config) *Tester {
	t := &Tester{
		deviceID:    cfg.DeviceID,
		testStation: cfg.TestStation,
		reporter:    cfg.Reporter,
		endpoint:    cfg.Endpoint,
		rng:         cfg.Rand,
		delay:       cfg.Delay,
		logger:      cfg.Logger,
		now:         cfg.Now,
		counter:     firstSerial,
	}
	if t.rng == nil {
		t.rng = stage.NewRand(stage.SeedFromClock())
	}
	if t.delay == nil {
		t.delay = stage.RealDelay{}
	}
	if t.logger == nil {
		t.logger = logger.Nop()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Judge 判定各项是否在规格内
func Judge(voltage, current, temperature float64) (voltageOK, currentOK, tempOK bool) {
	voltageOK = voltage >= 4.9 && voltage <= 5.1
	currentOK = current >= 0.48 && current <= 0.52
	tempOK = temperature <= 32
	return
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func (t *Tester) uniform(lo, hi float64) float64 {
	return lo + t.rng.Float64()*(hi-lo)
}

// Generate 生成一条测试记录，序号递增
func (t *Tester) Generate() models.TestRecord {
	voltage := round(t.uniform(4.8, 5.2), 2)
	current := round(t.uniform(0.45, 0.55), 2)
	temperature := round(t.uniform(20, 35), 1)

	voltageOK, currentOK, tempOK := Judge(voltage, current, temperature)
	result := ResultFail
	if voltageOK && currentOK && tempOK {
		result = ResultPass
	}

	now := t.now()
	serial := fmt.Sprintf("SN%s%04d", now.Format("20060102"), t.counter)
	t.counter++

	details := Details{
		RunID:          uuid.NewString(),
		VoltageSpec:    "5V ±2%",
		CurrentSpec:    "0.5A ±4%",
		TempSpec:       "≤32°C",
		VoltageOK:      voltageOK,
		CurrentOK:      currentOK,
		TempOK:         tempOK,
		TestDurationMs: 1000 + t.rng.IntN(2001),
	}
	data, _ := json.Marshal(details)

	return models.TestRecord{
		DeviceID:     t.deviceID,
		ProductName:  ProductNames[t.rng.IntN(len(ProductNames))],
		SerialNumber: serial,
		TestStation:  t.testStation,
		TestResult:   result,
		TestTime:     now.Format(TestTimeLayout),
		TestData:     string(data),
		Voltage:      voltage,
		Current:      current,
		Temperature:  temperature,
	}
}

// Upload 上传一条测试记录
func (t *Tester) Upload(ctx context.Context, record models.TestRecord) error {
	if err := reporter.SendJSON(ctx, t.reporter, t.endpoint, record); err != nil {
		t.logger.Error("上传失败: %s: %v", record.SerialNumber, err)
		return err
	}
	t.logger.Info("上传成功: %s - %s", record.SerialNumber, record.TestResult)
	return nil
}

// runOne 生成并上传一条记录，上传失败只计入统计
func (t *Tester) runOne(ctx context.Context, summary *Summary) models.TestRecord {
	record := t.Generate()
	summary.Total++
	if record.TestResult == ResultPass {
		summary.Passed++
	}
	if err := t.Upload(ctx, record); err == nil {
		summary.Uploaded++
	}
	return record
}

// RunSingle 执行单次测试
func (t *Tester) RunSingle(ctx context.Context) (models.TestRecord, error) {
	record := t.Generate()
	return record, t.Upload(ctx, record)
}

// RunBatch 执行 count 次测试，两次之间等待 interval
func (t *Tester) RunBatch(ctx context.Context, count int, interval time.Duration) (Summary, error) {
	var summary Summary
	t.logger.Info("执行批次测试 (%d 笔)", count)

	for i := 0; i < count; i++ {
		t.runOne(ctx, &summary)
		if i < count-1 {
			if err := t.delay.Sleep(ctx, interval); err != nil {
				return summary, err
			}
		}
	}

	t.logger.Info("批次测试完成，共上传 %d/%d 笔资料", summary.Uploaded, summary.Total)
	return summary, nil
}

// RunContinuous 连续测试直到 ctx 取消
func (t *Tester) RunContinuous(ctx context.Context, interval time.Duration) (Summary, error) {
	var summary Summary
	t.logger.Info("测试程序启动: 设备 %s, 测试站 %s, 间隔 %s", t.deviceID, t.testStation, interval)

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		t.runOne(ctx, &summary)
		if err := t.delay.Sleep(ctx, interval); err != nil {
			t.logger.Info("测试程序已停止")
			return summary, err
		}
	}
}
