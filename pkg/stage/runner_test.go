package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const eventsURL = "http://backend/api/pcba/events"

func newTestRunner(rec *reporter.Recorder, seed uint64) *Runner {
	fixed := time.Date(2024, 12, 3, 8, 0, 0, 0, time.UTC)
	return NewRunner(RunnerConfig{
		Reporter: rec,
		Endpoint: eventsURL,
		Rand:     NewRand(seed),
		Delay:    NoDelay{},
		Now:      func() time.Time { return fixed },
	})
}

func decode(t *testing.T, payload []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &m))
	return m
}

func TestStageDetailSchemas(t *testing.T) {
	versionRe := regexp.MustCompile(`^([1-3])\.(\d)\.(\d{1,2})$`)
	rng := NewRand(42)

	for i := 0; i < 500; i++ {
		status, detail := WifiStage(rng)
		require.Len(t, detail, 1)
		rssi := detail["rssi"].(int)
		assert.GreaterOrEqual(t, rssi, -70)
		assert.LessOrEqual(t, rssi, -30)
		assert.Contains(t, []models.Status{models.StatusPass, models.StatusFail}, status)

		_, detail = FirmwareStage(rng)
		require.Len(t, detail, 1)
		m := versionRe.FindStringSubmatch(detail["version"].(string))
		require.NotNil(t, m, detail["version"])
		assert.LessOrEqual(t, len(m[3]), 2)

		_, detail = BluetoothStage(rng)
		require.Len(t, detail, 1)
		rssi = detail["rssi"].(int)
		assert.GreaterOrEqual(t, rssi, -70)
		assert.LessOrEqual(t, rssi, -40)

		_, detail = SpeakerStage(rng)
		require.Len(t, detail, 1)
		spl := detail["spl_db"].(int)
		assert.GreaterOrEqual(t, spl, 70)
		assert.LessOrEqual(t, spl, 89)
	}
}

func TestFirmwarePatchRange(t *testing.T) {
	rng := NewRand(7)
	for i := 0; i < 500; i++ {
		_, detail := FirmwareStage(rng)
		var major, minor, patch int
		_, err := fmt.Sscanf(detail["version"].(string), "%d.%d.%d", &major, &minor, &patch)
		require.NoError(t, err)
		assert.True(t, major >= 1 && major <= 3)
		assert.True(t, minor >= 0 && minor <= 9)
		assert.True(t, patch >= 0 && patch <= 19)
	}
}

func TestTouchPassIffAllThree(t *testing.T) {
	rng := NewRand(99)
	seenFail := false
	for i := 0; i < 1000; i++ {
		status, detail := TouchStage(rng)
		require.Len(t, detail, 2)
		passed := detail["passed"].(int)
		assert.Equal(t, 3, detail["total"])
		assert.GreaterOrEqual(t, passed, 0)
		assert.LessOrEqual(t, passed, 3)
		assert.Equal(t, passed == 3, status == models.StatusPass)
		if status == models.StatusFail {
			seenFail = true
		}
	}
	assert.True(t, seenFail)
}

func TestPassRatesRoughlyMatch(t *testing.T) {
	rng := NewRand(2024)
	const n = 20000
	pass := 0
	for i := 0; i < n; i++ {
		if s, _ := SpeakerStage(rng); s == models.StatusPass {
			pass++
		}
	}
	assert.InDelta(t, 0.80, float64(pass)/n, 0.02)
}

func TestRunEmitsTestingThenFinal(t *testing.T) {
	rec := &reporter.Recorder{}
	r := newTestRunner(rec, 1)

	result, err := r.Run(context.Background(), models.StageWifi, "NL20231203001")
	require.NoError(t, err)
	assert.True(t, result.Final())

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, eventsURL, calls[0].Endpoint)

	first := decode(t, calls[0].Payload)
	assert.Equal(t, "testing", first["status"])
	assert.Equal(t, "wifi", first["stage"])
	assert.Equal(t, "NL20231203001", first["serial"])
	assert.Equal(t, "2024-12-03T08:00:00Z", first["timestamp"])
	assert.NotContains(t, first, "detail")

	second := decode(t, calls[1].Payload)
	assert.Equal(t, string(result.Status), second["status"])
	detail := second["detail"].(map[string]interface{})
	assert.Len(t, detail, 1)
	assert.Contains(t, detail, "rssi")
}

func TestRunUnknownStage(t *testing.T) {
	rec := &reporter.Recorder{}
	r := newTestRunner(rec, 1)

	_, err := r.Run(context.Background(), models.Stage("camera"), "X")
	assert.True(t, errors.Is(err, ErrUnknownStage))
	assert.Empty(t, rec.Calls())

	_, err = r.Evaluate(models.Stage("camera"), "X")
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

func TestRunFullTestEmitsTenReportsInOrder(t *testing.T) {
	rec := &reporter.Recorder{}
	r := newTestRunner(rec, 3)

	var observed []*models.StageResult
	r.AddObserver(ObserverFunc(func(res *models.StageResult) { observed = append(observed, res) }))

	results, err := r.RunFullTest(context.Background(), "NL1")
	require.NoError(t, err)
	require.Len(t, results, 5)

	calls := rec.Calls()
	require.Len(t, calls, 10)
	for i, stage := range models.AllStages {
		start := decode(t, calls[2*i].Payload)
		final := decode(t, calls[2*i+1].Payload)
		assert.Equal(t, string(stage), start["stage"])
		assert.Equal(t, "testing", start["status"])
		assert.Equal(t, string(stage), final["stage"])
		assert.Contains(t, []interface{}{"pass", "fail"}, final["status"])
		assert.Equal(t, stage, results[i].Stage)
	}

	require.Len(t, observed, 10)
	runID := observed[0].RunID
	assert.NotEmpty(t, runID)
	for _, o := range observed {
		assert.Equal(t, runID, o.RunID)
	}
}

func TestRunFullTestContinuesWhenReporterFails(t *testing.T) {
	rec := &reporter.Recorder{Err: errors.New("connection refused")}
	r := newTestRunner(rec, 5)

	results, err := r.RunFullTest(context.Background(), "NL1")
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Len(t, rec.Calls(), 10)
}

func TestRunFullTestStopsOnCancel(t *testing.T) {
	rec := &reporter.Recorder{}
	r := newTestRunner(rec, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := r.RunFullTest(ctx, "NL1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestSameSeedSameOutcome(t *testing.T) {
	a := newTestRunner(&reporter.Recorder{}, 11)
	b := newTestRunner(&reporter.Recorder{}, 11)

	ra, err := a.RunFullTest(context.Background(), "S")
	require.NoError(t, err)
	rb, err := b.RunFullTest(context.Background(), "S")
	require.NoError(t, err)

	for i := range ra {
		assert.Equal(t, ra[i].Status, rb[i].Status)
		assert.Equal(t, ra[i].Detail, rb[i].Detail)
	}
}

func TestRealDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, RealDelay{}.Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RealDelay{}.Sleep(ctx, time.Hour), context.Canceled)
}
