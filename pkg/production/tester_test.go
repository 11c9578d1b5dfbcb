package production

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 10, 30, 0, 0, time.Local) }

func newTester(rec reporter.Reporter) *Tester {
	return New(Config{
		DeviceID:    "TESTER_001",
		TestStation: "STATION_A",
		Reporter:    rec,
		Endpoint:    "http://backend/api/test-records/",
		Rand:        stage.NewRand(7),
		Delay:       stage.NoDelay{},
		Now:         fixedNow,
	})
}

func TestJudge(t *testing.T) {
	v, c, temp := Judge(5.0, 0.5, 25)
	assert.True(t, v && c && temp)

	v, c, temp = Judge(4.89, 0.47, 32.1)
	assert.False(t, v)
	assert.False(t, c)
	assert.False(t, temp)

	v, c, temp = Judge(5.1, 0.52, 32)
	assert.True(t, v && c && temp)
}

func TestGenerateRecord(t *testing.T) {
	tester := newTester(&reporter.Recorder{})

	for i := 0; i < 200; i++ {
		rec := tester.Generate()

		assert.Equal(t, "TESTER_001", rec.DeviceID)
		assert.Equal(t, "STATION_A", rec.TestStation)
		assert.Contains(t, ProductNames, rec.ProductName)
		assert.GreaterOrEqual(t, rec.Voltage, 4.8)
		assert.LessOrEqual(t, rec.Voltage, 5.2)
		assert.GreaterOrEqual(t, rec.Current, 0.45)
		assert.LessOrEqual(t, rec.Current, 0.55)
		assert.GreaterOrEqual(t, rec.Temperature, 20.0)
		assert.LessOrEqual(t, rec.Temperature, 35.0)
		assert.Equal(t, "2024-03-05T10:30:00.000000", rec.TestTime)

		v, c, temp := Judge(rec.Voltage, rec.Current, rec.Temperature)
		if v && c && temp {
			assert.Equal(t, ResultPass, rec.TestResult)
		} else {
			assert.Equal(t, ResultFail, rec.TestResult)
		}

		var details Details
		require.NoError(t, json.Unmarshal([]byte(rec.TestData), &details))
		assert.Equal(t, v, details.VoltageOK)
		assert.Equal(t, c, details.CurrentOK)
		assert.Equal(t, temp, details.TempOK)
		assert.GreaterOrEqual(t, details.TestDurationMs, 1000)
		assert.LessOrEqual(t, details.TestDurationMs, 3000)
		assert.NotEmpty(t, details.RunID)
	}
}

func TestSerialNumbersIncrement(t *testing.T) {
	tester := newTester(&reporter.Recorder{})

	assert.Equal(t, "SN202403051000", tester.Generate().SerialNumber)
	assert.Equal(t, "SN202403051001", tester.Generate().SerialNumber)
	assert.Equal(t, "SN202403051002", tester.Generate().SerialNumber)
}

func TestRunSingleUploads(t *testing.T) {
	var got models.TestRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, reporter.RecordsPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tester := New(Config{
		DeviceID:    "TESTER_001",
		TestStation: "STATION_A",
		Reporter:    reporter.NewHTTPReporter(time.Second),
		Endpoint:    reporter.NewEndpoints(srv.URL).Records,
		Rand:        stage.NewRand(1),
		Now:         fixedNow,
	})

	rec, err := tester.RunSingle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec.SerialNumber, got.SerialNumber)
	assert.Equal(t, rec.TestResult, got.TestResult)
}

func TestRunSingleReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad record", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	tester := New(Config{Reporter: reporter.NewHTTPReporter(time.Second), Endpoint: srv.URL + reporter.RecordsPath})
	_, err := tester.RunSingle(context.Background())

	var terr *reporter.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusUnprocessableEntity, terr.StatusCode)
	assert.True(t, strings.Contains(terr.Body, "bad record"))
}

func TestRunBatch(t *testing.T) {
	rec := &reporter.Recorder{}
	tester := newTester(rec)

	summary, err := tester.RunBatch(context.Background(), 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Uploaded)
	assert.LessOrEqual(t, summary.Passed, 5)

	calls := rec.Calls()
	require.Len(t, calls, 5)
	var last models.TestRecord
	require.NoError(t, json.Unmarshal(calls[4].Payload, &last))
	assert.Equal(t, "SN202403051004", last.SerialNumber)
}

func TestRunBatchCountsFailedUploads(t *testing.T) {
	rec := &reporter.Recorder{Err: errors.New("connection refused")}
	summary, err := newTester(rec).RunBatch(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 0, summary.Uploaded)
}

// countingDelay 第 n 次等待时取消
type countingDelay struct {
	n      int
	calls  int
	cancel context.CancelFunc
}

func (d *countingDelay) Sleep(ctx context.Context, _ time.Duration) error {
	d.calls++
	if d.calls >= d.n {
		d.cancel()
	}
	return ctx.Err()
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &reporter.Recorder{}
	tester := New(Config{
		Reporter: rec,
		Endpoint: "http://backend/api/test-records/",
		Rand:     stage.NewRand(3),
		Delay:    &countingDelay{n: 4, cancel: cancel},
	})

	summary, err := tester.RunContinuous(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, summary.Total)
	assert.Len(t, rec.Calls(), 4)
}
