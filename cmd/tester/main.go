package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pcba_station/pkg/config"
	"pcba_station/pkg/logger"
	"pcba_station/pkg/production"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"

	"github.com/spf13/cobra"
)

var (
	backendURL string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pcba-tester",
		Short:         "Production line tester simulator",
		Long:          "模拟产线测试设备，生成测试记录并上传到后端 /api/test-records/",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runContinuous(cmd, nil)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&backendURL, "backend", "b", "", "后端基础地址（默认读取配置）")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "输出调试日志")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "single",
			Short: "执行单次测试",
			Args:  cobra.NoArgs,
			RunE:  runSingle,
		},
		&cobra.Command{
			Use:   "batch [count]",
			Short: "执行批次测试（默认 10 笔，间隔 1 秒）",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runBatch,
		},
		&cobra.Command{
			Use:   "continuous [interval]",
			Short: "连续测试模式（默认间隔 5 秒）",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runContinuous,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pcba-tester: %v\n", err)
		os.Exit(1)
	}
}

// setup 加载配置并创建测试器
func setup(cmd *cobra.Command) (*production.Tester, *logger.ZapLogger, error) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("backend") {
		cfg.BackendURL = backendURL
	}

	log, err := logger.New(debug || cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	endpoint := reporter.NewEndpoints(cfg.BackendURL).Records
	log.Info("设备ID: %s, 测试站: %s, API URL: %s", cfg.DeviceID, cfg.TestStation, endpoint)

	tester := production.New(production.Config{
		DeviceID:    cfg.DeviceID,
		TestStation: cfg.TestStation,
		Reporter:    reporter.NewHTTPReporter(5 * time.Second),
		Endpoint:    endpoint,
		Rand:        stage.NewRand(stage.SeedFromClock()),
		Logger:      log,
	})
	return tester, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSingle(cmd *cobra.Command, _ []string) error {
	tester, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	record := tester.Generate()
	data, _ := json.MarshalIndent(record, "", "  ")
	fmt.Fprintf(cmd.OutOrStdout(), "生成测试资料:\n%s\n", data)

	return tester.Upload(ctx, record)
}

func runBatch(cmd *cobra.Command, args []string) error {
	count := 10
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count: %q", args[0])
		}
		count = n
	}

	tester, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	_, err = tester.RunBatch(ctx, count, time.Second)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runContinuous(cmd *cobra.Command, args []string) error {
	interval := 5 * time.Second
	if len(args) == 1 {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid interval: %q", args[0])
		}
		interval = time.Duration(secs * float64(time.Second))
	}

	tester, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	summary, err := tester.RunContinuous(ctx, interval)
	log.Info("共执行 %d 笔，上传 %d 笔，通过 %d 笔", summary.Total, summary.Uploaded, summary.Passed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
