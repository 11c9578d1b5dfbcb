package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcba_station/pkg/api"
	"pcba_station/pkg/command"
	"pcba_station/pkg/config"
	"pcba_station/pkg/logger"
	"pcba_station/pkg/metrics"
	"pcba_station/pkg/models"
	"pcba_station/pkg/mqtt"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"
	"pcba_station/pkg/watcher"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	sharedFile   string
	backendURL   string
	watchMode    string
	pollInterval time.Duration
	apiAddr      string
	debug        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pcba-watcher",
		Short:         "PCBA test station watcher",
		Long:          "监看共享命令文件，执行 PCBA 测试流程与 UID 搜索，并把结果上报到后端",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatcher,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML配置文件路径")
	rootCmd.Flags().StringVarP(&sharedFile, "file", "f", "", "共享命令文件路径")
	rootCmd.Flags().StringVarP(&backendURL, "backend", "b", "", "后端基础地址")
	rootCmd.Flags().StringVarP(&watchMode, "mode", "m", "", "监看模式: poll 或 notify")
	rootCmd.Flags().DurationVarP(&pollInterval, "interval", "i", 0, "轮询间隔")
	rootCmd.Flags().StringVarP(&apiAddr, "api", "a", "", "控制API监听地址，为空则不启动")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "输出调试日志")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pcba-watcher: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 配置文件和环境变量之上再叠加命令行参数
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("file") {
		cfg.SharedFile = sharedFile
	}
	if flags.Changed("backend") {
		cfg.BackendURL = backendURL
	}
	if flags.Changed("mode") {
		cfg.WatchMode = watchMode
	}
	if flags.Changed("interval") {
		cfg.PollInterval = pollInterval
	}
	if flags.Changed("api") {
		cfg.APIAddr = apiAddr
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoints := reporter.NewEndpoints(cfg.BackendURL)
	rep := reporter.WithObserver(reporter.NewHTTPReporter(cfg.HTTPTimeout), metrics.ObserveReport)
	rng := stage.NewRand(stage.SeedFromClock())

	runner := stage.NewRunner(stage.RunnerConfig{
		Reporter:   rep,
		Endpoint:   endpoints.Events,
		Rand:       rng,
		StageDelay: cfg.StageDelay,
		Logger:     log.With("component", "runner"),
	})
	runner.AddObserver(stage.ObserverFunc(metrics.ObserveStageResult))

	history := api.NewHistory(api.DefaultHistorySize)
	runner.AddObserver(history)

	commands := api.NewCommandService(cfg.SharedFile)
	onUID := []func(string){metrics.ObserveUID}

	if cfg.MQTT.Enabled() {
		client := mqtt.NewClient(cfg.MQTT, log.With("component", "mqtt"))
		if err := client.Connect(); err != nil {
			log.Warn("MQTT镜像未启用: %v", err)
		} else {
			defer client.Disconnect()
			mirror := mqtt.NewMirror(client, log.With("component", "mqtt"))
			runner.AddObserver(mirror)
			onUID = append(onUID, mirror.OnUID)
		}
	}

	interp := command.NewInterpreter(command.InterpreterConfig{
		Runner:           runner,
		Reporter:         rep,
		UIDFoundEndpoint: endpoints.UIDFound,
		UIDs:             command.NewUIDGenerator(rng, nil),
		SearchDelay:      cfg.SearchDelay,
		Logger:           log.With("component", "command"),
		Hooks: command.Hooks{
			OnCommand: func(c models.Command) {
				metrics.ObserveCommand(c)
				commands.MarkDispatched(c)
			},
			OnUID: func(uid string) {
				for _, fn := range onUID {
					fn(uid)
				}
			},
		},
	})

	source, err := newSource(cfg, log)
	if err != nil {
		return err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	if cfg.APIAddr != "" {
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		server := api.NewServer(commands, history, log.With("component", "api"))
		go func() {
			if err := server.Run(ctx, cfg.APIAddr); err != nil {
				log.Error("Station API stopped: %v", err)
			}
		}()
	}

	log.Info("PCBA 测试站启动: 文件 %s, 后端 %s, 模式 %s", cfg.SharedFile, cfg.BackendURL, cfg.WatchMode)

	err = watcher.New(source, interp, log.With("component", "watcher")).Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("测试站已停止")
		return nil
	}
	return err
}

func newSource(cfg *config.Config, log *logger.ZapLogger) (watcher.Source, error) {
	srcLog := log.With("component", "source")
	if cfg.WatchMode == config.WatchModeNotify {
		src, err := watcher.NewNotifySource(cfg.SharedFile, cfg.PollInterval, srcLog)
		if err != nil {
			return nil, fmt.Errorf("start notify source: %w", err)
		}
		return src, nil
	}
	return watcher.NewPollSource(cfg.SharedFile, cfg.PollInterval, srcLog), nil
}
