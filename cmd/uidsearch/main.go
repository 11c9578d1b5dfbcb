package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"pcba_station/pkg/command"
	"pcba_station/pkg/config"
	"pcba_station/pkg/logger"
	"pcba_station/pkg/models"
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
		Use:           "uid-searcher [UID]",
		Short:         "Search for a device UID and send it to the backend",
		Long:          "模拟从本机设备读取 UID，并通过 HTTP POST 发送到 /api/pcba/uid-search",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSearch,
	}

	rootCmd.Flags().StringVarP(&backendURL, "backend", "b", "", "后端基础地址（默认读取配置）")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "输出调试日志")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "uid-searcher: %v\n", err)
		os.Exit(1)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("backend") {
		cfg.BackendURL = backendURL
	}

	log, err := logger.New(debug || cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rng := stage.NewRand(stage.SeedFromClock())

	var uid string
	if len(args) == 1 {
		uid = args[0]
		log.Info("Using specified UID: %s", uid)
	} else {
		log.Info("Searching for device...")
		searchDelay := time.Duration(1+rng.IntN(2)) * time.Second
		if err := (stage.RealDelay{}).Sleep(ctx, searchDelay); err != nil {
			return err
		}
		uid = command.NewUIDGenerator(rng, nil).Generate()
		log.Info("Device found! UID: %s", uid)
	}

	endpoint := reporter.NewEndpoints(cfg.BackendURL).UIDSearch
	log.Info("Sending UID to backend: %s", endpoint)

	rep := reporter.NewHTTPReporter(cfg.HTTPTimeout)
	if err := reporter.SendJSON(ctx, rep, endpoint, models.UIDPayload{UID: uid}); err != nil {
		log.Error("Failed to send UID to backend, please check if backend is running at %s", cfg.BackendURL)
		return err
	}

	log.Info("UID search completed successfully")
	return nil
}
