package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"pcba_station/pkg/config"
	"pcba_station/pkg/models"
	"pcba_station/pkg/reporter"
	"pcba_station/pkg/stage"

	"github.com/spf13/cobra"
)

// 退出码
const (
	exitOK           = 0
	exitUsage        = 1
	exitUnknownStage = 2
)

// exitError 携带退出码的错误
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

var (
	report     bool
	backendURL string
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	report, backendURL = false, ""

	rootCmd := &cobra.Command{
		Use:           "pcba-demo <stage> <serial>",
		Short:         "Evaluate a single PCBA test stage",
		Long:          "计算单一测试阶段的结果并输出 JSON，stage: wifi|firmware|touch|bluetooth|speaker",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), args, stdout)
		},
	}

	rootCmd.Flags().BoolVarP(&report, "report", "r", false, "同时把结果上报到后端")
	rootCmd.Flags().StringVarP(&backendURL, "backend", "b", "", "后端基础地址（默认读取配置）")
	return rootCmd
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(stderr, err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

func runDemo(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return &exitError{code: exitUsage, err: errors.New("usage: pcba-demo <stage> <serial>")}
	}

	name, serial := args[0], args[1]
	st, ok := models.ParseStage(name)
	if !ok {
		return &exitError{code: exitUnknownStage, err: fmt.Errorf("unknown stage: %s", name)}
	}

	runner := stage.NewRunner(stage.RunnerConfig{Rand: stage.NewRand(stage.SeedFromClock())})
	result, err := runner.Evaluate(st, serial)
	if err != nil {
		return &exitError{code: exitUnknownStage, err: err}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(payload))

	if !report {
		return nil
	}

	base := backendURL
	if base == "" {
		cfg, err := config.LoadConfig("")
		if err != nil {
			return err
		}
		base = cfg.BackendURL
	}

	endpoint := reporter.NewEndpoints(base).Events
	if err := reporter.NewHTTPReporter(0).Send(ctx, endpoint, payload); err != nil {
		return fmt.Errorf("report failed: %w", err)
	}
	return nil
}
