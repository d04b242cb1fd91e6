package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"contractaudit/internal/chain"
	"contractaudit/internal/config"
	"contractaudit/internal/history"
	"contractaudit/internal/logging"
	"contractaudit/internal/output"
	"contractaudit/internal/report"
	"contractaudit/internal/shutdown"
	"contractaudit/internal/verifier"
)

var (
	sinks      []string
	jsonReport bool
	noHistory  bool
)

func addVerifyFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&sinks, "sink", nil, "报告输出方式 (json, yaml, kafka, postgres)，覆盖配置文件")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "以JSON格式打印报告")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "不记录运行历史")
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "对账注册表与链上数据",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	}
	addVerifyFlags(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Close(logger)

	if len(sinks) > 0 {
		cfg.Output.Sinks = sinks
		if err := config.ValidateConfig(cfg); err != nil {
			return err
		}
	}

	gs := shutdown.NewGracefulShutdown(0, logger)
	gs.ListenSignals()
	defer gs.Shutdown()

	v, err := buildVerifier(cfg, logger, gs)
	if err != nil {
		return err
	}

	res, err := v.Run(gs.Context())
	if err != nil {
		var ve *verifier.ValidationError
		if stderrors.As(err, &ve) {
			printValidation(ve.Result)
			return errReported
		}
		return err
	}

	if jsonReport {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Report); err != nil {
			return err
		}
	} else if err := report.Write(os.Stdout, res.Report); err != nil {
		return err
	}

	if !res.Report.Clean() {
		return errReported
	}
	return nil
}

// buildVerifier 按配置组装对账器，输出与历史的关闭注册到停机管理器
func buildVerifier(cfg *config.Config, logger *logrus.Logger, gs *shutdown.GracefulShutdown) (*verifier.Verifier, error) {
	opts := make([]verifier.Option, 0, 2)

	outs, err := output.NewOutputs(cfg.Output, logger)
	if err != nil {
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}
	if len(outs) > 0 {
		multi := output.NewMultiOutput(outs, logger)
		gs.Register("outputs", shutdown.OrderFlushOutputs, func(ctx context.Context) error {
			return multi.Close()
		})
		opts = append(opts, verifier.WithOutput(multi))
	}

	if cfg.History.Enabled && !noHistory {
		store, err := history.NewStore(cfg.History.Path, cfg.History.MaxRuns, logger)
		if err != nil {
			// 历史不可用不影响对账
			logger.WithError(err).Warn("打开运行历史失败")
		} else {
			gs.Register("history", shutdown.OrderCloseStores, func(ctx context.Context) error {
				return store.Close()
			})
			opts = append(opts, verifier.WithHistory(store))
		}
	}

	client := chain.NewClient(cfg.Chain, logger)
	return verifier.New(cfg, logger, client, opts...), nil
}
