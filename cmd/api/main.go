package main

import (
	"context"
	"flag"
	"os"

	"contractaudit/internal/api"
	"contractaudit/internal/chain"
	"contractaudit/internal/config"
	"contractaudit/internal/history"
	"contractaudit/internal/logging"
	"contractaudit/internal/output"
	"contractaudit/internal/shutdown"
	"contractaudit/internal/verifier"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口，覆盖配置文件")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *port > 0 {
		cfg.API.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("创建日志器失败: %v", err)
	}

	gs := shutdown.NewGracefulShutdown(0, logger)

	opts := make([]verifier.Option, 0, 2)
	outs, err := output.NewOutputs(cfg.Output, logger)
	if err != nil {
		logger.Fatalf("创建输出器失败: %v", err)
	}
	if len(outs) > 0 {
		multi := output.NewMultiOutput(outs, logger)
		gs.Register("outputs", shutdown.OrderFlushOutputs, func(ctx context.Context) error {
			return multi.Close()
		})
		opts = append(opts, verifier.WithOutput(multi))
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path, cfg.History.MaxRuns, logger)
		if err != nil {
			logger.Fatalf("打开运行历史失败: %v", err)
		}
		gs.Register("history", shutdown.OrderCloseStores, func(ctx context.Context) error {
			return store.Close()
		})
		opts = append(opts, verifier.WithHistory(store))
	}

	v := verifier.New(cfg, logger, chain.NewClient(cfg.Chain, logger), opts...)
	server := api.NewServer(cfg, v, store, logger)
	gs.Register("http", shutdown.OrderStopAcceptingRequests, server.Stop)
	gs.Register("logger", shutdown.OrderCleanupResources, func(ctx context.Context) error {
		return logging.Close(logger)
	})

	gs.ListenSignals()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("启动服务器失败: %v", err)
			_ = gs.Shutdown()
		}
	}()

	if err := gs.Wait(); err != nil {
		os.Exit(1)
	}
}
