package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"contractaudit/internal/config"
	"contractaudit/internal/logging"
)

var (
	configFile   string
	logLevel     string
	registryPath string
)

// errReported 结果已经输出给用户，只需要以非零状态退出
var errReported = stderrors.New("已报告")

func main() {
	rootCmd := &cobra.Command{
		Use:           "contractaudit",
		Short:         "合约注册表对账工具",
		Long:          `对比合约注册表、链上代码存储与治理提案上传记录，报告五类差异`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runVerify,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别，覆盖配置文件")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "注册表文件路径，覆盖配置文件")
	addVerifyFlags(rootCmd)

	rootCmd.AddCommand(
		newVerifyCmd(),
		newValidateCmd(),
		newLintCmd(),
		newInspectCmd(),
		newReadmeCmd(),
		newHistoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if !stderrors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		}
		os.Exit(1)
	}
}

// setup 加载配置并创建日志器
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if registryPath != "" {
		cfg.Registry.Path = registryPath
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
