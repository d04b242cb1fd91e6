package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level" mapstructure:"level"`                   // 日志级别 (debug, info, warn, error)
	Format     string `json:"format" yaml:"format" mapstructure:"format"`                // 日志格式 (json, text)
	Output     string `json:"output" yaml:"output" mapstructure:"output"`                // 输出路径 (stdout, stderr, file path)
	Rotation   bool   `json:"rotation" yaml:"rotation" mapstructure:"rotation"`          // 是否启用日志轮转
	MaxSize    int    `json:"max_size" yaml:"max_size" mapstructure:"max_size"`          // 单个日志文件最大大小(MB)
	MaxAge     int    `json:"max_age" yaml:"max_age" mapstructure:"max_age"`             // 日志文件保留天数
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"` // 保留的日志文件数量
	Compress   bool   `json:"compress" yaml:"compress" mapstructure:"compress"`          // 是否压缩轮转的日志文件
}

// DefaultLogConfig 默认日志配置
var DefaultLogConfig = &LogConfig{
	Level:      "info",
	Format:     "text",
	Output:     "stderr",
	Rotation:   false,
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 3,
	Compress:   true,
}

// NewLogger 按配置创建logrus日志器
func NewLogger(config *LogConfig) (*logrus.Logger, error) {
	if config == nil {
		config = DefaultLogConfig
	}

	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}

	writer, err := getLogWriter(config)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(writer)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", config.Format)
	}

	return logger, nil
}

// parseLogLevel 解析日志级别
func parseLogLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("未知的日志级别: %s", levelStr)
	}
}

// getLogWriter 获取日志输出
func getLogWriter(config *LogConfig) (io.Writer, error) {
	switch config.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	}

	dir := filepath.Dir(config.Output)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	if config.Rotation {
		return &lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    config.MaxSize,
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		}, nil
	}

	file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	return file, nil
}

// Close 关闭日志文件输出
func Close(logger *logrus.Logger) error {
	if closer, ok := logger.Out.(io.Closer); ok && logger.Out != os.Stdout && logger.Out != os.Stderr {
		return closer.Close()
	}
	return nil
}

// NewComponentLogger 组件日志器
func NewComponentLogger(base *logrus.Logger, component string) *logrus.Entry {
	return base.WithField("component", component)
}

// NewRunLogger 单次对账运行日志器
func NewRunLogger(base *logrus.Logger, runID string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "verifier",
		"run_id":    runID,
	})
}

// NewChainLogger 链上接口请求日志器
func NewChainLogger(base *logrus.Logger, endpoint string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "chain_client",
		"endpoint":  endpoint,
	})
}
