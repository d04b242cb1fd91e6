package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"contractaudit/internal/config"
	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// Output 报告输出接口
type Output interface {
	Name() string
	WriteReport(report *models.DiscrepancyReport) error
	Close() error
}

// NewOutputs 按配置创建全部输出器
func NewOutputs(cfg *config.OutputConfig, logger *logrus.Logger) ([]Output, error) {
	outputs := make([]Output, 0, len(cfg.Sinks))

	for _, sink := range cfg.Sinks {
		var (
			out Output
			err error
		)

		switch sink {
		case config.SinkJSON, config.SinkYAML:
			out, err = NewFileOutput(cfg.Directory, sink, cfg.Compress, logger)
		case config.SinkKafka:
			out, err = NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		case config.SinkPostgres:
			out, err = NewPostgresOutput(cfg.Postgres.DSN, cfg.Postgres.Table, logger)
		default:
			err = fmt.Errorf("不支持的输出方式: %s", sink)
		}

		if err != nil {
			closeAll(outputs, logger)
			return nil, err
		}
		outputs = append(outputs, out)
	}

	return outputs, nil
}

// MultiOutput 依次写入多个输出器，单个失败不影响其余输出器
type MultiOutput struct {
	outputs []Output
	logger  *logrus.Logger
}

// NewMultiOutput 创建组合输出器
func NewMultiOutput(outputs []Output, logger *logrus.Logger) *MultiOutput {
	return &MultiOutput{outputs: outputs, logger: logger}
}

// Name 输出器名称
func (m *MultiOutput) Name() string {
	names := make([]string, 0, len(m.outputs))
	for _, o := range m.outputs {
		names = append(names, o.Name())
	}
	return strings.Join(names, ",")
}

// WriteReport 写入报告，返回第一个错误
func (m *MultiOutput) WriteReport(report *models.DiscrepancyReport) error {
	var firstErr error
	for _, o := range m.outputs {
		if err := o.WriteReport(report); err != nil {
			m.logger.WithError(err).WithField("sink", o.Name()).Error("写入报告失败")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close 关闭全部输出器
func (m *MultiOutput) Close() error {
	return closeAll(m.outputs, m.logger)
}

func closeAll(outputs []Output, logger *logrus.Logger) error {
	var firstErr error
	for _, o := range outputs {
		if err := o.Close(); err != nil {
			logger.WithError(err).WithField("sink", o.Name()).Warn("关闭输出器失败")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FileOutput 文件输出，每次运行生成一个报告文件
type FileOutput struct {
	outputDir string
	format    string
	compress  bool
	logger    *logrus.Logger

	lastPath string
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputDir, format string, compress bool, logger *logrus.Logger) (*FileOutput, error) {
	if format != config.SinkJSON && format != config.SinkYAML {
		return nil, fmt.Errorf("不支持的文件格式: %s", format)
	}

	// 确保输出目录存在
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityHigh,
			errors.CodeFileIOFailed, "创建输出目录失败").
			WithContext("path", outputDir)
	}

	return &FileOutput{
		outputDir: outputDir,
		format:    format,
		compress:  compress,
		logger:    logger,
	}, nil
}

// Name 输出器名称
func (o *FileOutput) Name() string {
	return o.format
}

// LastPath 最近一次写入的文件路径
func (o *FileOutput) LastPath() string {
	return o.lastPath
}

// WriteReport 写入报告文件
func (o *FileOutput) WriteReport(report *models.DiscrepancyReport) error {
	if report == nil {
		return nil
	}

	data, err := o.encode(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityHigh,
			errors.CodeSerializationFailed, "序列化报告失败")
	}

	path := filepath.Join(o.outputDir, o.fileName(report))
	if err := writeFile(path, data, o.compress); err != nil {
		return errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityHigh,
			errors.CodeFileIOFailed, "写入报告文件失败").
			WithContext("path", path)
	}

	o.lastPath = path
	o.logger.WithFields(logrus.Fields{
		"path":   path,
		"total":  report.Total(),
		"format": o.format,
	}).Info("报告已写入文件")
	return nil
}

// Close 文件输出器无需释放资源
func (o *FileOutput) Close() error {
	return nil
}

func (o *FileOutput) encode(report *models.DiscrepancyReport) ([]byte, error) {
	if o.format == config.SinkYAML {
		return yaml.Marshal(report)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (o *FileOutput) fileName(report *models.DiscrepancyReport) string {
	timestamp := report.GeneratedAt.UTC().Format("20060102_150405")
	name := "report_" + timestamp
	if report.RunID != "" {
		id := report.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		name += "_" + id
	}
	name += "." + o.format
	if o.compress {
		name += ".gz"
	}
	return name
}

func writeFile(path string, data []byte, compress bool) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if !compress {
		if _, err := file.Write(data); err != nil {
			return err
		}
		return file.Sync()
	}

	zw := gzip.NewWriter(file)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return file.Sync()
}
