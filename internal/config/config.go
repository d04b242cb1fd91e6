package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"contractaudit/internal/errors"
	"contractaudit/internal/logging"
)

// EnvPrefix 环境变量前缀，例如 CONTRACTAUDIT_CHAIN_API_URL
const EnvPrefix = "CONTRACTAUDIT"

// 支持的输出方式
const (
	SinkJSON     = "json"
	SinkYAML     = "yaml"
	SinkKafka    = "kafka"
	SinkPostgres = "postgres"
)

// Config 主配置
type Config struct {
	Chain    *ChainConfig       `mapstructure:"chain"`
	Registry *RegistryConfig    `mapstructure:"registry"`
	Output   *OutputConfig      `mapstructure:"output"`
	History  *HistoryConfig     `mapstructure:"history"`
	API      *APIConfig         `mapstructure:"api"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// ChainConfig 链上接口配置
type ChainConfig struct {
	APIURL         string   `mapstructure:"api_url"`
	CodePath       string   `mapstructure:"code_path"`
	ProposalsPath  string   `mapstructure:"proposals_path"`
	ProposalStatus string   `mapstructure:"proposal_status"`
	Timeout        string   `mapstructure:"timeout"`
	RetryLimit     int      `mapstructure:"retry_limit"` // 总尝试次数，1表示不重试
	PageLimit      int      `mapstructure:"page_limit"`  // 0表示不指定分页大小
	StoreCodeTypes []string `mapstructure:"store_code_types"`
}

// TimeoutDuration 请求超时
func (c *ChainConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RegistryConfig 注册表文件配置
type RegistryConfig struct {
	Path       string `mapstructure:"path"`
	ReadmePath string `mapstructure:"readme_path"`
	Strict     bool   `mapstructure:"strict"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// PostgresConfig 报告归档数据库配置
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Sinks     []string        `mapstructure:"sinks"`
	Directory string          `mapstructure:"directory"`
	Compress  bool            `mapstructure:"compress"`
	Kafka     *KafkaConfig    `mapstructure:"kafka"`
	Postgres  *PostgresConfig `mapstructure:"postgres"`
}

// HistoryConfig 运行历史配置
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// APIConfig 报告服务配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LoadConfig 加载配置：默认值 < 配置文件 < 环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, GetDefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.WrapError(err, errors.ErrorTypeConfig, errors.SeverityCritical,
					errors.CodeConfigInvalid, "读取配置文件失败").
					WithContext("path", configPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.WrapError(err, errors.ErrorTypeConfig, errors.SeverityCritical,
				errors.CodeConfigInvalid, "读取配置文件失败").
				WithContext("path", configPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfig, errors.SeverityCritical,
			errors.CodeConfigInvalid, "解析配置文件失败")
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults 注册默认值，环境变量只对已注册的键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("chain.api_url", d.Chain.APIURL)
	v.SetDefault("chain.code_path", d.Chain.CodePath)
	v.SetDefault("chain.proposals_path", d.Chain.ProposalsPath)
	v.SetDefault("chain.proposal_status", d.Chain.ProposalStatus)
	v.SetDefault("chain.timeout", d.Chain.Timeout)
	v.SetDefault("chain.retry_limit", d.Chain.RetryLimit)
	v.SetDefault("chain.page_limit", d.Chain.PageLimit)
	v.SetDefault("chain.store_code_types", d.Chain.StoreCodeTypes)

	v.SetDefault("registry.path", d.Registry.Path)
	v.SetDefault("registry.readme_path", d.Registry.ReadmePath)
	v.SetDefault("registry.strict", d.Registry.Strict)

	v.SetDefault("output.sinks", d.Output.Sinks)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.compress", d.Output.Compress)
	v.SetDefault("output.kafka.brokers", d.Output.Kafka.Brokers)
	v.SetDefault("output.kafka.topics", d.Output.Kafka.Topics)
	v.SetDefault("output.postgres.dsn", d.Output.Postgres.DSN)
	v.SetDefault("output.postgres.table", d.Output.Postgres.Table)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.max_runs", d.History.MaxRuns)

	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.mode", d.API.Mode)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.rotation", d.Logging.Rotation)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Chain: &ChainConfig{
			APIURL:         "https://api.xion-mainnet-1.burnt.com",
			CodePath:       "/cosmwasm/wasm/v1/code",
			ProposalsPath:  "/cosmos/gov/v1/proposals",
			ProposalStatus: "0",
			Timeout:        "30s",
			RetryLimit:     1,
			PageLimit:      0,
			StoreCodeTypes: []string{"/cosmwasm.wasm.v1.MsgStoreCode"},
		},
		Registry: &RegistryConfig{
			Path:       "contracts.json",
			ReadmePath: "README.md",
			Strict:     false,
		},
		Output: &OutputConfig{
			Sinks:     []string{},
			Directory: "./reports",
			Compress:  false,
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"reports":       "contract_audit_reports",
					"discrepancies": "contract_audit_discrepancies",
				},
			},
			Postgres: &PostgresConfig{
				DSN:   "",
				Table: "contract_audit_reports",
			},
		},
		History: &HistoryConfig{
			Enabled: true,
			Path:    "./data/history.db",
			MaxRuns: 500,
		},
		API: &APIConfig{
			Port: 8080,
			Mode: "release",
		},
		Logging: &logging.LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			Rotation:   false,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.NewAuditError(errors.ErrorTypeConfig, errors.SeverityCritical,
		errors.CodeConfigInvalid, fmt.Sprintf(format, args...))
}

// ValidateConfig 校验配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return invalid("配置为空")
	}
	if config.Chain == nil || config.Output == nil || config.Logging == nil {
		return invalid("缺少必需的配置段")
	}
	if err := validateChainConfig(config.Chain); err != nil {
		return err
	}
	if err := validateOutputConfig(config.Output); err != nil {
		return err
	}
	if config.History != nil && config.History.Enabled && config.History.Path == "" {
		return invalid("启用历史记录时必须指定history.path")
	}
	return nil
}

func validateChainConfig(c *ChainConfig) error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("chain.api_url无效: %q", c.APIURL)
	}
	if !strings.HasPrefix(c.CodePath, "/") || !strings.HasPrefix(c.ProposalsPath, "/") {
		return invalid("chain.code_path与chain.proposals_path必须以/开头")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return invalid("chain.timeout无效: %q", c.Timeout)
	}
	if c.RetryLimit < 1 {
		return invalid("chain.retry_limit至少为1")
	}
	if c.PageLimit < 0 {
		return invalid("chain.page_limit不能为负数")
	}
	return nil
}

func validateOutputConfig(o *OutputConfig) error {
	for _, sink := range o.Sinks {
		switch sink {
		case SinkJSON, SinkYAML:
			if o.Directory == "" {
				return invalid("文件输出需要指定output.directory")
			}
		case SinkKafka:
			if o.Kafka == nil || len(o.Kafka.Brokers) == 0 {
				return invalid("Kafka输出需要至少一个broker")
			}
			for _, broker := range o.Kafka.Brokers {
				if !strings.Contains(broker, ":") {
					return invalid("Kafka broker格式无效: %s", broker)
				}
			}
			if o.Kafka.Topics["reports"] == "" {
				return invalid("Kafka输出需要指定reports主题")
			}
		case SinkPostgres:
			if o.Postgres == nil || o.Postgres.DSN == "" {
				return invalid("Postgres输出需要指定output.postgres.dsn")
			}
		default:
			return invalid("不支持的输出方式: %s", sink)
		}
	}
	return nil
}

// HasSink 是否启用了指定输出方式
func (o *OutputConfig) HasSink(sink string) bool {
	for _, s := range o.Sinks {
		if s == sink {
			return true
		}
	}
	return false
}
