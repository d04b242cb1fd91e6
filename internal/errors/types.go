package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout
	ErrorTypeRateLimit
	ErrorTypeTransport

	// 链与提案相关错误
	ErrorTypeChain
	ErrorTypeProposal

	// 数据相关错误
	ErrorTypeData
	ErrorTypeSerialization
	ErrorTypeValidation
	ErrorTypeHashCompute

	// 系统相关错误
	ErrorTypeSystem
	ErrorTypeFileIO
	ErrorTypeConfig
	ErrorTypeStorage

	// 外部服务错误
	ErrorTypeKafka
	ErrorTypeDatabase
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// 错误码
const (
	CodeDatasetShapeInvalid = "DATASET_SHAPE_INVALID"
	CodeDuplicateCodeID     = "DUPLICATE_CODE_ID"
	CodeTransportFailed     = "TRANSPORT_FAILED"
	CodeUnexpectedStatus    = "UNEXPECTED_STATUS"
	CodeHashComputeFailed   = "HASH_COMPUTE_FAILED"
	CodeFileIOFailed        = "FILE_IO_FAILED"
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeKafkaProduceFailed  = "KAFKA_PRODUCE_FAILED"
	CodeStorageFailed       = "STORAGE_FAILED"
	CodeDatabaseFailed      = "DATABASE_FAILED"
	CodeSerializationFailed = "SERIALIZATION_FAILED"
	CodeInvalidCodeID       = "INVALID_CODE_ID"
	CodeProposalMsgInvalid  = "PROPOSAL_MESSAGE_INVALID"
)

// AuditError 自定义错误类型
type AuditError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Component  string                 `json:"component"`
	CodeID     *string                `json:"code_id,omitempty"`
	ProposalID *string                `json:"proposal_id,omitempty"`
}

// Error 实现error接口
func (e *AuditError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，使预定义错误可以配合errors.Is使用
func (e *AuditError) Is(target error) bool {
	t, ok := target.(*AuditError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable 判断是否可重试
func (e *AuditError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *AuditError) WithContext(key string, value interface{}) *AuditError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent 设置出错组件
func (e *AuditError) WithComponent(component string) *AuditError {
	e.Component = component
	return e
}

// WithCodeID 添加代码编号
func (e *AuditError) WithCodeID(codeID string) *AuditError {
	e.CodeID = &codeID
	return e
}

// WithProposalID 添加提案编号
func (e *AuditError) WithProposalID(proposalID string) *AuditError {
	e.ProposalID = &proposalID
	return e
}

// NewAuditError 创建新的错误
func NewAuditError(errorType ErrorType, severity ErrorSeverity, code, message string) *AuditError {
	return &AuditError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType, code),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *AuditError {
	return &AuditError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType, code),
	}
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType, code string) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeRateLimit:
		return true
	case ErrorTypeKafka:
		return true
	case ErrorTypeTransport:
		// 非成功状态码由服务端决定，重试无意义
		return code != CodeUnexpectedStatus
	default:
		return false
	}
}

// NewDatasetShapeError 注册表结构校验失败，消息带字段路径
func NewDatasetShapeError(message string) *AuditError {
	return NewAuditError(ErrorTypeValidation, SeverityHigh, CodeDatasetShapeInvalid, message).
		WithComponent("validation")
}

// NewTransportError 请求链上接口失败
func NewTransportError(err error, url string) *AuditError {
	return WrapError(err, ErrorTypeTransport, SeverityHigh, CodeTransportFailed, "请求链上接口失败").
		WithComponent("chain").
		WithContext("url", url)
}

// NewStatusError 链上接口返回非成功状态码
func NewStatusError(url string, status int, body string) *AuditError {
	return NewAuditError(ErrorTypeTransport, SeverityHigh, CodeUnexpectedStatus,
		fmt.Sprintf("接口返回状态码 %d", status)).
		WithComponent("chain").
		WithContext("url", url).
		WithContext("status", status).
		WithContext("body", body)
}

// NewHashComputeError 无法计算内容哈希
func NewHashComputeError(err error) *AuditError {
	return WrapError(err, ErrorTypeHashCompute, SeverityMedium, CodeHashComputeFailed, "内容哈希计算失败").
		WithComponent("hashing")
}

// NewInvalidCodeIDError 请求链上代码时编号不是十进制整数
func NewInvalidCodeIDError(codeID string) *AuditError {
	return NewAuditError(ErrorTypeChain, SeverityMedium, CodeInvalidCodeID,
		fmt.Sprintf("无效的code_id: %q", codeID)).
		WithComponent("chain").
		WithCodeID(codeID)
}

// NewProposalMessageError 提案中的代码上传消息无法使用
func NewProposalMessageError(message string) *AuditError {
	return NewAuditError(ErrorTypeProposal, SeverityMedium, CodeProposalMsgInvalid, message).
		WithComponent("proposal")
}

// NewKafkaError 发送到Kafka失败
func NewKafkaError(err error, message string) *AuditError {
	return WrapError(err, ErrorTypeKafka, SeverityHigh, CodeKafkaProduceFailed, message).
		WithComponent("output")
}

// 预定义错误
var (
	// 数据错误
	ErrDatasetShape = NewAuditError(
		ErrorTypeValidation,
		SeverityHigh,
		CodeDatasetShapeInvalid,
		"注册表结构无效",
	)

	ErrDuplicateCodeID = NewAuditError(
		ErrorTypeValidation,
		SeverityHigh,
		CodeDuplicateCodeID,
		"注册表中存在重复的代码编号",
	)

	ErrSerializationFailed = NewAuditError(
		ErrorTypeSerialization,
		SeverityMedium,
		CodeSerializationFailed,
		"数据序列化失败",
	)

	ErrHashCompute = NewAuditError(
		ErrorTypeHashCompute,
		SeverityMedium,
		CodeHashComputeFailed,
		"内容哈希计算失败",
	)

	// 链与提案错误
	ErrInvalidCodeID = NewAuditError(
		ErrorTypeChain,
		SeverityMedium,
		CodeInvalidCodeID,
		"无效的代码编号",
	)

	ErrProposalMsgInvalid = NewAuditError(
		ErrorTypeProposal,
		SeverityMedium,
		CodeProposalMsgInvalid,
		"提案消息无效",
	)

	// 传输错误
	ErrTransportFailed = NewAuditError(
		ErrorTypeTransport,
		SeverityHigh,
		CodeTransportFailed,
		"请求链上接口失败",
	)

	ErrUnexpectedStatus = NewAuditError(
		ErrorTypeTransport,
		SeverityHigh,
		CodeUnexpectedStatus,
		"接口返回非成功状态码",
	)

	// 系统错误
	ErrFileIOFailed = NewAuditError(
		ErrorTypeFileIO,
		SeverityHigh,
		CodeFileIOFailed,
		"文件操作失败",
	)

	ErrConfigInvalid = NewAuditError(
		ErrorTypeConfig,
		SeverityCritical,
		CodeConfigInvalid,
		"配置无效",
	)

	ErrStorageFailed = NewAuditError(
		ErrorTypeStorage,
		SeverityHigh,
		CodeStorageFailed,
		"历史记录存储失败",
	)

	// 外部服务错误
	ErrKafkaProduceFailed = NewAuditError(
		ErrorTypeKafka,
		SeverityHigh,
		CodeKafkaProduceFailed,
		"Kafka消息发送失败",
	)

	ErrDatabaseFailed = NewAuditError(
		ErrorTypeDatabase,
		SeverityHigh,
		CodeDatabaseFailed,
		"数据库写入失败",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:       "Network",
	ErrorTypeConnection:    "Connection",
	ErrorTypeTimeout:       "Timeout",
	ErrorTypeRateLimit:     "RateLimit",
	ErrorTypeTransport:     "Transport",
	ErrorTypeChain:         "Chain",
	ErrorTypeProposal:      "Proposal",
	ErrorTypeData:          "Data",
	ErrorTypeSerialization: "Serialization",
	ErrorTypeValidation:    "Validation",
	ErrorTypeHashCompute:   "HashCompute",
	ErrorTypeSystem:        "System",
	ErrorTypeFileIO:        "FileIO",
	ErrorTypeConfig:        "Config",
	ErrorTypeStorage:       "Storage",
	ErrorTypeKafka:         "Kafka",
	ErrorTypeDatabase:      "Database",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*AuditError         `json:"recent_errors"`
	LastError         *AuditError           `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*AuditError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *AuditError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

func (es *ErrorStats) clone() *ErrorStats {
	out := &ErrorStats{
		TotalErrors:       es.TotalErrors,
		ErrorsByType:      make(map[ErrorType]int, len(es.ErrorsByType)),
		ErrorsBySeverity:  make(map[ErrorSeverity]int, len(es.ErrorsBySeverity)),
		ErrorsByComponent: make(map[string]int, len(es.ErrorsByComponent)),
		RecentErrors:      append([]*AuditError(nil), es.RecentErrors...),
		LastError:         es.LastError,
		LastErrorTime:     es.LastErrorTime,
	}
	for k, v := range es.ErrorsByType {
		out.ErrorsByType[k] = v
	}
	for k, v := range es.ErrorsBySeverity {
		out.ErrorsBySeverity[k] = v
	}
	for k, v := range es.ErrorsByComponent {
		out.ErrorsByComponent[k] = v
	}
	return out
}

// Count 按类型统计的错误数
func (es *ErrorStats) Count(errorType ErrorType) int {
	return es.ErrorsByType[errorType]
}
