package errors

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorStrategy 错误处理策略
type ErrorStrategy interface {
	Handle(ctx context.Context, err *AuditError) error
}

// ErrorCallback 错误回调，用于统计或告警
type ErrorCallback func(err *AuditError)

// ErrorHandler 非致命错误的集中处理：统计、回调、按类型执行策略
type ErrorHandler struct {
	logger *logrus.Logger

	mu         sync.RWMutex
	stats      *ErrorStats
	strategies map[ErrorType]ErrorStrategy
	callbacks  []ErrorCallback
	fallback   ErrorStrategy
}

// NewErrorHandler 创建错误处理器，默认所有类型只记录日志
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		strategies: make(map[ErrorType]ErrorStrategy),
		fallback:   &LoggingStrategy{logger: logger},
	}
}

// HandleError 处理错误，错误链中没有AuditError时按系统错误包装
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var auditErr *AuditError
	if !stderrors.As(err, &auditErr) {
		auditErr = WrapError(err, ErrorTypeSystem, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}

	eh.mu.Lock()
	eh.stats.RecordError(auditErr)
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	strategy, ok := eh.strategies[auditErr.Type]
	if !ok {
		strategy = eh.fallback
	}
	eh.mu.Unlock()

	for _, cb := range callbacks {
		eh.runCallback(cb, auditErr)
	}
	return strategy.Handle(ctx, auditErr)
}

func (eh *ErrorHandler) runCallback(cb ErrorCallback, err *AuditError) {
	defer func() {
		if r := recover(); r != nil {
			eh.logger.Errorf("错误回调执行时发生panic: %v", r)
		}
	}()
	cb(err)
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// SetStrategy 设置某一类型的处理策略
func (eh *ErrorHandler) SetStrategy(errorType ErrorType, strategy ErrorStrategy) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.strategies[errorType] = strategy
}

// GetStats 返回统计信息的副本
func (eh *ErrorHandler) GetStats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats.clone()
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}

// LoggingStrategy 按严重程度记录日志并原样返回错误
type LoggingStrategy struct {
	logger *logrus.Logger
}

// NewLoggingStrategy 创建日志策略
func NewLoggingStrategy(logger *logrus.Logger) *LoggingStrategy {
	return &LoggingStrategy{logger: logger}
}

// Handle 实现 ErrorStrategy 接口
func (ls *LoggingStrategy) Handle(ctx context.Context, err *AuditError) error {
	fields := logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
		"component":  err.Component,
		"retryable":  err.Retryable,
	}
	if err.CodeID != nil {
		fields["code_id"] = *err.CodeID
	}
	if err.ProposalID != nil {
		fields["proposal_id"] = *err.ProposalID
	}
	if len(err.Context) > 0 {
		fields["context"] = err.Context
	}
	if err.Cause != nil {
		fields["cause"] = err.Cause.Error()
	}
	entry := ls.logger.WithFields(fields)

	// 是否终止运行由调用方决定，这里最高只记录Error
	switch err.Severity {
	case SeverityLow:
		entry.Debug(err.Message)
	case SeverityMedium:
		entry.Warn(err.Message)
	default:
		entry.Error(err.Message)
	}
	return err
}
