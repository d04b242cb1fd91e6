package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	RunID     string                 `json:"run_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogFilter 日志过滤条件，空字段不过滤
type LogFilter struct {
	Level     string
	RunID     string
	Component string
}

func (f LogFilter) match(e *LogEntry) bool {
	return (f.Level == "" || e.Level == f.Level) &&
		(f.RunID == "" || e.RunID == f.RunID) &&
		(f.Component == "" || e.Component == f.Component)
}

// LogManager 最近日志的环形缓存
type LogManager struct {
	logs    []LogEntry
	maxLogs int
	mu      sync.RWMutex
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogManager{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	fields := make(map[string]interface{}, len(entry.Data))
	logEntry := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	for k, v := range entry.Data {
		switch k {
		case "run_id":
			logEntry.RunID, _ = v.(string)
		case "component":
			logEntry.Component, _ = v.(string)
		case logrus.ErrorKey:
			if err, ok := v.(error); ok {
				fields[k] = err.Error()
				continue
			}
			fields[k] = v
		default:
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		logEntry.Fields = fields
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs = append(lm.logs, logEntry)

	// 超过上限时移除最旧的日志
	if len(lm.logs) > lm.maxLogs {
		lm.logs = lm.logs[1:]
	}
}

// GetLogsWithPagination 按条件过滤后分页，最新的在前
func (lm *LogManager) GetLogsWithPagination(filter LogFilter, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	matched := make([]LogEntry, 0)
	for i := len(lm.logs) - 1; i >= 0; i-- {
		if filter.match(&lm.logs[i]) {
			matched = append(matched, lm.logs[i])
		}
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = make([]LogEntry, 0, lm.maxLogs)
}

// LogHook 将日志同步到LogManager
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口，不缓存debug与trace日志
func (h *LogHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}
