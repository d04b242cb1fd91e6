package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/history.db"

	// 存储桶名称
	RunsBucket  = "runs"
	StatsBucket = "stats"

	// 统计键
	TotalRunsKey = "total_runs"
	CleanRunsKey = "clean_runs"
)

// RunSummary 单次对账运行的摘要
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Categories map[string]int `json:"categories"`
	Clean      bool           `json:"clean"`
	Error      string         `json:"error,omitempty"`
}

// Duration 运行耗时
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// NewSummary 由报告生成摘要
func NewSummary(report *models.DiscrepancyReport, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:      report.RunID,
		StartedAt:  startedAt,
		FinishedAt: report.GeneratedAt,
		Total:      report.Total(),
		Categories: report.CategoryCounts(),
		Clean:      report.Clean(),
	}
}

// NewFailedSummary 记录未能生成报告的运行
func NewFailedSummary(runID string, startedAt time.Time, err error) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Categories: map[string]int{},
		Error:      err.Error(),
	}
}

// Stats 累计统计
type Stats struct {
	TotalRuns uint64 `json:"total_runs"`
	CleanRuns uint64 `json:"clean_runs"`
	Stored    int    `json:"stored"`
}

// Store 运行历史存储
type Store struct {
	db      *bolt.DB
	logger  *logrus.Logger
	dbPath  string
	maxRuns int
	mu      sync.Mutex
}

// NewStore 打开历史数据库，maxRuns<=0表示不清理
func NewStore(dbPath string, maxRuns int, logger *logrus.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, storageError(err, "创建数据目录失败").WithContext("path", dbPath)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, storageError(err, "打开历史数据库失败").WithContext("path", dbPath)
	}

	store := &Store{
		db:      db,
		logger:  logger,
		dbPath:  dbPath,
		maxRuns: maxRuns,
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, storageError(err, "初始化数据库失败")
	}

	logger.Debugf("历史记录已打开，数据库路径: %s", dbPath)
	return store, nil
}

// initDB 初始化数据库结构
func (s *Store) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{RunsBucket, StatsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
}

// Record 保存一次运行摘要，超出上限时删除最早的记录
func (s *Store) Record(summary *RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityMedium,
			errors.CodeSerializationFailed, "序列化运行摘要失败")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(RunsBucket))
		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		if err := runs.Put(uint64ToBytes(seq), data); err != nil {
			return err
		}

		stats := tx.Bucket([]byte(StatsBucket))
		if err := incr(stats, TotalRunsKey); err != nil {
			return err
		}
		if summary.Clean {
			if err := incr(stats, CleanRunsKey); err != nil {
				return err
			}
		}

		if s.maxRuns <= 0 {
			return nil
		}
		excess := countKeys(runs) - s.maxRuns
		stale := make([][]byte, 0)
		c := runs.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := runs.Delete(k); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return storageError(err, "保存运行摘要失败").WithContext("run_id", summary.RunID)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"total":  summary.Total,
		"pruned": pruned,
	}).Debug("运行摘要已保存")
	return nil
}

// List 按时间倒序返回最近的运行摘要，limit<=0返回全部
func (s *Store) List(limit int) ([]*RunSummary, error) {
	summaries := make([]*RunSummary, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(RunsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(summaries) >= limit {
				break
			}
			var summary RunSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				s.logger.Warnf("跳过无法解析的运行记录 %d: %v", binary.BigEndian.Uint64(k), err)
				continue
			}
			summaries = append(summaries, &summary)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "读取运行历史失败")
	}
	return summaries, nil
}

// Latest 最近一次运行，没有记录时返回nil
func (s *Store) Latest() (*RunSummary, error) {
	summaries, err := s.List(1)
	if err != nil || len(summaries) == 0 {
		return nil, err
	}
	return summaries[0], nil
}

// Get 按run_id查找运行摘要
func (s *Store) Get(runID string) (*RunSummary, error) {
	summaries, err := s.List(0)
	if err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		if summary.RunID == runID {
			return summary, nil
		}
	}
	return nil, nil
}

// Stats 获取累计统计
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(StatsBucket))
		stats.TotalRuns = bytesToUint64(b.Get([]byte(TotalRunsKey)))
		stats.CleanRuns = bytesToUint64(b.Get([]byte(CleanRunsKey)))
		stats.Stored = countKeys(tx.Bucket([]byte(RunsBucket)))
		return nil
	})
	if err != nil {
		return nil, storageError(err, "读取统计信息失败")
	}
	return stats, nil
}

// Path 数据库路径
func (s *Store) Path() string {
	return s.dbPath
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func incr(b *bolt.Bucket, key string) error {
	n := bytesToUint64(b.Get([]byte(key))) + 1
	return b.Put([]byte(key), uint64ToBytes(n))
}

func uint64ToBytes(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func bytesToUint64(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func storageError(err error, message string) *errors.AuditError {
	return errors.WrapError(err, errors.ErrorTypeStorage, errors.SeverityHigh,
		errors.CodeStorageFailed, message).WithComponent("history")
}
