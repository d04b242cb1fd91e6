package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresOutput 报告归档到PostgreSQL
type PostgresOutput struct {
	db      *sql.DB
	table   string
	logger  *logrus.Logger
	timeout time.Duration
}

// NewPostgresOutput 连接数据库并创建归档表
func NewPostgresOutput(dsn, table string, logger *logrus.Logger) (*PostgresOutput, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, dbError(err, "打开数据库连接失败")
	}

	out, err := NewPostgresOutputWithDB(db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), out.timeout)
	defer cancel()
	if err := out.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

// NewPostgresOutputWithDB 使用已有连接创建输出器
func NewPostgresOutputWithDB(db *sql.DB, table string, logger *logrus.Logger) (*PostgresOutput, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, errors.NewAuditError(errors.ErrorTypeConfig, errors.SeverityCritical,
			errors.CodeConfigInvalid, fmt.Sprintf("无效的表名: %q", table))
	}
	return &PostgresOutput{
		db:      db,
		table:   table,
		logger:  logger,
		timeout: 10 * time.Second,
	}, nil
}

// Name 输出器名称
func (p *PostgresOutput) Name() string {
	return "postgres"
}

// EnsureSchema 创建归档表
func (p *PostgresOutput) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT PRIMARY KEY,
		generated_at TIMESTAMPTZ NOT NULL,
		total INTEGER NOT NULL,
		clean BOOLEAN NOT NULL,
		report JSONB NOT NULL
	)`, pq.QuoteIdentifier(p.table))

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return dbError(err, "创建归档表失败")
	}
	return nil
}

// WriteReport 写入或覆盖同一run_id的报告
func (p *PostgresOutput) WriteReport(report *models.DiscrepancyReport) error {
	if report == nil {
		return nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityHigh,
			errors.CodeSerializationFailed, "序列化报告失败")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, generated_at, total, clean, report)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			total = EXCLUDED.total,
			clean = EXCLUDED.clean,
			report = EXCLUDED.report
	`, pq.QuoteIdentifier(p.table))

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, query,
		report.RunID, report.GeneratedAt, report.Total(), report.Clean(), string(data)); err != nil {
		return dbError(err, "写入报告失败").WithContext("run_id", report.RunID)
	}

	p.logger.WithFields(logrus.Fields{
		"table":  p.table,
		"run_id": report.RunID,
	}).Info("报告已归档到数据库")
	return nil
}

// Close 关闭数据库连接
func (p *PostgresOutput) Close() error {
	return p.db.Close()
}

func dbError(err error, message string) *errors.AuditError {
	return errors.WrapError(err, errors.ErrorTypeDatabase, errors.SeverityHigh,
		errors.CodeDatabaseFailed, message).WithComponent("output")
}
