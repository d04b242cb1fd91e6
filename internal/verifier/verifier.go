package verifier

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"contractaudit/internal/config"
	"contractaudit/internal/errors"
	"contractaudit/internal/history"
	"contractaudit/internal/logging"
	"contractaudit/internal/output"
	"contractaudit/internal/proposal"
	"contractaudit/internal/reconcile"
	"contractaudit/internal/registry"
	"contractaudit/internal/validation"
	"contractaudit/pkg/models"
)

// Source 链上数据来源
type Source interface {
	FetchCodes(ctx context.Context) ([]models.ChainCodeEntry, error)
	FetchProposals(ctx context.Context) ([]models.ProposalRecord, error)
}

// Result 一次运行的结果
type Result struct {
	RunID      string
	StartedAt  time.Time
	Validation *validation.ValidationResult
	Report     *models.DiscrepancyReport
}

// ValidationError 注册表未通过校验
type ValidationError struct {
	Result *validation.ValidationResult
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) > 0 {
		return e.Result.Errors[0].Error()
	}
	return "注册表验证失败"
}

// Unwrap 返回第一个校验错误
func (e *ValidationError) Unwrap() error {
	if len(e.Result.Errors) > 0 {
		return e.Result.Errors[0]
	}
	return nil
}

// Verifier 加载、抓取、索引、对账并输出
type Verifier struct {
	config       *config.Config
	logger       *logrus.Logger
	source       Source
	validator    *validation.Validator
	indexer      *proposal.Indexer
	engine       *reconcile.Engine
	errorHandler *errors.ErrorHandler
	output       output.Output
	history      *history.Store
	newRunID     func() string
}

// Option 可选配置
type Option func(*Verifier)

// WithOutput 设置报告输出器
func WithOutput(out output.Output) Option {
	return func(v *Verifier) { v.output = out }
}

// WithHistory 设置运行历史存储
func WithHistory(store *history.Store) Option {
	return func(v *Verifier) { v.history = store }
}

// WithErrorHandler 设置错误处理器
func WithErrorHandler(handler *errors.ErrorHandler) Option {
	return func(v *Verifier) { v.errorHandler = handler }
}

// WithRunIDGenerator 设置运行ID生成函数
func WithRunIDGenerator(fn func() string) Option {
	return func(v *Verifier) { v.newRunID = fn }
}

// New 创建对账器
func New(cfg *config.Config, logger *logrus.Logger, source Source, opts ...Option) *Verifier {
	v := &Verifier{
		config:   cfg,
		logger:   logger,
		source:   source,
		engine:   reconcile.NewEngine(logger),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.errorHandler == nil {
		v.errorHandler = errors.NewErrorHandler(logger)
	}
	v.validator = validation.NewValidator(logger, cfg.Registry.Strict)
	v.indexer = proposal.NewIndexer(logger, v.errorHandler, cfg.Chain.StoreCodeTypes)
	return v
}

// ErrorHandler 返回使用中的错误处理器
func (v *Verifier) ErrorHandler() *errors.ErrorHandler {
	return v.errorHandler
}

// LoadRegistry 读取并校验注册表
func (v *Verifier) LoadRegistry() (*registry.Dataset, *validation.ValidationResult, error) {
	ds, err := registry.LoadFile(v.config.Registry.Path)
	if err != nil {
		return nil, nil, err
	}

	result := v.validator.ValidateDataset(ds.Raw, ds.Records)
	if !result.Valid {
		return ds, result, &ValidationError{Result: result}
	}
	return ds, result, nil
}

// Run 执行一次完整对账
func (v *Verifier) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     v.newRunID(),
		StartedAt: time.Now().UTC(),
	}
	runLogger := logging.NewRunLogger(v.logger, res.RunID)
	runLogger.Info("开始对账")

	report, err := v.run(ctx, res)
	if err != nil {
		v.recordFailure(res, err)
		return res, err
	}
	res.Report = report

	if v.output != nil {
		if err := v.output.WriteReport(report); err != nil {
			_ = v.errorHandler.HandleError(ctx, err)
		}
	}
	if v.history != nil {
		if err := v.history.Record(history.NewSummary(report, res.StartedAt)); err != nil {
			_ = v.errorHandler.HandleError(ctx, err)
		}
	}

	runLogger.WithFields(logrus.Fields{
		"total":    report.Total(),
		"clean":    report.Clean(),
		"duration": time.Since(res.StartedAt).String(),
	}).Info("对账结束")
	return res, nil
}

func (v *Verifier) run(ctx context.Context, res *Result) (*models.DiscrepancyReport, error) {
	ds, vr, err := v.LoadRegistry()
	res.Validation = vr
	if err != nil {
		return nil, err
	}

	reg, err := registry.NewIndex(ds.Records)
	if err != nil {
		return nil, err
	}

	codes, proposals, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}

	props := v.indexer.Index(proposals)
	return v.engine.Reconcile(res.RunID, reg, codes, props), nil
}

// fetch 并行获取链上代码与提案，任一失败则取消另一个
func (v *Verifier) fetch(ctx context.Context) ([]models.ChainCodeEntry, []models.ProposalRecord, error) {
	var (
		codes     []models.ChainCodeEntry
		proposals []models.ProposalRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		codes, err = v.source.FetchCodes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		proposals, err = v.source.FetchProposals(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return codes, proposals, nil
}

func (v *Verifier) recordFailure(res *Result, err error) {
	var ve *ValidationError
	if !stderrors.As(err, &ve) {
		v.logger.WithField("run_id", res.RunID).WithError(err).Error("对账失败")
	}
	if v.history == nil {
		return
	}
	if herr := v.history.Record(history.NewFailedSummary(res.RunID, res.StartedAt, err)); herr != nil {
		v.logger.WithError(herr).Warn("保存失败记录出错")
	}
}
