package shutdown

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopAcceptingRequests = 10 // 停止接受新请求
	OrderFlushOutputs          = 30 // 刷新并关闭报告输出
	OrderCloseStores           = 40 // 关闭运行历史等本地存储
	OrderCleanupResources      = 60
)

// Hook 停机处理函数
type Hook struct {
	Name  string
	Func  func(ctx context.Context) error
	Order int
}

// GracefulShutdown 优雅停机管理器
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	ctx     context.Context
	cancel  context.CancelFunc
	signals chan os.Signal
	once    sync.Once
	done    chan struct{}
	err     error
}

// NewGracefulShutdown 创建优雅停机管理器，timeout<=0时使用30秒
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks = append(gs.hooks, Hook{Name: name, Func: fn, Order: order})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// ListenSignals 收到信号后触发停机，未指定时监听SIGINT与SIGTERM
func (gs *GracefulShutdown) ListenSignals(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	signal.Notify(gs.signals, sigs...)

	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
			_ = gs.Shutdown()
		case <-gs.done:
		}
	}()
}

// Context 停机开始时被取消
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Wait 等待停机完成并返回各处理函数的错误
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}

// Shutdown 执行停机，多次调用只执行一次
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		signal.Stop(gs.signals)
		gs.cancel()
		gs.err = gs.run()
		close(gs.done)
	})
	<-gs.done
	return gs.err
}

func (gs *GracefulShutdown) run() error {
	gs.logger.Info("开始优雅停机流程")

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Order < hooks[j].Order })

	var errs []error
	for _, h := range hooks {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过: %s", h.Name)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := h.Func(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", h.Name, time.Since(start), err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		gs.logger.Debugf("停机处理 '%s' 完成 (耗时: %v)", h.Name, time.Since(start))
	}

	if len(errs) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(errs))
	} else {
		gs.logger.Info("优雅停机流程完成")
	}
	return stderrors.Join(errs...)
}
