package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service 服务接口
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 服务运行器，任一服务退出即整体停机
type Runner struct {
	services []Service
	onStop   []func()
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// RunWithOptions 运行服务并处理系统信号
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	opts = normalizeOptions(opts)
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 启动全部服务，直到 ctx 结束或某个服务退出
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, svc := range r.services {
		if svc == nil {
			return errors.New("service is nil")
		}
		service := svc
		group.Go(func() error {
			log.Infow("service_start", "service", service.Name())
			err := service.Start(groupCtx)
			log.Infow("service_exit", "service", service.Name(), "error", err)
			if err == nil && groupCtx.Err() == nil {
				return fmt.Errorf("service %s exited unexpectedly", service.Name())
			}
			return err
		})
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-groupCtx.Done()
		r.stopAll(stopTimeout, log)
	}()

	runErr := group.Wait()
	<-stopped
	for _, fn := range r.onStop {
		fn()
	}
	if runErr == nil || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (r *Runner) stopAll(timeout time.Duration, log *zap.SugaredLogger) {
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, svc := range r.services {
		started := time.Now()
		if err := svc.Stop(stopCtx); err != nil {
			log.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
			continue
		}
		log.Infow("service_stopped", "service", svc.Name(), "took", time.Since(started))
	}
}
