package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/eventpush/pkg/logger"
)

// Source 外部事件源
//
// Run 阻塞直到 ctx 结束（返回 nil）或源失败（返回错误）。
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// Backoff 重启退避配置
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff 默认退避：1s 起步，翻倍至 30s
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second}
}

// Supervisor 运行并监督多个事件源
type Supervisor struct {
	sources []Source
	log     logger.Logger
	backoff Backoff
}

// NewSupervisor 创建监督器
func NewSupervisor(log logger.Logger, sources ...Source) *Supervisor {
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{sources: sources, log: log, backoff: DefaultBackoff()}
}

// WithBackoff 设置重启退避
func (s *Supervisor) WithBackoff(b Backoff) *Supervisor {
	s.backoff = b
	return s
}

// Sources 已配置的事件源
func (s *Supervisor) Sources() []Source {
	return s.sources
}

// Run 运行全部事件源直到 ctx 结束
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		g.Go(func() error {
			s.supervise(gctx, src)
			return nil
		})
	}
	return g.Wait()
}

// supervise 失败后按退避重启，直到 ctx 结束
func (s *Supervisor) supervise(ctx context.Context, src Source) {
	log := s.log.With(zap.String("source", src.Name()))
	delay := s.backoff.Initial

	for {
		log.Info("bridge source started")
		err := src.Run(ctx)
		if ctx.Err() != nil {
			log.Info("bridge source stopped")
			return
		}
		if err == nil {
			err = errors.New("source returned without error")
		}
		log.Warn("bridge source failed, restarting",
			zap.Error(err),
			zap.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > s.backoff.Max {
			delay = s.backoff.Max
		}
	}
}
