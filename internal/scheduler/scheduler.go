package scheduler

import (
	"context"
	"time"

	"sigil/internal/logger"
)

// Aligned 按指数K线收盘边界对齐执行任务：每个 Interval 的整数倍
// 时刻再加 Offset 唤醒一次。状态分类器的兜底重算由它驱动，保证
// 每轮重算都落在一根K线完整收盘之后。
type Aligned struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAligned(ctx context.Context, name string, interval, offset time.Duration) *Aligned {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Aligned{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行对齐循环，ctx 取消后返回。task 串行执行，上一轮
// 没跑完不会并发开下一轮。
func (s *Aligned) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("[%s] 任务为空，调度器不启动", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("[%s] 周期非法 interval=%s，调度器不启动", s.Name, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("[%s] 偏移为负 offset=%s，按 0 处理", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("[%s] 对齐调度启动 interval=%s offset=%s run_immediately=%v",
		s.Name, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wakeAt, wait := s.nextWake(now)
		logger.Debugf("[%s] 下一根收盘=%s 唤醒=%s (in %s)",
			s.Name, nextClose.Format(time.RFC3339), wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("[%s] 上下文取消，调度器退出", s.Name)
			return
		case <-timer.C:
		}
		task()
	}
}

// nextWake 计算下一个唤醒时刻：下一根K线收盘时间加偏移。
func (s *Aligned) nextWake(now time.Time) (nextClose, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	return nextClose, wakeAt, wakeAt.Sub(now)
}
