package app

import (
	"context"
	"fmt"

	"sigil/internal/config"
	"sigil/internal/logger"
	livehttp "sigil/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动判定服务与运维 HTTP。
type App struct {
	cfg      *config.Config
	live     *LiveService
	liveHTTP *livehttp.Server
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动运维 HTTP 与判定主循环，直到 ctx 取消或任一侧报错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.live == nil {
		return fmt.Errorf("live service not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.liveHTTP != nil {
		group.Go(func() error {
			logger.Infof("[app] live http 监听 %s", a.liveHTTP.Addr())
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer a.live.Close()
		return a.live.Run(ctx)
	})

	return group.Wait()
}

// LiveService 暴露底层判定服务实例（测试与回放装置用）。
func (a *App) LiveService() *LiveService {
	if a == nil {
		return nil
	}
	return a.live
}
