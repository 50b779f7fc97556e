package app

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/data/aggregates"
	"github.com/yungbote/aggsync/internal/data/repos"
	apphttp "github.com/yungbote/aggsync/internal/http"
	httpH "github.com/yungbote/aggsync/internal/http/handlers"
	"github.com/yungbote/aggsync/internal/observability"
	"github.com/yungbote/aggsync/internal/platform/logger"
	"github.com/yungbote/aggsync/internal/realtime/bus"
)

func wireBus(log *logger.Logger, cfg Config, metrics *observability.Metrics) (bus.Bus, error) {
	var m bus.Metrics
	if metrics != nil {
		m = metrics
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Info("REDIS_ADDR not set, aggregate changes stay in-process")
		return bus.NewMemoryBus(m), nil
	}
	b, err := bus.NewRedisBus(log, bus.RedisOptions{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel, Metrics: m})
	if err != nil {
		return nil, fmt.Errorf("init redis change bus: %w", err)
	}
	return b, nil
}

func wireServer(log *logger.Logger, cfg Config, db *gorm.DB, metrics *observability.Metrics, engine *aggregates.Engine, reposet *repos.Set) *apphttp.Server {
	log.Info("Wiring handlers...")
	return apphttp.NewServer(cfg.HTTPAddr, apphttp.RouterConfig{
		ServiceName:      cfg.ServiceName,
		CORSOrigins:      cfg.CORSOrigins,
		Log:              log,
		Metrics:          metrics,
		HealthHandler:    httpH.NewHealthHandler(db),
		AggregateHandler: httpH.NewAggregateHandler(log, engine, reposet.RefreshRuns),
	})
}
