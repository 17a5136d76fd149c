package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queen-doris/admin-application/internal/config"
	"github.com/queen-doris/admin-application/internal/middleware"
	"github.com/queen-doris/admin-application/internal/repository"
	"github.com/queen-doris/admin-application/internal/router"
	"github.com/queen-doris/admin-application/internal/session"
	"github.com/queen-doris/admin-application/internal/usecase/ledger"
	"github.com/queen-doris/admin-application/internal/usecase/report"
	"github.com/queen-doris/admin-application/internal/worker"
	"github.com/queen-doris/admin-application/pkg/cache"
)

type Server struct {
	httpServer *http.Server
	db         *pgxpool.Pool
	reconciler *worker.ReconcileWorker
	workerCtx  context.CancelFunc
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := config.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}

	c := cache.New([]string{cfg.RedisAddr}, cfg.RedisPassword, false)

	accounts := repository.NewAccountRepository(db)
	txLog := repository.NewTransactionRepository(db)

	ledgerUC := ledger.New(accounts, txLog, logger,
		ledger.WithMaxAmount(cfg.MaxAmount),
		ledger.WithMaxRetries(cfg.MaxRetries),
	)
	reportUC := report.New(txLog)

	sessions := session.NewManager(session.NewRedisStore(c), cfg.SessionTimeout, cfg.MaxSessionsPerUser)
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret, sessions)

	reconciler := worker.NewReconcileWorker(accounts, txLog, logger, cfg.ReconcileInterval, cfg.PendingMaxAge)
	workerCtx, cancel := context.WithCancel(context.Background())
	go reconciler.Start(workerCtx)

	r := router.New(router.Deps{
		Ledger:            ledgerUC,
		Report:            reportUC,
		Auth:              auth,
		Cache:             c,
		RateLimit:         cfg.RateLimit,
		RateWindow:        cfg.RateWindow,
		RateBlockDuration: cfg.RateBlockDuration,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		db:         db,
		reconciler: reconciler,
		workerCtx:  cancel,
		logger:     logger,
	}, nil
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.workerCtx()
	s.reconciler.Stop()
	defer s.db.Close()
	return s.httpServer.Shutdown(ctx)
}
