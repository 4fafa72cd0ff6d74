package infrastructure

import (
	"context"
	"log/slog"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/config"
	"github.com/Noah-Huppert/wallet-service/internal/metrics"
	"github.com/Noah-Huppert/wallet-service/internal/repository"
	"github.com/Noah-Huppert/wallet-service/internal/service"
	transportHTTP "github.com/Noah-Huppert/wallet-service/internal/transport/http"
	"github.com/Noah-Huppert/wallet-service/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the API
// application: Postgres, Redis, NATS, the repository, the authenticator, and
// the servers to run. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, nil, err
	}

	cleanup := func() {
		nc.Close()
		_ = rdb.Close()
		db.Close()
	}

	repo := repository.NewWalletRepo(db, rdb, nc, cfg.StrictConsume, logger)
	var svc service.WalletService = repo

	authn := auth.NewAuthenticator(repo, logger)

	var mc *metrics.Client
	servers := []Server{worker.NewAuditWorker(svc, nc, logger)}

	if !cfg.MetricsDisabled {
		mc = metrics.NewClient("wallet_server_")
		servers = append(servers, metrics.NewServer(cfg.MetricsAddr(), logger))
	} else {
		logger.Info("metrics server disabled")
	}

	servers = append(servers,
		transportHTTP.NewServer(cfg.APIAddr(), svc, authn, mc, cfg.APINotOkay, logger))

	return NewApp(servers), cleanup, nil
}
