package infrastructure

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Server is a long-running component with a lifecycle: the API server, the
// metrics server, the audit worker.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// App runs a set of servers together and stops them all when the context is
// cancelled or any server fails.
type App struct {
	servers []Server
}

// NewApp creates an App over the given servers.
func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

// Run starts every server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()

	for _, srv := range a.servers {
		_ = srv.Stop(context.Background())
	}

	return g.Wait()
}
