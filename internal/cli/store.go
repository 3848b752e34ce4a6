package cli

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/rostersync/internal/roster"
	"github.com/JonMunkholm/rostersync/internal/store/postgres"
)

// openStore connects to the configured database. When the database is
// unreachable it returns a store whose every call fails, so the orchestrator
// aborts the run with DB004 and still writes the run log.
func openStore(ctx context.Context, logger *slog.Logger) (roster.Store, func()) {
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		return unreachableStore{err: err}, func() {}
	}
	return postgres.New(pool, postgres.WithRoleCacheTTL(cfg.Roster.RoleCacheTTL)), pool.Close
}

type unreachableStore struct {
	err error
}

func (s unreachableStore) Ping(context.Context) error {
	return s.err
}

func (s unreachableStore) FindRoleIDByName(context.Context, string) (*int64, error) {
	return nil, s.err
}

func (s unreachableStore) InTx(context.Context, func(roster.PersonTx) error) error {
	return s.err
}
