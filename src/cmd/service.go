package cmd

import (
	"context"

	"github.com/dao-forum/reconciler/src/reconcile"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/model"
)

// Builds a reconciliation service for one-shot commands. The returned
// cleanup closes the RPC clients and the database.
func newService(ctx context.Context, applicationName string) (service *reconcile.Service, cleanup func(), err error) {
	db, err := model.NewConnection(ctx, conf, applicationName)
	if err != nil {
		return
	}

	abis, err := eth.LoadAbiRegistry(ctx, &conf.Chain)
	if err != nil {
		return
	}

	pool := eth.NewPool(&conf.Chain).
		WithAbiRegistry(abis)

	service = reconcile.NewService(conf).
		WithDB(db).
		WithPool(pool)

	cleanup = func() {
		pool.Close()
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
	return
}
