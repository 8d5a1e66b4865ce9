package worker

import (
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"tallyflow/internal/config"
)

func RegisterHandlers(mux *asynq.ServeMux, db *sqlx.DB, redis *redis.Client, cfg *config.Config) {
	pushHandler := NewPushTaskHandler(db, redis, cfg)
	mux.HandleFunc(TaskVoucherPush, pushHandler.Handle)
}
