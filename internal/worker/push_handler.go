package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"tallyflow/internal/config"
	"tallyflow/internal/repository"
	"tallyflow/internal/service"
	"tallyflow/internal/tally"
	"tallyflow/internal/utils"
)

const TaskVoucherPush = "voucher:push"

// PushTaskHandler runs voucher pushes in the background so the HTTP
// request returns immediately. Progress is published to Redis for the
// status endpoint to read.
type PushTaskHandler struct {
	redis   *redis.Client
	adapter *service.SyncAdapter
}

func NewPushTaskHandler(db *sqlx.DB, redisClient *redis.Client, cfg *config.Config) *PushTaskHandler {
	log := utils.GetLogger()
	importRepo := repository.NewImportRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	client := tally.NewClient(cfg.TallyConnectorURL, ledgerRepo, cfg.SyncTimeout, log)
	adapter := service.NewSyncAdapter(importRepo, voucherRepo, client, cfg.SyncTimeout, log)

	return &PushTaskHandler{
		redis:   redisClient,
		adapter: adapter,
	}
}

type PushTaskPayload struct {
	SessionID int     `json:"session_id"`
	RowIDs    []int64 `json:"row_ids,omitempty"`
}

func ProgressKey(sessionID int) string {
	return fmt.Sprintf("push:progress:%d", sessionID)
}

func (h *PushTaskHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload PushTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal push payload: %w", err)
	}

	// The callback is scoped to this task, so concurrent pushes for
	// different sessions never cross progress keys.
	progressKey := ProgressKey(payload.SessionID)
	onProgress := func(done, total int) {
		if total == 0 {
			return
		}
		progress := float64(done) / float64(total) * 100
		h.redis.Set(ctx, progressKey, fmt.Sprintf("%.2f", progress), 0)
	}
	h.redis.Set(ctx, progressKey, "0.00", 0)

	result, err := h.adapter.Push(ctx, payload.SessionID, payload.RowIDs, onProgress)
	if err != nil {
		return fmt.Errorf("push session %d: %w", payload.SessionID, err)
	}

	// Leave the final result alongside the progress for the status endpoint.
	summary, _ := json.Marshal(result)
	h.redis.Set(ctx, fmt.Sprintf("push:result:%d", payload.SessionID), string(summary), 0)
	h.redis.Set(ctx, progressKey, "100.00", 0)

	return nil
}
