package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"tallyflow/internal/config"
	"tallyflow/internal/handler"
	"tallyflow/internal/middleware"
	"tallyflow/internal/repository"
	"tallyflow/internal/service"
	"tallyflow/internal/utils"
)

func SetupAPIRoutes(
	router fiber.Router,
	db *sqlx.DB,
	redis *redis.Client,
	cfg *config.Config,
) {
	log := utils.GetLogger()

	// Initialize repositories
	importRepo := repository.NewImportRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// Initialize services
	resolver := service.NewLedgerResolver(ledgerRepo)
	importService := service.NewImportService(importRepo, resolver, log)
	spreadsheetService := service.NewSpreadsheetService()
	materializer := service.NewMaterializer(importRepo, voucherRepo, log)

	// Initialize Asynq client (optional - only if Redis is available)
	var asynqClient *asynq.Client
	if redis != nil {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPassword,
			DB:       cfg.AsynqRedisDB,
		})
	}

	// Initialize handlers
	importHandler := handler.NewImportHandler(importService, spreadsheetService, materializer, asynqClient, redis, cfg)
	ledgerHandler := handler.NewLedgerHandler(ledgerRepo, resolver)

	// Protected routes
	protected := router.Group("", middleware.AuthMiddleware(cfg))

	// Ledger routes
	ledgers := protected.Group("/ledgers")
	ledgers.Get("/", ledgerHandler.ListLedgers)
	ledgers.Get("/tax", ledgerHandler.ListTaxLedgers)
	ledgers.Post("/", ledgerHandler.CreateLedger)

	// Import session routes
	imports := protected.Group("/imports")
	imports.Post("/", importHandler.CreateSession)
	imports.Get("/", importHandler.ListSessions)
	imports.Get("/code/:code", importHandler.GetSessionByCode)
	imports.Get("/:id", importHandler.GetSession)
	imports.Get("/:id/mapping", importHandler.GetMappingState)
	imports.Get("/:id/mapping/propose", importHandler.ProposeMapping)
	imports.Put("/:id/mapping", importHandler.SaveMapping)
	imports.Put("/:id/gst", importHandler.SaveGSTConfig)
	imports.Get("/:id/ledger-mapping", importHandler.GetLedgerMappingState)
	imports.Put("/:id/ledger-mapping", importHandler.SaveLedgerMapping)
	imports.Get("/:id/rows", importHandler.ListRows)
	imports.Put("/:id/rows", importHandler.BulkUpdateRows)
	imports.Put("/:id/rows/:rowId", importHandler.UpdateRow)
	imports.Post("/:id/parties", importHandler.CreateParty)
	imports.Post("/:id/process", importHandler.ProcessRows)
	imports.Post("/:id/push", importHandler.PushRows)
	imports.Get("/:id/push/status", importHandler.PushStatus)
	imports.Get("/:id/export", importHandler.ExportSession)
}
