package bootstrap

import (
	"context"
	"log"
	"time"

	"db-agent-be/internal/config"
	"db-agent-be/internal/controller"
	"db-agent-be/internal/pkg/logger"
	"db-agent-be/internal/service"
	"db-agent-be/internal/websocket"
	"db-agent-be/pkg/ai/pipeline"
	"db-agent-be/pkg/ai/router"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/llm/factory"
	"db-agent-be/pkg/tools"

	pktNats "db-agent-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

const turnTopic = "chat.turns"

type Container struct {
	// Controllers
	ChatController  controller.IChatController
	ToolController  controller.IToolController
	AuditController controller.IAuditController

	// Background Services (Exposed for main.go to run)
	AuditService service.IAuditService

	Logger logger.ILogger

	WebSocketHub *websocket.Hub
	stopHub      context.CancelFunc

	pubSub  *gochannel.GoChannel
	natsPub *pktNats.Publisher
}

// NewContainer wires the application with the LLM provider named in cfg.
func NewContainer(db *gorm.DB, cat *catalog.Catalog, cfg *config.Config) *Container {
	provider, err := factory.NewLLMProvider(factory.Settings{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  providerBaseURL(cfg),
		APIKey:   cfg.Ai.OpenAIAPIKey,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	return NewContainerWithProvider(db, cat, cfg, provider)
}

// NewContainerWithProvider wires the application around an existing provider.
func NewContainerWithProvider(db *gorm.DB, cat *catalog.Catalog, cfg *config.Config, provider llm.LLMProvider) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogPath)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// NATS is optional; turns are still audited locally without it.
	var natsPub *pktNats.Publisher
	var forwarder service.EventForwarder
	if cfg.App.NatsURL != "" {
		p, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger.StdLogger("NATS"))
		if err != nil {
			sysLogger.Warn("BOOT", "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
		} else {
			natsPub = p
			forwarder = p
		}
	}

	// 3. Domain
	executor := database.NewExecutor(db, sysLogger.StdLogger("DATABASE"))
	toolbox := tools.NewToolbox(cat, executor, sysLogger.StdLogger("TOOLS"))
	dataPipeline := pipeline.New(
		provider,
		cat,
		executor,
		database.DialectName(cfg.Database.Dialect),
		sysLogger.StdLogger("PIPELINE"),
	)

	routerLogger := sysLogger.StdLogger("ROUTER")
	intentRouter := router.NewRouter(provider, map[router.Intent]router.Handler{
		router.IntentSchema:  router.NewSchemaHandler(toolbox, provider, routerLogger),
		router.IntentData:    router.NewDataHandler(dataPipeline),
		router.IntentSummary: router.NewSummaryHandler(toolbox, provider, routerLogger),
		router.IntentChat:    router.NewChatHandler(cat, provider),
	}, routerLogger)

	// 4. Services
	chatService := service.NewChatService(
		intentRouter,
		pubSub,
		turnTopic,
		time.Duration(cfg.App.TurnTimeoutSeconds)*time.Second,
		sysLogger,
	)
	auditService := service.NewAuditService(pubSub, turnTopic, auditLogger, forwarder, sysLogger)

	// WebSocket Hub
	wsHub := websocket.NewHub(sysLogger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go wsHub.Run(hubCtx)

	// 5. Controllers
	return &Container{
		ChatController:  controller.NewChatController(chatService, wsHub, sysLogger),
		ToolController:  controller.NewToolController(toolbox),
		AuditController: controller.NewAuditController(auditService),
		AuditService:    auditService,
		Logger:          sysLogger,
		WebSocketHub:    wsHub,
		stopHub:         stopHub,
		pubSub:          pubSub,
		natsPub:         natsPub,
	}
}

// Close drops open sockets and releases the event bus and the NATS connection.
func (c *Container) Close() {
	if c.stopHub != nil {
		c.stopHub()
	}
	if c.pubSub != nil {
		_ = c.pubSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	_ = c.Logger.Sync()
}

func providerBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMProvider == "openai" {
		return cfg.Ai.OpenAIBaseURL
	}
	return cfg.Ai.OllamaBaseURL
}
