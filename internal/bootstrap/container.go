package bootstrap

import (
	"context"
	"log"

	"ai-feed-curator/internal/config"
	"ai-feed-curator/internal/controller"
	"ai-feed-curator/internal/pkg/logger"
	"ai-feed-curator/internal/repository/implementation"
	"ai-feed-curator/internal/repository/memory"
	"ai-feed-curator/internal/service"
	"ai-feed-curator/internal/websocket"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/classify"
	"ai-feed-curator/pkg/embedding"
	"ai-feed-curator/pkg/events"
	pktNats "ai-feed-curator/pkg/nats"
	"ai-feed-curator/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
)

type Container struct {
	// Controllers
	CurationController controller.ICurationController

	// Background Services (Exposed for main.go to run)
	CurationService  service.ICurationService
	LifecycleService service.ILifecycleService

	// WebSockets
	WebSocketHub *websocket.Hub

	// Infrastructure handles for shutdown
	Bus    *bus.Bus
	Store  *store.BoltStore
	Logger logger.ILogger
}

func NewContainer(boltStore *store.BoltStore, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	eventBus := bus.New(watermillLogger)

	// 3. Embedding Provider
	provider := embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", provider.Model)

	// 4. Repositories
	settingsRepo := implementation.NewSettingsRepository(boltStore)
	decisionRepo := implementation.NewDecisionLogRepository(boltStore)
	interestCache := memory.NewInterestCache(provider)
	targetRegistry := memory.NewTargetRegistry()

	// 5. Services
	engine := classify.NewEngine(provider)
	lifecycleService := service.NewLifecycleService(provider, eventBus, sysLogger)
	bridgeService := service.NewBridgeService(eventBus, targetRegistry, sysLogger)
	curationService := service.NewCurationService(
		eventBus,
		lifecycleService,
		bridgeService,
		engine,
		interestCache,
		settingsRepo,
		decisionRepo,
		sysLogger,
	)

	// 6. Optional cross-process mirror
	if cfg.App.NatsURL != "" {
		wireNatsMirror(cfg.App.NatsURL, eventBus, sysLogger)
	}

	// 7. UI hub
	hub := websocket.NewHub(eventBus, sysLogger)

	// 8. Controllers
	curationController := controller.NewCurationController(eventBus, curationService)

	return &Container{
		CurationController: curationController,
		CurationService:    curationService,
		LifecycleService:   lifecycleService,
		WebSocketHub:       hub,
		Bus:                eventBus,
		Store:              boltStore,
		Logger:             sysLogger,
	}
}

// wireNatsMirror forwards local UI broadcasts onto NATS and ingests inbound
// curation events published by remote observer processes.
func wireNatsMirror(url string, eventBus *bus.Bus, sysLogger logger.ILogger) {
	natsPub, err := pktNats.NewPublisher(url)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		return
	}
	natsSub, err := pktNats.NewSubscriber(url)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		natsPub.Close()
		return
	}

	// Local UI broadcasts -> NATS mirror.
	go func() {
		messages, err := eventBus.Subscribe(context.Background(), bus.TopicUI)
		if err != nil {
			sysLogger.Warn("Bootstrap", "NATS mirror subscribe failed", map[string]interface{}{"error": err.Error()})
			return
		}
		for msg := range messages {
			evt, err := bus.Decode(msg)
			if err == nil {
				if err := natsPub.Publish(context.Background(), evt); err != nil {
					sysLogger.Warn("Bootstrap", "NATS mirror publish failed", map[string]interface{}{"error": err.Error()})
				}
			}
			msg.Ack()
		}
	}()

	// Remote observer events -> local inbound topic.
	err = natsSub.Subscribe("curation.EVALUATE_TWEET", "curator-inbound", func(ctx context.Context, evt events.Event) error {
		return eventBus.Publish(bus.TopicInbound, evt)
	})
	if err != nil {
		sysLogger.Warn("Bootstrap", "NATS inbound subscribe failed", map[string]interface{}{"error": err.Error()})
	}
}
