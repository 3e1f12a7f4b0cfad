package bootstrap

import (
	"context"
	"log"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/controller"
	"llm-knowledge-be/internal/mcpserver"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/memory"
	"llm-knowledge-be/internal/repository/redislock"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/internal/scheduler"
	"llm-knowledge-be/internal/service"
	"llm-knowledge-be/internal/tools"
	"llm-knowledge-be/internal/websocket"
	"llm-knowledge-be/pkg/chunker"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/parser"
	"llm-knowledge-be/pkg/retriever"
	"llm-knowledge-be/pkg/tool"

	pktNats "llm-knowledge-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// jobEventsDurable is the NATS consumer that feeds job events to the hub.
const jobEventsDurable = "thread-hub-job-events"

type Container struct {
	// Controllers
	ResourceController   controller.IResourceController
	CollectionController controller.ICollectionController
	SearchController     controller.ISearchController
	CatalogController    controller.ICatalogController
	AssistantController  controller.IAssistantController
	JobController        controller.IJobController
	ThreadController     controller.IThreadController

	// Services (exposed for the CLI)
	Resources   service.IResourceService
	Collections service.ICollectionService
	Pipeline    service.IPipelineService
	Search      service.ISearchService
	Jobs        service.IGenerationJobService
	Threads     service.IThreadService

	// Background services (started by Start)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub
	Scheduler       *scheduler.Scheduler
	MCPServer       *mcpserver.Server

	Logger logger.ILogger

	cfg     *config.Config
	pubSub  *gochannel.GoChannel
	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
}

type options struct {
	logger logger.ILogger
}

type Option func(*options)

// WithLogger replaces the default stdout+file logger. The CLI uses it to keep
// stdout clean for the MCP stdio transport.
func WithLogger(l logger.ILogger) Option {
	return func(o *options) { o.logger = l }
}

func NewContainer(db *gorm.DB, cfg *config.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := o.logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	}

	// 2. Event bus (in-process) and NATS (cross-process)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)

	var publisher events.Publisher = events.NopPublisher{}
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v (events stay local)", err)
	} else {
		publisher = natsPub
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		natsSub = nil
	}

	// Redis is optional: without it the hub stays single node and locks stay
	// in memory.
	rdb := connectRedis(cfg.App.RedisURL)

	// 3. Registries
	resolver := service.NewProviderResolver(uowFactory, db, cfg.Knowledge)
	retrievers := retriever.NewDefaultRegistry(
		retriever.NewHTTPRetriever(cfg.Knowledge.RetrieveTimeout, cfg.Knowledge.MaxDocumentBytes),
		retriever.NewFileRetriever(cfg.Knowledge.FileRoot, cfg.Knowledge.MaxDocumentBytes),
	)
	parsers := parser.NewDefaultRegistry()
	chunkers := chunker.NewDefaultRegistry()

	// 4. Services
	collectionService := service.NewCollectionService(uowFactory, resolver, publisher, cfg.Knowledge, sysLogger)
	pipelineService, err := service.NewPipelineService(
		uowFactory, retrievers, parsers, chunkers, collectionService, publisher, cfg.Knowledge, sysLogger,
	)
	if err != nil {
		return nil, err
	}
	publisherService := service.NewPublisherService(pubSub, service.TopicProcessResources)
	consumerService := service.NewConsumerService(pubSub, service.TopicProcessResources, pipelineService, sysLogger)
	resourceService := service.NewResourceService(uowFactory, collectionService, publisherService, cfg.Knowledge, sysLogger)
	searchService := service.NewSearchService(uowFactory, resolver, cfg.Knowledge, sysLogger)

	toolRegistry := tool.NewRegistry()
	if err := toolRegistry.Register(tools.NewKnowledgeRetriever(searchService, collectionService)); err != nil {
		return nil, err
	}
	catalogService := service.NewCatalogService(uowFactory, resolver, toolRegistry, sysLogger)
	assistantService := service.NewAssistantService(uowFactory, toolRegistry, sysLogger)

	jobService := service.NewGenerationJobService(uowFactory, resolver, publisher, cfg.Jobs, sysLogger)

	wsLogger := logger.NewIsolatedLogger("logs/threads.log")
	wsHub := websocket.NewHub(rdb, wsLogger)

	var locks contract.ThreadLockRepository = memory.NewThreadLockRepository()
	if cfg.Thread.LockBackend == "redis" {
		if rdb == nil {
			log.Printf("[WARN] THREAD_LOCK_BACKEND=redis but Redis is unavailable, using in-memory locks")
		} else {
			locks = redislock.NewThreadLockRepository(rdb)
		}
	}
	threadService := service.NewThreadService(
		uowFactory, resolver, jobService, toolRegistry, locks, wsHub, cfg.Thread, cfg.Jobs, sysLogger,
	)

	sched := scheduler.New(jobService, pipelineService, cfg.Jobs, sysLogger)

	mcp, err := mcpserver.NewServer(&mcpserver.Ports{
		Search:      searchService,
		Collections: collectionService,
	}, sysLogger)
	if err != nil {
		return nil, err
	}

	// 5. Controllers
	return &Container{
		ResourceController:   controller.NewResourceController(resourceService, pipelineService),
		CollectionController: controller.NewCollectionController(collectionService),
		SearchController:     controller.NewSearchController(searchService),
		CatalogController:    controller.NewCatalogController(catalogService),
		AssistantController:  controller.NewAssistantController(assistantService),
		JobController:        controller.NewJobController(jobService),
		ThreadController:     controller.NewThreadController(threadService, wsHub, wsLogger),

		Resources:   resourceService,
		Collections: collectionService,
		Pipeline:    pipelineService,
		Search:      searchService,
		Jobs:        jobService,
		Threads:     threadService,

		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
		Scheduler:       sched,
		MCPServer:       mcp,
		Logger:          sysLogger,

		cfg:     cfg,
		pubSub:  pubSub,
		natsPub: natsPub,
		natsSub: natsSub,
		rdb:     rdb,
	}, nil
}

// Start launches the background workers the REST server relies on. They run
// until ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ConsumerService.Consume(ctx); err != nil {
		return err
	}

	if c.natsSub != nil {
		if err := c.natsSub.Subscribe(ctx, "job.>", jobEventsDurable, c.WebSocketHub.HandleJobEvent); err != nil {
			log.Printf("[WARN] Failed to subscribe to job events: %v", err)
		}
	}

	if c.cfg.Jobs.SchedulerEnabled {
		if err := c.Scheduler.Start(); err != nil {
			return err
		}
	}

	if c.cfg.MCP.HTTPAddr != "" {
		go func() {
			if err := c.MCPServer.RunHTTP(ctx, c.cfg.MCP.HTTPAddr); err != nil {
				c.Logger.Error("MCP", "MCP HTTP server stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}
	return nil
}

func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.pubSub != nil {
		_ = c.pubSub.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
}

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}
