package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/directory"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/relay"
	"messenger-service/internal/repositories"
	"messenger-service/internal/rooms"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
	"messenger-service/web"
)

func main() {
	cfg := config.Load(".env")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.ServiceName)
	observability.SetPublisher(publisher)
	log.Printf("event publisher: %s", rabbitmq.Describe(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit."+cfg.ServiceName, cfg.ServiceName, cfg.Environment)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store backend: %v", err)
	}
	st, err := store.Open(ctx, backend, store.WithAutosaveInterval(cfg.AutosaveInterval))
	if err != nil {
		log.Fatalf("failed to load state: %v", err)
	}
	go st.Run(ctx)

	roomRelay, err := openRelay(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open relay: %v", err)
	}
	hub := ws.NewHub(roomRelay)
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("failed to start hub: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, cfg.ServiceName)
	dir := directory.NewService(repositories.NewUserRepo(st), tokens)
	roomSvc := rooms.NewService(repositories.NewChatRepo(st), repositories.NewMessageRepo(st))

	userHandler := handlers.NewUserHandler(dir, audit)
	chatHandler := handlers.NewChatHandler(roomSvc)
	wsHandler := ws.NewHandler(hub, dir, roomSvc)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(dir)

	router.GET("/", web.Index)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", observability.MetricsHandler())

	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.GET("/search", userHandler.Search)

	router.POST("/create-chat", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chats/:chat_id/subscribe", authMiddleware, chatHandler.Subscribe)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		log.Printf("listening on %s store=%s", cfg.Addr(), cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"store": func(ctx context.Context) error {
			cancel()
			return st.Close(ctx)
		},
		"relay": func(ctx context.Context) error {
			return roomRelay.Close()
		},
		"publisher": func(ctx context.Context) error {
			return publisher.Close()
		},
		"tracing": func(ctx context.Context) error {
			return shutdownTracing(ctx)
		},
	})

	exitCode := <-wait
	log.Printf("exited with code %d", exitCode)
	os.Exit(exitCode)
}

func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	if cfg.StoreBackend == config.BackendPostgres {
		database, err := db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return repositories.NewSnapshotRepo(database, cfg.SnapshotName), nil
	}
	return store.NewFileBackend(cfg.DataFile), nil
}

func openRelay(ctx context.Context, cfg config.Config) (relay.Relay, error) {
	if cfg.RedisAddr == "" {
		return relay.NewLocal(), nil
	}
	return relay.Dial(ctx, cfg.RedisAddr, cfg.RedisPrefix)
}
