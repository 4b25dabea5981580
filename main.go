package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wshchocolatine/ake-api/internal/db"
	"github.com/wshchocolatine/ake-api/internal/handlers"
	"github.com/wshchocolatine/ake-api/internal/kv"
	"github.com/wshchocolatine/ake-api/internal/middleware"
	"github.com/wshchocolatine/ake-api/internal/observability"
	"github.com/wshchocolatine/ake-api/internal/rabbitmq"
	"github.com/wshchocolatine/ake-api/internal/repositories"
	"github.com/wshchocolatine/ake-api/internal/session"
	"github.com/wshchocolatine/ake-api/internal/telemetry"
	"github.com/wshchocolatine/ake-api/internal/token"
	"github.com/wshchocolatine/ake-api/internal/ws"
)

// sessionTTL matches the session cookie's lifetime, so the stored copy of
// the session secret never outlives the credential that can reach it.
const sessionTTL = 24 * time.Hour

func main() {
	ctx := context.Background()
	environment := getEnv("APP_ENV", "development")

	shutdownTracer, err := observability.InitTracer(ctx, getEnv("OTLP_ENDPOINT", ""), environment)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	store, err := kv.NewRedisStore(ctx, getEnv("REDIS_ADDR", "localhost:6379"))
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer store.Close()

	amqpURL := getEnv("AMQP_URL", "")
	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AMQP_AUDIT_EXCHANGE", "ake.audit"))
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.ake-api", "ake-api", environment)

	if amqpURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EVENTS_EXCHANGE", "ake.events"))
		if err != nil {
			log.Printf("event publishing disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	sessions := session.NewStore(store, sessionTTL)
	tokens := token.NewService(store)

	userRepo := repositories.NewUserRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()

	authHandler := handlers.NewAuthHandler(userRepo, sessions, tokens, audit)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, userRepo)
	messageHandler := handlers.NewMessageHandler(messageRepo, conversationRepo)
	socketHandler := ws.NewSocketHandler(hub, tokens)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("ake-api"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.Auth(sessions)

	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)
	router.GET("/logout", authMiddleware, authHandler.Logout)
	router.POST("/password", authMiddleware, authHandler.ChangePassword)
	router.GET("/user/token", authMiddleware, authHandler.SocketToken)

	router.POST("/conversations/new", authMiddleware, conversationHandler.New)
	router.GET("/conversations/get", authMiddleware, conversationHandler.List)
	router.GET("/conversations/search", authMiddleware, conversationHandler.Search)

	router.POST("/message/send", authMiddleware, messageHandler.Send)
	router.GET("/message/get", authMiddleware, messageHandler.List)
	router.GET("/message/read", authMiddleware, messageHandler.Read)

	router.GET("/ws", socketHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := getEnv("PORT", "3333")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
