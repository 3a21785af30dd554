package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/avolk/go_checkout/internal/audit"
	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/catalog"
	"github.com/avolk/go_checkout/internal/httpapi"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/metrics"
	"github.com/avolk/go_checkout/internal/notify"
	"github.com/avolk/go_checkout/internal/order"
	"github.com/avolk/go_checkout/internal/payment"
	"github.com/avolk/go_checkout/internal/postgres"
	"github.com/avolk/go_checkout/internal/pricing"
)

func main() {
	// Configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDBName := getEnv("MONGO_DB_NAME", "checkoutdb")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "")
	catalogPath := getEnv("CATALOG_DB_PATH", "./catalog.db")
	catalogMigrations := getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations")

	pgCred := &postgres.Credentials{
		Host:              getEnv("POSTGRES_HOST", "localhost"),
		Port:              getEnvInt("POSTGRES_PORT", 5432),
		User:              getEnv("POSTGRES_USER", "postgres"),
		Password:          getEnv("POSTGRES_PASSWORD", "postgres"),
		DBName:            getEnv("POSTGRES_DB", "checkout"),
		MigrationsDirPath: getEnv("POSTGRES_MIGRATIONS_PATH", "./migrations/postgres"),
	}

	paymentTTL := time.Duration(getEnvInt("PAYMENT_TTL_MINUTES", 15)) * time.Minute

	ctx := context.Background()

	// MongoDB holds carts and the inventory ledger.
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	mongoDB := mongoClient.Database(mongoDBName)
	log.Printf("Connected to MongoDB at %s", mongoURI)

	cartRepo := cart.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create cart indexes: %v", err)
	}
	ledger := inventory.NewMongoStore(mongoDB)
	if err := ledger.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create inventory indexes: %v", err)
	}

	// Redis fronts cart reads.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")
	cartCache := cart.NewRedisCache(redisClient)

	// Postgres holds orders and payments.
	db, err := postgres.Connect(pgCred)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := postgres.RunMigrations(db, pgCred); err != nil {
		log.Fatalf("Failed to run Postgres migrations: %v", err)
	}
	log.Printf("Connected to Postgres at %s:%d", pgCred.Host, pgCred.Port)

	// SQLite catalog.
	cat, err := catalog.NewRepository(catalogPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer cat.Close()
	if err := cat.RunMigrations(catalogMigrations); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}

	// Kafka is optional; without brokers events are dropped.
	var events notify.Publisher
	if kafkaBrokers != "" {
		kafkaPub := notify.NewKafkaPublisher(strings.Split(kafkaBrokers, ",")...)
		defer kafkaPub.Close()
		events = kafkaPub
		log.Printf("Publishing order events to Kafka at %s", kafkaBrokers)
	} else {
		events = notify.Nop{}
		log.Printf("KAFKA_BROKERS not set, order events disabled")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	cfg := pricing.DefaultConfig()

	carts := cart.NewService(cartRepo, cartCache, cat, ledger, cfg)

	orderRepo := order.NewPostgresRepository(db)
	payRepo := payment.NewPostgresRepository(db)
	orders := order.NewService(orderRepo, payRepo, carts, ledger, cfg, events)

	gateway := payment.NewBreakerGateway(
		payment.NewSimulator(payment.RandomOutcome{}),
		getEnvInt("GATEWAY_MAX_RETRIES", 3),
		time.Duration(getEnvInt("GATEWAY_RETRY_BASE_MS", 200))*time.Millisecond,
	)
	orchestrator := payment.NewOrchestrator(payRepo, gateway, orders, events)
	orders.SetRefunder(orchestrator)

	// Background loops: payment-window sweep and consistency audit.
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	sweeper := order.NewSweeper(orders, orderRepo, paymentTTL, time.Minute)
	sweeper.OnSweep(func(count int) {
		m.SweptOrders.Add(float64(count))
		m.OrdersCancelled.WithLabelValues("sweeper").Add(float64(count))
	})
	go sweeper.Run(loopCtx)

	auditor := audit.NewAuditor(orderRepo, ledger, auditSink{m}, audit.DefaultGrace,
		time.Duration(getEnvInt("AUDIT_INTERVAL_MINUTES", 10))*time.Minute)
	go auditor.Run(loopCtx)

	router := httpapi.NewRouter(httpapi.Deps{
		Carts:    carts,
		Orders:   orders,
		Payments: orchestrator,
		PayRepo:  payRepo,
		Ledger:   ledger,
		Metrics:  m,
	})

	server := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Checkout server listening on port %s", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down checkout server...")
	stopLoops()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	mongoClient.Disconnect(ctx)
	log.Println("Checkout server stopped")
}

// auditSink counts warnings in addition to the default log line.
type auditSink struct {
	m *metrics.Set
}

func (s auditSink) Report(ctx context.Context, w audit.Warning) {
	audit.LogSink{}.Report(ctx, w)
	s.m.AuditWarnings.Inc()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("invalid %s=%q, using %d", key, value, defaultValue)
	}
	return defaultValue
}
