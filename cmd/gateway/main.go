// Command gateway is the eventgate process entrypoint: it loads
// configuration, opens the backing store, loads the manifest, wires every
// collaborator into the core engines, and serves HTTP/WebSocket traffic
// while polling queue backends, following the teacher's main.go
// signal-handling shape.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"eventgate/internal/config"
	"eventgate/internal/connstore"
	"eventgate/internal/deadletter"
	"eventgate/internal/hostadapter"
	"eventgate/internal/httpengine"
	"eventgate/internal/manifest"
	"eventgate/internal/pathspec"
	"eventgate/internal/queuebackend"
	"eventgate/internal/queuedispatch"
	"eventgate/internal/runtimectx"
	"eventgate/internal/store"
	"eventgate/internal/wsengine"
)

func main() {
	cfg, err := config.Load(os.Getenv("EVENTGATE_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	driver := store.DriverSQLite
	if cfg.DatabaseKind == "postgres" {
		driver = store.DriverPostgres
	}
	db, err := store.Open(driver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("gateway: opening store: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(db, driver); err != nil {
		log.Fatalf("gateway: migrating store: %v", err)
	}

	conns := connstore.New(db)
	ledger := store.NewDeliveryLedger(db)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	backend := queuebackend.NewRedisBackend(redisClient)

	minioClient, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
	})
	if err != nil {
		log.Fatalf("gateway: constructing S3 client: %v", err)
	}
	dlq := deadletter.NewArchive(minioClient, cfg.S3Bucket)

	rootCtx, rootCancel := context.WithCancel(context.Background())

	if err := dlq.EnsureBucket(rootCtx); err != nil {
		log.Printf("gateway: dead-letter bucket not ready: %v", err)
	}

	reg := manifest.Default
	svc, err := manifest.Load(os.DirFS("."), reg)
	if err != nil {
		log.Fatalf("gateway: loading manifest: %v", err)
	}

	// urlFor treats name as a route path template and builds it against the
	// configured HTTP base URL (relative when no base is configured).
	urlFor := func(name string, params map[string]any, query map[string]any) (string, error) {
		tmpl, err := pathspec.Parse(name)
		if err != nil {
			return "", err
		}
		return pathspec.New(tmpl, cfg.URLs.HTTP).Build(params, query)
	}

	var wsEngine *wsengine.Engine
	var wsHandler http.HandlerFunc
	if mod, ok := reg.LookupWebSocket(); ok {
		wsEngine = wsengine.NewEngine(mod)
		wsEngine.Conns = conns
		wsHandler = hostadapter.NewWebSocketHandler(wsEngine)
	}

	engine := &httpengine.Engine{
		Services: svc,
		Lookup:   reg.LookupMiddleware,
		Queue: jobQueueFunc(func(ctx context.Context, queueName string, payload any, groupID string) (string, error) {
			return enqueue(ctx, backend, svc, queueName, payload, groupID)
		}),
		URLFor: urlFor,
	}
	engine.Conns = conns
	if wsEngine != nil {
		engine.WebSockets = wsEngine
	}

	if svc.Warmup != nil {
		if err := svc.Warmup(); err != nil {
			log.Fatalf("gateway: warmup hook failed: %v", err)
		}
	}

	for _, qd := range svc.Queues {
		dispatcher := &queuedispatch.Dispatcher{
			Queue:      qd,
			JobQueue:   engine.Queue,
			WebSockets: engine.WebSockets,
			Conns:      engine.Conns,
			URLFor:     urlFor,
			Ledger:     ledger,
			DeadLetter: dlq,
			MaxRetries: 5,
		}
		poller := &hostadapter.QueuePoller{Queue: qd, Backend: backend, Dispatcher: dispatcher}
		go poller.Run(rootCtx)
	}

	mux := hostadapter.NewHTTPMux(engine, wsHandler)
	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("gateway: shutting down")
		rootCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("gateway: shutdown error: %v", err)
		}
	}()

	log.Printf("gateway: listening on :%d", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("gateway: %v", err)
	}
}

type jobQueueFunc func(ctx context.Context, queueName string, payload any, groupID string) (string, error)

var _ runtimectx.JobQueue = jobQueueFunc(nil)

func (f jobQueueFunc) Enqueue(ctx context.Context, queueName string, payload any, groupID string) (string, error) {
	return f(ctx, queueName, payload, groupID)
}

func enqueue(ctx context.Context, backend *queuebackend.RedisBackend, svc *manifest.Services, queueName string, payload any, groupID string) (string, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	return backend.Send(ctx, queueName, groupID, body)
}

func marshalPayload(payload any) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	if s, ok := payload.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(payload)
}
