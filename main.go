package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/api"
	"kanban-api/board"
	"kanban-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	gw, err := buildGateway()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	opts := []board.Option{board.WithLogger(logger)}
	if v := os.Getenv("SAVE_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SAVE_DEBOUNCE: %v", err)
		}
		opts = append(opts, board.WithSaveDebounce(d))
	}
	if queueName := os.Getenv("EVENTS_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		pub, err := storage.NewQueuePublisher(connStr, queueName)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		opts = append(opts, board.WithPublisher(pub, envInt("FEED_WORKERS", 4), envInt("FEED_BUFFER", 1024)))
	}

	store := board.New(context.Background(), gw, opts...)
	defer store.Close()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	api.Register(e, store, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
}

// buildGateway selects the snapshot store: Azure Tables when the table env
// vars are set, Redis otherwise, in-memory only when neither is configured.
func buildGateway() (board.Gateway, error) {
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	statusesTable := os.Getenv("STATUSES_TABLE")
	if connStr != "" && tasksTable != "" && statusesTable != "" {
		return storage.NewTableGateway(connStr, tasksTable, statusesTable)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Warn("no persistence configured, board state is in-memory only")
		return nil, nil
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return storage.NewRedisGateway(redis.NewClient(redisOpts)), nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return n
}
