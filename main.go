package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/aka-azad/task-sorter-server/api"
	"github.com/aka-azad/task-sorter-server/realtime"
	"github.com/aka-azad/task-sorter-server/storage"
)

const defaultAllowedOrigin = "https://task-sorter-by-ashraf.web.app"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		user := os.Getenv("DB_USER")
		pass := os.Getenv("DB_PASSWORD")
		if user == "" || pass == "" {
			log.Fatal("missing storage config")
		}
		uri = fmt.Sprintf(
			"mongodb+srv://%s:%s@main.h0ug1.mongodb.net/?retryWrites=true&w=majority&appName=main",
			url.QueryEscape(user), url.QueryEscape(pass),
		)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, uri, "task-sorter")
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("storage ping: %v", err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing JWT secret")
	}
	var jwks *keyfunc.JWKS
	if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
	}
	auth := api.NewAuth([]byte(secret), jwks, os.Getenv("AUTH_AUDIENCE"), os.Getenv("AUTH_ISSUER"))

	allowedOrigin := os.Getenv("ALLOWED_ORIGIN")
	if allowedOrigin == "" {
		allowedOrigin = defaultAllowedOrigin
	}

	logger := log.New()
	hub := realtime.NewHub(logger, allowedOrigin)

	var notifier api.Notifier = hub
	var apiStore api.Storage = store

	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			log.Fatalf("invalid REDIS_CONNECTION_STRING: %v", err)
		}
		rc := redis.NewClient(redisOpts)

		ttl := time.Minute
		if v := os.Getenv("TASKS_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid TASKS_CACHE_TTL: %v", err)
			}
			ttl = d
		}
		apiStore = storage.NewCache(store, rc, ttl)

		channel := os.Getenv("CHANGE_EVENTS_CHANNEL")
		if channel == "" {
			channel = "task-change-events"
		}
		bridge := realtime.NewBridge(hub, rc, channel, logger)
		go bridge.Run(ctx)
		notifier = bridge
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{allowedOrigin},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	api.Register(e, apiStore, auth, notifier, logger)
	e.GET("/ws", hub.Handler())

	listenAddr := ":3000"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
