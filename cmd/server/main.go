package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"studyhub/backend/internal/audit"
	auditrepo "studyhub/backend/internal/audit/repository"
	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/config"
	"studyhub/backend/internal/db"
	"studyhub/backend/internal/email"
	"studyhub/backend/internal/events"
	"studyhub/backend/internal/identity"
	"studyhub/backend/internal/magiclink"
	"studyhub/backend/internal/security"
	"studyhub/backend/internal/server"
	sessionrepo "studyhub/backend/internal/session/repository"
	sessionsvc "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/telemetry/otel"
	"studyhub/backend/internal/token"
	userrepo "studyhub/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "studyhub-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	var remote cache.RemoteStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		remote = cache.NewRedisStore(rdb)
		if err := remote.Ping(ctx); err != nil {
			log.Printf("redis: unreachable at startup, cache runs local-only until it recovers: %v", err)
		}
	} else {
		log.Println("redis: not configured, cache runs local-only")
	}
	c := cache.New(cfg.CacheMaxItems, cfg.CacheMaxBytes, remote, "studyhub")

	signer := security.NewTokenSigner([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(pool)
	userCache := cache.NewUserCache(c)
	sessions := sessionsvc.NewService(sessionrepo.NewPostgresRepository(pool), cfg.SessionLimit, cfg.RefreshTTL())
	blacklist := token.NewBlacklist(c)
	tokens := token.NewManager(signer, blacklist, sessions, cfg.RefreshThreshold())

	store := magiclink.NewStore(remoteOrLocal(remote, c), cfg.MagicLinkLifetime())
	sender := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	magic := magiclink.NewService(users, userCache, sessions, tokens, store, sender, hasher, cfg.BaseURL)
	idsvc := identity.NewService(users, userCache, sessions, tokens, hasher)

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pool), nil)

	var producer events.Producer
	if brokers := cfg.EventsKafkaBrokersList(); len(brokers) > 0 {
		kp, err := events.NewKafkaProducer(brokers, cfg.EventsKafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		producer = kp
		defer kp.Close()
	} else {
		producer = otel.NewEventProducer(providers.LoggerProvider)
	}

	srv := server.New(server.Options{
		Addr:          cfg.HTTPAddr,
		Tokens:        tokens,
		Sessions:      sessions,
		Users:         users,
		UserCache:     userCache,
		MagicLink:     magic,
		Identity:      idsvc,
		Cache:         c,
		Auditor:       auditor,
		Producer:      producer,
		SecureCookies: cfg.Env == "production",
		RedirectOrigins: []string{
			cfg.FrontendURL,
			cfg.BaseURL,
		},
	})

	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	time.Sleep(events.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("http server stopped")
}

// remoteOrLocal falls back to the cache's local tier interface when Redis is
// not configured, so single-process deployments still get magic links.
func remoteOrLocal(remote cache.RemoteStore, c *cache.Cache) cache.RemoteStore {
	if remote != nil {
		return remote
	}
	return c.LocalStore()
}
