package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mailvetter/internal/breaker"
	"mailvetter/internal/classify"
	"mailvetter/internal/config"
	"mailvetter/internal/dnssig"
	"mailvetter/internal/fastpath"
	"mailvetter/internal/iphealth"
	"mailvetter/internal/orchestrator"
	"mailvetter/internal/probe"
	"mailvetter/internal/proxy"
	"mailvetter/internal/queue"
	"mailvetter/internal/quota"
	"mailvetter/internal/reputation"
	"mailvetter/internal/scoring"
	"mailvetter/internal/store"
	"mailvetter/internal/worker"
)

func main() {
	log.Println("🚀 Starting Mailvetter Worker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// 1. Initialize Redis
	if err := queue.Init(cfg.RedisAddr()); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), DB: cfg.RedisDB})
	quotaMgr := quota.New(rdb, cfg.QuotaTiers)
	repMonitor := reputation.New(rdb)
	ipHealth := iphealth.New(rdb)

	// 2. Initialize Database
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("❌ DB_URL environment variable is required")
	}
	if err := store.Init(dbURL); err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// 3. Initialize Proxy Manager — same IP_POOL/PROXY_CONCURRENCY/
	// SMTP_PROXY_ENABLED config the API process reads, so a job processed
	// here rotates through the same egress IPs and health state.
	if len(cfg.IPPool) > 0 {
		if err := proxy.Init(cfg.IPPool, cfg.ProxyConcurrency, cfg.SMTPProxyEnabled, ipHealth); err != nil {
			log.Fatalf("❌ Failed to initialize proxy manager: %v", err)
		}

		log.Printf("🛡️  Proxy rotation enabled (%d proxies loaded, max %d concurrent HTTP)\n", len(cfg.IPPool), cap(proxy.Semaphore))
		if cfg.SMTPProxyEnabled {
			log.Println("⚠️  SMTP Proxying is ENABLED (Port 25 traffic will route through proxies)")
		} else {
			log.Println("✅ SMTP Proxying is DISABLED (Hybrid Mode: Port 25 traffic routes direct from VPS)")
		}
	} else {
		log.Println("⚠️  No proxies configured. Running with direct connections.")
	}

	// 4. Build the verification pipeline — identical wiring to cmd/api, so a
	// job processed by the worker and an address verified synchronously via
	// the API see the same breaker state, quota ledger and scoring rules.
	sets, err := classify.LoadSets("./data")
	if err != nil {
		log.Fatalf("❌ Failed to load classifier data files: %v", err)
	}

	resolver := dnssig.NewResolver(cfg.DNSTimeout)
	br := breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
	fp := fastpath.NewClient(cfg.OmkarURL, cfg.OmkarAPIKey)
	pe := probe.NewEngine(resolver, cfg.HeloDomain, cfg.MailFrom, cfg.SMTPTimeout, cfg.ProbePause, ipHealth)
	scorer := scoring.NewScorer(cfg.ProviderCaps)
	orch := orchestrator.New(sets, br, quotaMgr, repMonitor, fp, pe, scorer, cfg.MaxWorkers)

	// 5. Determine Worker Concurrency
	concurrencyStr := os.Getenv("WORKER_CONCURRENCY")
	var concurrency int

	if c, err := strconv.Atoi(concurrencyStr); err == nil && c > 0 {
		concurrency = c
		log.Printf("🔧 WORKER_CONCURRENCY explicitly set to %d", concurrency)
	} else {
		if len(cfg.IPPool) > 0 && cfg.SMTPProxyEnabled {
			actualProxyLimit := cap(proxy.Semaphore)
			concurrency = actualProxyLimit * 2
			if concurrency < 10 {
				concurrency = 10
			}
			log.Printf("🧠 Auto-tuning WORKER_CONCURRENCY to %d to match proxy constraints", concurrency)
		} else {
			concurrency = 50
			log.Printf("🧠 Auto-tuning WORKER_CONCURRENCY to %d (Direct SMTP Mode)", concurrency)
		}
	}

	// 6. Build the root context. Cancelling it on shutdown propagates cleanly
	// into the worker pool and the cache cleanup goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Start background MX-cache eviction.
	resolver.StartCacheCleanup(ctx, 5*time.Minute)
	log.Println("✅ Cache eviction goroutine started (interval: 5m)")

	// 8. Register for SIGTERM / SIGINT. main() is the sole receiver — two
	// receivers on this channel would deadlock shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	// 9. Start the worker pool. It blocks until all goroutines exit, which
	// happens after ctx is cancelled below.
	go worker.Start(ctx, concurrency, orch)

	// 10. Block until the OS sends a shutdown signal.
	<-quit
	log.Println("⏳ Shutdown signal received, draining in-flight jobs...")

	// Cancelling ctx propagates into the BLPop loop (workers stop picking up
	// new jobs), into per-job contexts (in-flight probes are interrupted), and
	// into the cache cleanup goroutine (exits cleanly).
	cancel()

	const drainTimeout = 30 * time.Second
	log.Printf("⏳ Waiting %s for in-flight jobs to complete...", drainTimeout)
	time.Sleep(drainTimeout)

	log.Println("✅ Worker shut down cleanly.")
}
