package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ticket-pass/config"
	"ticket-pass/internal/handlers"
	"ticket-pass/internal/services"
	"ticket-pass/internal/services/chain"
	"ticket-pass/internal/services/qrcode"
	"ticket-pass/internal/services/store"
	_ "ticket-pass/migrations"
	"ticket-pass/models"
	"ticket-pass/monitoring"
	"ticket-pass/security"
	"ticket-pass/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

const issueRateLimit = 30

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	registerCommands(app)

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		// keygen, migrate and friends do not need the runtime stack
		migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{Automigrate: cfg.IsDevelopment()})
		return app.Start()
	}
	if len(os.Args) == 2 {
		os.Args = append(os.Args, "--http=0.0.0.0:"+cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(ctx, utils.RedisOptions{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		if cfg.LedgerBackend != "memory" {
			return err
		}
		slog.Warn("Redis unavailable, running without rate limiting", "error", err)
	} else {
		defer redisClient.Close()
	}

	monitor := monitoring.NewMonitor()
	if cfg.EnableMetrics {
		monitoring.StartMetricsServer(ctx, cfg.MetricsPort)
	}

	// Issuer keys
	window := qrcode.NewWindow(cfg.QRRotation, cfg.QRTolerance)
	signer, verifier, err := loadKeys(cfg)
	if err != nil {
		return err
	}

	// Ownership oracle
	var oracle services.OwnershipOracle
	if cfg.OracleEnabled {
		breaker := utils.NewCircuitBreakerWithSettings("ownership-oracle", utils.Settings{
			MinRequests:   5,
			OnStateChange: monitor.TrackBreaker,
		})
		evm, closeRPC, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, cfg.OracleTimeout, breaker)
		if err != nil {
			return err
		}
		defer closeRPC()
		oracle = evm
		log.Printf("Ownership oracle reading %s on %s", cfg.ContractAddress, cfg.ChainTag)
	} else {
		log.Println("Ownership oracle disabled; tickets bound to a token will be refused")
	}

	defaultStandard, ok := models.ParseTokenStandard(cfg.TokenStandard)
	if !ok {
		return fmt.Errorf("config: unknown TOKEN_STANDARD %q", cfg.TokenStandard)
	}

	// Ledger backend
	pbStore := store.NewPocketBaseStore(app)
	var (
		ledger services.Ledger
		writer handlers.TicketWriter = pbStore
		mirror *store.TicketMirror
	)
	switch cfg.LedgerBackend {
	case "redis":
		redisStore := store.NewRedisStore(redisClient)
		ledger = redisStore
		mirror = store.NewTicketMirror(app, redisStore)
	case "memory":
		memStore := store.NewMemoryStore()
		ledger = memStore
		writer = memStore
	default:
		ledger = pbStore
	}
	log.Printf("Redemption ledger: %s", cfg.LedgerBackend)

	// Initialize services
	scanService := services.NewScanService(verifier, window, ledger, ledger, oracle)
	scanService.SetDefaultStandard(defaultStandard)
	scanService.SetObserver(monitor)
	if pn := newPubNub(cfg); pn != nil {
		scanService.SetNotifier(services.NewPubNubNotifier(pn))
	}

	var issueService *services.IssueService
	if signer != nil {
		issueService = services.NewIssueService(qrcode.NewMinter(signer, window, cfg.ChainTag), ledger, cfg.QRImageBaseURL)
		issueService.SetObserver(monitor)
	}

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(issueService, writer)
	scanHandler := handlers.NewScanHandler(scanService)
	adminHandler := handlers.NewAdminHandler(ledger, ledger)

	scannerAuth := security.NewScannerAuth(cfg.ScannerKeyHashes, cfg.IsDevelopment())

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})

	store.BindAppendOnly(app)
	if mirror != nil {
		mirror.Bind()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if mirror != nil {
			n, err := mirror.SyncAll(ctx)
			if err != nil {
				log.Printf("Error mirroring tickets to Redis: %v", err)
			} else {
				log.Printf("Mirrored %d tickets to Redis", n)
			}
		}

		var limiter *security.RateLimiter
		if redisClient != nil {
			limiter = security.NewRateLimiter(redisClient)
		}

		// Ticket endpoints
		if issueService != nil {
			qr := e.Router.GET("/api/v1/ticket/qr", ticketHandler.GetQR)
			if limiter != nil {
				qr.BindFunc(limiter.AntiBot(issueRateLimit))
			}
		}

		// Scan endpoints
		validate := e.Router.POST("/api/v1/scan/validate", scanHandler.Validate)
		if limiter != nil {
			validate.BindFunc(limiter.ClientRateLimit(int64(cfg.ScanClientRateLimit)))
		}
		validate.BindFunc(scannerAuth.Middleware())
		if limiter != nil {
			validate.BindFunc(limiter.ScanRateLimit(int64(cfg.ScanRateLimit)))
		}

		// Admin endpoints
		e.Router.GET("/api/v1/admin/tickets/{ticketId}", adminHandler.GetTicket).Bind(apis.RequireSuperuserAuth())
		e.Router.GET("/api/v1/admin/tickets/{ticketId}/scans", adminHandler.ListScans).Bind(apis.RequireSuperuserAuth())

		// Test endpoint standing in for fulfillment
		if cfg.IsDevelopment() {
			e.Router.POST("/api/v1/test/tickets", ticketHandler.CreateTestTicket)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := healthCheck(e.Request.Context(), redisClient, ledger); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}

func loadKeys(cfg *config.Config) (*qrcode.Signer, *qrcode.Verifier, error) {
	var signer *qrcode.Signer
	if cfg.SignerPrivateKey != "" {
		s, err := qrcode.NewSignerFromHex(cfg.SignerPrivateKey)
		if err != nil {
			return nil, nil, err
		}
		signer = s
	}

	if cfg.SignerPublic == "" {
		return signer, qrcode.NewVerifier(signer.Address()), nil
	}

	verifier, err := qrcode.NewVerifierFromAddress(cfg.SignerPublic)
	if err != nil {
		return nil, nil, err
	}
	if signer != nil && signer.Address() != verifier.Address() {
		return nil, nil, errors.New("config: SIGNER_PUBLIC does not match SIGNER_PRIVATE_KEY")
	}
	return signer, verifier, nil
}

func newPubNub(cfg *config.Config) *pubnub.PubNub {
	if cfg.PubNubPublishKey == "" {
		return nil
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	// The worker queue drops requests whose context is already done without
	// answering the caller; direct requests honour the publish deadline.
	pnConfig.MaxWorkers = 0

	return pubnub.NewPubNub(pnConfig)
}

func healthCheck(ctx context.Context, redisClient *redis.Client, ledger services.Ledger) error {
	if redisClient != nil {
		if err := utils.RedisHealthCheck(ctx, redisClient); err != nil {
			return err
		}
	}
	if err := ledger.Ping(ctx); err != nil {
		return fmt.Errorf("ledger health check failed: %w", err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
