package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/powerca/backoffice/cache"
	config "github.com/powerca/backoffice/configs"
	"github.com/powerca/backoffice/crm"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/handlers"
	"github.com/powerca/backoffice/invoices"
	"github.com/powerca/backoffice/jobs"
	"github.com/powerca/backoffice/metrics"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/payments"
	"github.com/powerca/backoffice/routes"
	"github.com/powerca/backoffice/services"
	"github.com/powerca/backoffice/utils"
	"github.com/powerca/backoffice/websocket"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}
	slogger := utils.NewLogger(cfg.LogLevel)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Println("✅ Sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	if err := database.SeedAdmin(db, cfg); err != nil {
		log.Printf("⚠️ Failed to seed admin user: %v", err)
	}
	store := database.NewStore(db)
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := services.VerificationDeps{
		Store:    store,
		Verifier: payments.NewVerifier(cfg.RazorpayKeySecret, cfg.IsProduction()),
		Composer: invoices.NewComposer(invoices.NewNumberer(nil), cfg.GSTExempt, cfg.SellerStateCode),
		Seller:   invoices.Party{Name: cfg.CompanyName, Company: cfg.CompanyName, GSTIN: cfg.SellerGSTIN},
		Logger:   slogger,
		Metrics:  m,
	}

	if cfg.RedisURL != "" {
		redisClient, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, verification runs without a lock: %v", err)
		} else {
			defer redisClient.Close()
			deps.Locker = redisClient
		}
	}

	mailer := notifications.NewMailer(cfg)
	deps.Mailer = mailer
	if !cfg.ChromeDisabled {
		deps.Renderer = invoices.NewChromeRenderer(30 * time.Second)
	}
	if cfg.CloudinaryURL != "" {
		archive, err := invoices.NewCloudinaryArchive(cfg.CloudinaryURL)
		if err != nil {
			log.Printf("⚠️ Cloudinary unavailable, invoice PDFs will not be archived: %v", err)
		} else {
			deps.Archive = archive
		}
	}
	deps.Referrals = services.NewReferralService(store, slogger, m)
	verification := services.NewVerificationService(deps)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	h := handlers.New(handlers.Handler{
		Settings:     cfg,
		Store:        store,
		Verification: verification,
		Razorpay:     payments.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		Mailer:       mailer,
		CRM:          crm.NewSync(crm.NewHubSpotClient(cfg.HubSpotBaseURL, cfg.HubSpotToken), slogger, m),
		Hub:          hub,
		Logger:       slogger,
	})

	reconciler := jobs.NewReconciler(store, verification, slogger)
	reminders := jobs.NewDemoReminder(store, mailer, slogger)
	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() { reconciler.Run(ctx) }); err != nil {
		log.Fatalf("🔥 Invalid RECONCILE_SCHEDULE %q: %v", cfg.ReconcileSchedule, err)
	}
	c.AddFunc("*/5 * * * *", func() { reminders.Run(ctx) })
	c.Start()
	defer c.Stop()
	log.Println("✅ Cron jobs for reconciliation and demo reminders scheduled successfully.")

	app := fiber.New(fiber.Config{
		AppName:       "PowerCA Backoffice",
		CaseSensitive: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		MaxAge:       86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Kolkata",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.Setup(app, h)

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Server shutdown error: %v", err)
		}
	}()

	log.Printf("✅ Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
