package main

import (
	"context"
	"log"
	"time"

	config "github.com/anjiri1684/staybook/configs"
	"github.com/anjiri1684/staybook/database"
	"github.com/anjiri1684/staybook/events"
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/jobs"
	"github.com/anjiri1684/staybook/logging"
	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/notifications"
	"github.com/anjiri1684/staybook/payments"
	"github.com/anjiri1684/staybook/routes"
	"github.com/anjiri1684/staybook/services"
	"github.com/anjiri1684/staybook/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	settings := config.MustLoad()
	logging.Setup(logging.Options{
		Service:    "staybook",
		Env:        settings.Env,
		File:       settings.LogFile,
		MaxSizeMB:  settings.LogMaxSizeMB,
		MaxBackups: settings.LogMaxBackups,
	})

	database.ConnectDB(settings.DatabaseURL)
	database.Migrate()
	if err := database.SeedAdmin(database.DB); err != nil {
		log.Printf("Warning: admin seed failed: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	var mailer services.Mailer
	if brevo := notifications.NewEmailService(); brevo != nil {
		mailer = brevo
	}

	var publisher services.EventPublisher
	if settings.RabbitURL != "" {
		p, err := events.NewPublisher(settings.RabbitURL, settings.EventsExchange)
		if err != nil {
			log.Printf("Warning: event publisher unavailable: %v", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	notifier := services.NewNotificationService(database.DB, hub, mailer)
	availability := services.NewAvailabilityService(database.DB, settings.QuoteCacheTTL)
	settlement := services.NewSettlementService(database.DB, notifier, publisher, settings.CommissionRate)
	reservations := services.NewReservationService(database.DB, availability, settlement, services.ReservationConfig{
		TxTimeout:   settings.ReservationTxTimeout,
		MaxStayDays: settings.MaxStayDays,
	})

	rates := services.NewExchangeRates(config.Config("EXCHANGE_RATE_API_KEY"))
	paypal := payments.NewPayPalGateway()
	paymentService := services.NewPaymentService(database.DB, settlement, availability, notifier)
	paymentService.RegisterGateway(models.MethodPayPal, paypal)
	paymentService.RegisterGateway(models.MethodCard, paypal)
	paymentService.RegisterGateway(models.MethodMpesa, payments.NewMpesaGateway(rates))

	var uploader *services.CloudinaryUploader
	var vouchers *services.VoucherService
	if cloudinaryURL := config.Config("CLOUDINARY_URL"); cloudinaryURL != "" {
		u, err := services.NewCloudinaryUploader(cloudinaryURL)
		if err != nil {
			log.Printf("Warning: Cloudinary unavailable: %v", err)
		} else {
			uploader = u
			paymentService.SetUploader(u)
			vouchers = services.NewVoucherService(database.DB, u, "templates/voucher.html")
			paymentService.SetVoucherService(vouchers)
		}
	}

	providers := services.NewProviderService(database.DB, availability, notifier)

	handlers.Setup(handlers.Deps{
		Availability:  availability,
		Reservations:  reservations,
		Settlement:    settlement,
		Payments:      paymentService,
		Notifications: notifier,
		Providers:     providers,
		Vouchers:      vouchers,
		Bookings:      services.NewBookingQueries(database.DB),
		Mailer:        mailer,
		Uploader:      uploader,
		Rates:         rates,
		PayPal:        paypal,
		Hub:           hub,
	})

	c := cron.New()
	c.AddFunc("*/5 * * * *", func() {
		jobs.ExpireStaleReservations(context.Background(), database.DB, paymentService, settings.PendingPaymentTTL)
	})
	c.AddFunc("0 * * * *", func() {
		jobs.SendCheckInReminders(context.Background(), database.DB, notifier)
	})
	go c.Start()
	log.Println("✅ Cron jobs for reservation expiry and reminders scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "StayBook",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to StayBook API",
		})
	})

	routes.PublicRoutes(app)
	routes.AuthRoutes(app)
	routes.ProfileRoutes(app)
	routes.BookingRoutes(app)
	routes.PaymentRoutes(app)
	routes.ProviderRoutes(app)
	routes.AdminRoutes(app)
	routes.NotificationRoutes(app)
	routes.UploadRoutes(app)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Printf("✅ Server is running on port %s", settings.Port)
	if err := app.Listen(":" + settings.Port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
