package main

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ridelink/ridelink-backend/internal/chat"
	"github.com/ridelink/ridelink-backend/internal/config"
	"github.com/ridelink/ridelink-backend/internal/database"
	"github.com/ridelink/ridelink-backend/internal/handlers"
	"github.com/ridelink/ridelink-backend/internal/lifecycle"
	"github.com/ridelink/ridelink-backend/internal/location"
	"github.com/ridelink/ridelink-backend/internal/matching"
	"github.com/ridelink/ridelink-backend/internal/middleware"
	"github.com/ridelink/ridelink-backend/internal/payments"
	"github.com/ridelink/ridelink-backend/internal/realtime"
	"github.com/ridelink/ridelink-backend/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)

	// Real-time hub
	hub := realtime.NewHub()

	// Stores and domain services
	bookingStore := storage.NewBookingStore(db)
	chatStore := storage.NewChatStore(db)
	registry := location.NewRegistry(db, rdb, hub)
	signals := matching.NewSignals()

	lifecycleService := &lifecycle.Service{
		Store:   bookingStore,
		Drivers: registry,
		Channel: hub,
		Signals: signals,
		Pay:     payments.NewStripeClient(),
	}
	chatService := &chat.Service{
		Bookings: bookingStore,
		Store:    chatStore,
		Rooms:    hub,
	}
	engine := &matching.Engine{
		Drivers:     registry,
		Store:       bookingStore,
		Channel:     hub,
		Signals:     signals,
		OfferWindow: cfg.OfferWindow,
	}

	hub.SetHandler(&handlers.EventRouter{
		Lifecycle: lifecycleService,
		Chat:      chatService,
		Locations: registry,
	})
	go hub.Run()

	// Initialize router
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":           "ok",
			"connectedClients": hub.GetConnectedClients(),
		})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		// WebSocket connection
		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocketHandler(hub))

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			driver := protected.Group("/driver")
			{
				driver.POST("/location", handlers.UpdateDriverLocation(registry))
				driver.POST("/availability", handlers.UpdateDriverAvailability(registry))
				driver.GET("/status", handlers.GetDriverStatus(registry))
				driver.POST("/bookings/:id/accept", handlers.AcceptBooking(lifecycleService))
				driver.POST("/bookings/:id/decline", handlers.DeclineBooking(lifecycleService))
				driver.POST("/bookings/:id/complete", handlers.CompleteBooking(lifecycleService))
			}

			rides := protected.Group("/rides")
			{
				rides.POST("/request", handlers.RequestRide(engine, hub))
				rides.GET("/nearby-drivers", handlers.GetNearbyDrivers(registry, cfg.NearbyRadiusKm))
			}

			bookings := protected.Group("/bookings")
			{
				bookings.GET("/:id/status", handlers.GetBookingStatus(bookingStore))
				bookings.GET("/client", handlers.GetClientBookings(bookingStore))
				bookings.GET("/driver", handlers.GetDriverBookings(bookingStore))
				bookings.POST("/:id/rate", handlers.RateBooking(lifecycleService))
				bookings.GET("/:id/messages", handlers.ListChatMessages(chatService))
				bookings.POST("/:id/messages", handlers.PostChatMessage(chatService))
			}
		}
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
