package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"persona_chat_go_backend/cmd/api/config"
	"persona_chat_go_backend/internal/api"
	"persona_chat_go_backend/internal/auth"
	"persona_chat_go_backend/internal/database"
	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/llm/anthropic"
	googleadapter "persona_chat_go_backend/internal/llm/google"
	"persona_chat_go_backend/internal/llm/openai"
	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/services"
	"persona_chat_go_backend/internal/utils/broker"
	"persona_chat_go_backend/internal/wsocket"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	database.InitDB()
	cfg := config.NewConfig()

	ctx := context.Background()

	// Provider adapters. Each vendor is optional; requests for models of an
	// unconfigured vendor fail at model resolution.
	providers := make(map[models.Vendor]llm.Provider)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers[models.VendorOpenAI] = openai.NewClient(key, openai.WithRetryBackoff(cfg.RetryBackoff))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers[models.VendorAnthropic] = anthropic.NewClient(key, anthropic.WithRetryBackoff(cfg.RetryBackoff))
	}
	if key := os.Getenv("GOOGLE_AI_STUDIO_API_KEY"); key != "" {
		genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			log.Fatalf("Failed to create GenAI client: %v", err)
		}
		defer genaiClient.Close()
		providers[models.VendorGoogle] = googleadapter.NewClient(genaiClient, googleadapter.WithRetryBackoff(cfg.RetryBackoff))
	}
	if len(providers) == 0 {
		log.Fatal("No provider API keys configured")
	}

	// Stripe for balance top-ups
	stripeService := services.NewStripeService(
		os.Getenv("STRIPE_SECRET_KEY"),
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
		os.Getenv("STRIPE_SUCCESS_URL"),
		os.Getenv("STRIPE_CANCEL_URL"),
	)

	// Internal services
	catalog, err := services.NewDBModelCatalog(database.DB)
	if err != nil {
		log.Fatalf("Failed to initialize model catalog: %v", err)
	}
	pricingService := services.NewPricingService(catalog)
	chatStore := services.NewChatStore(database.DB)
	accountStore := services.NewAccountStore(database.DB)
	userService := services.NewUserService(database.DB)
	messageBroker := broker.NewBroker()

	orchestrator := services.NewMessageOrchestrator(
		providers,
		catalog,
		pricingService,
		chatStore,
		accountStore,
		userService,
		messageBroker,
		logger,
	)
	orchestrator.SetStreamLimits(cfg.StreamBufferSize, cfg.StreamSendTimeout)
	orchestrator.SetHistoryLimit(cfg.HistoryLimit)

	// Background profile extraction runs on a cheap model when its vendor has
	// an adapter configured.
	extractionModelID := os.Getenv("PROFILE_EXTRACTION_MODEL")
	if extractionModelID == "" {
		extractionModelID = "gpt-4o-mini"
	}
	if extractionModel, err := catalog.Get(extractionModelID); err == nil {
		if provider, ok := providers[extractionModel.Vendor]; ok {
			orchestrator.SetProfileExtractor(
				services.NewProfileExtractor(provider, extractionModel.ModelID, userService, logger),
			)
		}
	}

	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173" // Default to your local frontend
	}

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(allowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// WebSocket upgrader
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // TODO: Implement a more secure check in production
		},
	}

	wsHandler := wsocket.NewHandler(messageBroker, upgrader)

	api.SetupRoutes(r, orchestrator, chatStore, catalog, accountStore, stripeService, userService)

	// Balance updates are pushed over a websocket
	r.GET("/ws", auth.Middleware(userService), func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
			return
		}
		wsHandler.HandleWebSocket(c.Writer, c.Request, user)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
