package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/EmperorKunDis/Praut-App/internal/auth"
	"github.com/EmperorKunDis/Praut-App/internal/board"
	"github.com/EmperorKunDis/Praut-App/internal/config"
	"github.com/EmperorKunDis/Praut-App/internal/handler"
	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/presence"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

// Server is the Fiber app wrapper wiring the whiteboard engine to HTTP
type Server struct {
	app               *fiber.App
	cfg               *config.Config
	db                *gorm.DB
	registry          *board.Registry
	presenceMgr       *presence.Manager
	whiteboardHandler *handler.WhiteboardHandler
	boardWSHandler    *handler.BoardWSHandler
	jwtManager        *auth.JWTManager
}

// New builds the server and its dependency graph
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Praut Whiteboard Engine",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with WebSocket rooms
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)

	st := store.NewGormStore(db)
	registry := board.NewRegistry(st, board.Options{
		MaxParticipants: cfg.Board.MaxParticipants,
		MutationQueue:   cfg.Board.MutationQueueSize,
		BroadcastQueue:  cfg.Board.BroadcastBuffer,
	})

	// Presence is optional: without Redis the engine still serves rooms,
	// only cross-process presence listing is unavailable.
	var presenceMgr *presence.Manager
	if cfg.Redis.Addr != "" {
		var err error
		presenceMgr, err = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("[Server] presence disabled, Redis unreachable: %v", err)
			presenceMgr = nil
		}
	} else {
		log.Println("[Server] presence not configured (REDIS_ADDR empty)")
	}

	return &Server{
		app:               app,
		cfg:               cfg,
		db:                db,
		registry:          registry,
		presenceMgr:       presenceMgr,
		whiteboardHandler: handler.NewWhiteboardHandler(db, st),
		boardWSHandler:    handler.NewBoardWSHandler(registry, presenceMgr, cfg),
		jwtManager:        jwtManager,
	}
}

// SetupMiddleware installs the global middleware chain
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes registers the REST and WebSocket endpoints
func (s *Server) SetupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok"}
		sqlDB, err := s.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		if s.presenceMgr != nil {
			if err := s.presenceMgr.Health(c.Context()); err != nil {
				status["presence"] = "unreachable"
			}
		}
		status["rooms"] = s.registry.RoomCount()
		return c.JSON(status)
	})

	// creation is rate limited per IP, drawing traffic is not
	createLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api/whiteboards", auth.Middleware(s.jwtManager))
	api.Post("/", createLimiter, s.whiteboardHandler.CreateWhiteboard)
	api.Get("/", s.whiteboardHandler.ListWhiteboards)
	api.Get("/:id", s.whiteboardHandler.GetWhiteboard)
	api.Get("/:id/elements", s.whiteboardHandler.GetElements)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/board/:whiteboardId", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// browsers cannot set headers on WebSocket requests, so the token
		// comes from the cookie or a query parameter
		token := c.Cookies("access_token")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		identity, err := s.jwtManager.Verify(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		whiteboardID, err := c.ParamsInt("whiteboardId")
		if err != nil || whiteboardID <= 0 {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		var count int64
		s.db.Model(&model.Whiteboard{}).
			Where("id = ?", whiteboardID).
			Count(&count)
		if count == 0 {
			return c.SendStatus(fiber.StatusNotFound)
		}

		c.Locals("whiteboardID", int64(whiteboardID))
		c.Locals("userID", identity.UserID)
		c.Locals("nickname", identity.Nickname)

		return c.Next()
	}, websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("[Server] shutting down...")
		if s.presenceMgr != nil {
			if err := s.presenceMgr.Close(); err != nil {
				log.Printf("[Server] presence close error: %v", err)
			}
		}
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("[Server] shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] whiteboard engine starting on %s", s.cfg.Server.Port)
	log.Printf("[Server] WebSocket endpoint: ws://localhost%s/ws/board/:whiteboardId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
