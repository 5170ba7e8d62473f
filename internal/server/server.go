package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mastergamma8/Testmsg/internal/chat"
	"github.com/mastergamma8/Testmsg/internal/config"
	"github.com/mastergamma8/Testmsg/internal/logging"
	appmw "github.com/mastergamma8/Testmsg/internal/middleware"
	"github.com/mastergamma8/Testmsg/internal/presence"
	"github.com/mastergamma8/Testmsg/internal/pubsub"
	"github.com/mastergamma8/Testmsg/internal/store"
	ws "github.com/mastergamma8/Testmsg/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	db       *badger.DB
	messages *store.MessageStore
	users    *store.UserStore
	bus      *pubsub.Bus
	bridge   *ws.Bridge
	presence *presence.Registry
	router   *chat.Router
	service  *chat.Service
	handler  *chat.Handler
}

// New creates a new Server instance with all dependencies wired.
func New() *Server {
	cfg := config.New()
	logging.New(cfg.LogFormat)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	messages, err := store.NewMessageStore(db)
	if err != nil {
		slog.Error("Failed to create message store", "error", err)
		os.Exit(1)
	}
	users := store.NewUserStore(db)

	bus := pubsub.NewBus()
	reg := presence.NewRegistry()

	bridge := ws.NewBridge(bus)
	go bridge.Run()

	router := chat.NewRouter(messages, users, reg, bus)
	service := chat.NewService(messages, users, reg, bus)
	handler := chat.NewHandler(service, users)

	// Subscriptions are wired before the first client can connect, so no
	// inbound frame is ever published without a consumer.
	ctx := context.Background()
	if err := bridge.Subscribe(ctx, bus); err != nil {
		slog.Error("Failed to subscribe bridge", "error", err)
		os.Exit(1)
	}
	if err := router.Subscribe(ctx, bus); err != nil {
		slog.Error("Failed to subscribe router", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.Logger)

	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 31, // 31 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(cookies))

	return &Server{
		E:        e,
		Cfg:      cfg,
		db:       db,
		messages: messages,
		users:    users,
		bus:      bus,
		bridge:   bridge,
		presence: reg,
		router:   router,
		service:  service,
		handler:  handler,
	}
}

// UserStore is a getter for the server's user store, useful for testing.
func (s *Server) UserStore() *store.UserStore {
	return s.users
}

// MessageStore is a getter for the server's message store, useful for testing.
func (s *Server) MessageStore() *store.MessageStore {
	return s.messages
}
