package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mastergamma8/Testmsg/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	rateLimiter := middleware.RateLimiter()

	s.E.GET("/check_session", s.handler.CheckSession)
	s.E.POST("/register", s.handler.Register, rateLimiter)
	s.E.POST("/login", s.handler.Login, rateLimiter)
	s.E.POST("/logout", s.handler.Logout)

	s.E.POST("/search_user", s.handler.SearchUser)
	s.E.GET("/get_chats", s.handler.GetChats)
	s.E.POST("/get_history", s.handler.GetHistory)

	s.E.GET("/ws", s.bridge.Handler())

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Diagnostic view of who is currently online.
	s.E.GET("/presence", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"online": s.presence.Online()})
	})
}
