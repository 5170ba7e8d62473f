package chat

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/mastergamma8/Testmsg/internal/domain"
	"github.com/mastergamma8/Testmsg/internal/middleware"
)

// SessionName is the cookie holding the logged-in username.
const SessionName = "session"

const searchLimit = 10

// Handler exposes the request-style chat API: session introspection,
// registration and login, user search, the chat list, and conversation
// history.
type Handler struct {
	service  *Service
	users    domain.UserRepository
	validate *validator.Validate
}

// NewHandler creates the chat HTTP handler.
func NewHandler(service *Service, users domain.UserRepository) *Handler {
	return &Handler{
		service:  service,
		users:    users,
		validate: validator.New(),
	}
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=50,excludesall=:0x7C"`
	Password string `json:"password" validate:"required"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type historyRequest struct {
	Partner string `json:"partner"`
}

// currentUser reads the logged-in username from the session cookie, or ""
// for guests.
func currentUser(c echo.Context) string {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return ""
	}
	username, _ := sess.Values["username"].(string)
	return username
}

// CheckSession reports whether the request carries a valid session.
func (h *Handler) CheckSession(c echo.Context) error {
	if me := currentUser(c); me != "" {
		return c.JSON(http.StatusOK, map[string]string{"status": "logged_in", "username": me})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "guest"})
}

// Register creates a new account and logs it in.
func (h *Handler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return errorJSON(c, "username and password are required")
	}

	user, err := h.users.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserAlreadyExists):
			return errorJSON(c, "username is already taken")
		case errors.Is(err, domain.ErrValidation):
			return errorJSON(c, "username and password are required")
		default:
			middleware.FromContext(c.Request().Context()).Error("Failed to register user", "error", err)
			return errorJSON(c, "could not create account")
		}
	}

	if err := saveUsername(c, user.Username); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to save session", "error", err)
		return errorJSON(c, "could not create session")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "username": user.Username})
}

// Login verifies credentials and issues a session.
func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return errorJSON(c, "username and password are required")
	}

	user, err := h.users.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return errorJSON(c, "login failed")
		}
		middleware.FromContext(c.Request().Context()).Error("Failed to authenticate user", "error", err)
		return errorJSON(c, "login failed")
	}

	if err := saveUsername(c, user.Username); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to save session", "error", err)
		return errorJSON(c, "could not create session")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "username": user.Username})
}

// Logout drops the session.
func (h *Handler) Logout(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err == nil {
		delete(sess.Values, "username")
		_ = sess.Save(c.Request(), c.Response())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

// SearchUser finds usernames by substring, excluding the requester.
func (h *Handler) SearchUser(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil || req.Query == "" {
		return c.JSON(http.StatusOK, []string{})
	}

	results, err := h.users.Search(c.Request().Context(), req.Query, currentUser(c), searchLimit)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to search users", "error", err)
		return c.JSON(http.StatusOK, []string{})
	}
	if results == nil {
		results = []string{}
	}
	return c.JSON(http.StatusOK, results)
}

// GetChats returns the requester's chat list. Guests get an empty list.
func (h *Handler) GetChats(c echo.Context) error {
	me := currentUser(c)
	if me == "" {
		return c.JSON(http.StatusOK, []ChatSummary{})
	}

	chats, err := h.service.ChatList(c.Request().Context(), me)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to build chat list", "username", me, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load chats")
	}
	return c.JSON(http.StatusOK, chats)
}

// GetHistory returns the conversation with a partner, marking the partner's
// messages as read as a side effect.
func (h *Handler) GetHistory(c echo.Context) error {
	me := currentUser(c)
	var req historyRequest
	if err := c.Bind(&req); err != nil || me == "" || req.Partner == "" {
		return c.JSON(http.StatusOK, History{Messages: []MessagePayload{}})
	}

	history, err := h.service.ConversationView(c.Request().Context(), me, req.Partner)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to load history", "username", me, "partner", req.Partner, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	if history.Messages == nil {
		history.Messages = []MessagePayload{}
	}
	return c.JSON(http.StatusOK, history)
}

// saveUsername writes the identity into the session cookie.
func saveUsername(c echo.Context, username string) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Values["username"] = username
	return sess.Save(c.Request(), c.Response())
}

// errorJSON is the structured failure result for request-style calls. The
// original wire contract reports errors inside a 200 body, so clients
// branch on the status field rather than the HTTP code.
func errorJSON(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "error", "message": message})
}
