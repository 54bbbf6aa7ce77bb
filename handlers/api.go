package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps are the collaborators of the web bridge.
type Deps struct {
	Registry     *Registry
	Connectivity session.Connectivity
	Limiter      *rate.Limiter // limits submitted questions; nil means unlimited
	Logger       *zap.Logger
	AccessLog    bool // fiber request logging
}

type api struct {
	Deps
	log *zap.Logger
}

type conversationView struct {
	ConversationID string           `json:"conversationId"`
	Messages       []models.Message `json:"messages"`
	Sending        bool             `json:"sending"`
	Settings       settingsView     `json:"settings"`
}

type settingsView struct {
	TopK          int     `json:"top_k"`
	MinSimilarity float64 `json:"min_similarity"`
}

type askRequest struct {
	Query string `json:"query"`
}

// NewApp builds the fiber app serving the REST API, the conversation
// websocket and /metrics.
func NewApp(deps Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &api{Deps: deps, log: deps.Logger.Named("http")}

	app := fiber.New(fiber.Config{
		AppName:               "ragchat",
		DisableStartupMessage: true,
		ErrorHandler:          a.errorHandler,
	})
	if deps.AccessLog {
		app.Use(logger.New()) // Basic request logging
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v := app.Group("/api")
	v.Get("/health", a.health)
	v.Get("/conversations/:conversationID", a.getConversation)
	v.Delete("/conversations/:conversationID", a.clearConversation)
	v.Post("/conversations/:conversationID/messages", a.ask)
	v.Post("/conversations/:conversationID/messages/:index/toggle", a.toggle)
	v.Put("/conversations/:conversationID/settings", a.updateSettings)

	app.Use("/chat", func(c *fiber.Ctx) error {
		// Check if the request is a WebSocket upgrade request
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket endpoint: /chat/:conversationID
	app.Get("/chat/:conversationID", websocket.New(func(c *websocket.Conn) {
		HandleWebSocket(c, deps.Registry, deps.Limiter, a.log)
	}))

	return app
}

func (a *api) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (a *api) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": a.Connectivity.State().String()})
}

func conversationID(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("conversationID"))
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing conversationID")
	}
	return id, nil
}

func view(s *session.Session) conversationView {
	st := s.Settings()
	return conversationView{
		ConversationID: s.Store().ID(),
		Messages:       s.Store().Messages(),
		Sending:        s.IsSending(),
		Settings:       settingsView{TopK: st.TopK, MinSimilarity: st.MinSimilarity},
	}
}

func (a *api) getConversation(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	s, ok := a.Registry.Lookup(id)
	if !ok {
		return errUnknownConversation(id)
	}
	return c.JSON(view(s))
}

func errUnknownConversation(id string) error {
	return fiber.NewError(fiber.StatusNotFound, "no conversation "+id)
}

func (a *api) clearConversation(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	if s, ok := a.Registry.Lookup(id); ok {
		s.Clear()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *api) ask(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if a.Limiter != nil && !a.Limiter.Allow() {
		return fiber.NewError(fiber.StatusTooManyRequests, errRateLimited.Error())
	}

	reply, err := a.Registry.Get(id).Ask(req.Query)
	if err != nil {
		return gateError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// gateError maps session gate errors onto HTTP statuses.
func gateError(err error) error {
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrOffline):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, session.ErrBusy):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, session.ErrDiscarded):
		return fiber.NewError(fiber.StatusGone, err.Error())
	default:
		return err
	}
}

func (a *api) toggle(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "index must be an integer")
	}
	s, ok := a.Registry.Lookup(id)
	if !ok {
		return errUnknownConversation(id)
	}
	if !s.ToggleSources(idx) {
		return fiber.NewError(fiber.StatusNotFound, "no message at index "+strconv.Itoa(idx))
	}
	msg, _ := s.Store().Get(idx)
	return c.JSON(msg)
}

func (a *api) updateSettings(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req settingsView
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s := a.Registry.Get(id)
	if err := s.SetSettings(session.Settings{TopK: req.TopK, MinSimilarity: req.MinSimilarity}); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(view(s).Settings)
}
