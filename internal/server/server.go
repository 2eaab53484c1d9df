package server

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"coffee-commerce-backend/internal/client"
	"coffee-commerce-backend/internal/handler"
	"coffee-commerce-backend/internal/middleware"
	"coffee-commerce-backend/internal/service"
	"coffee-commerce-backend/internal/webhook"
)

type Server struct {
	echo                *echo.Echo
	webhookHandler      *handler.WebhookHandler
	subscriptionHandler *handler.SubscriptionHandler
	orderHandler        *handler.OrderHandler
	adminToken          string
}

func NewServer(
	processor client.StripeClient,
	dispatcher *webhook.Dispatcher,
	subscriptionService service.SubscriptionService,
	orderService service.OrderService,
	adminToken string,
	log *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	s := &Server{
		echo:                e,
		webhookHandler:      handler.NewWebhookHandler(processor, dispatcher, log),
		subscriptionHandler: handler.NewSubscriptionHandler(subscriptionService),
		orderHandler:        handler.NewOrderHandler(orderService),
		adminToken:          adminToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- processor webhooks --------
	api.POST("/webhooks/stripe", s.webhookHandler.HandleStripeWebhook)

	// -------- admin --------
	admin := api.Group("/admin", middleware.AdminAuth(s.adminToken))
	admin.GET("/subscriptions", s.subscriptionHandler.List)
	admin.POST("/subscriptions/:id/skip", s.subscriptionHandler.Skip)
	admin.POST("/subscriptions/:id/resume", s.subscriptionHandler.Resume)
	admin.POST("/subscriptions/:id/cancel", s.subscriptionHandler.Cancel)
	admin.POST("/orders/:id/ship", s.orderHandler.MarkShipped)
	admin.POST("/orders/:id/pickup", s.orderHandler.MarkPickedUp)
	admin.POST("/orders/:id/cancel", s.orderHandler.Cancel)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
