package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/handlers"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	channelHandler *handlers.ChannelHandler,
	presenceHandler *handlers.PresenceHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/workspaces/:id/channels", channelHandler.ListChannelsHandler)
			v1.POST("/workspaces/:id/channels", channelHandler.CreateChannelHandler)
			v1.DELETE("/channels/:id", channelHandler.DeleteChannelHandler)

			v1.GET("/workspaces/:id/presence", presenceHandler.WorkspacePresence)
		}
	}

	return e
}
