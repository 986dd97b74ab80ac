package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/application/services"
	"github.com/tuncanbit/pricefeed/internal/domain"
)

type Handlers struct {
	Resolver services.IQueryResolver
	Logger   zerolog.Logger
}

func New(resolver services.IQueryResolver, logger zerolog.Logger) *Handlers {
	return &Handlers{
		Resolver: resolver,
		Logger:   logger,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	healthHandler := NewHealthHandler(h.Resolver)
	priceHandler := NewPriceHandler(h.Resolver, h.Logger)

	router.GET("/", healthHandler.Health)
	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	{
		api.GET("/prices", priceHandler.List)
		api.GET("/crypto", priceHandler.List)

		api.GET("/prices/:symbol", priceHandler.Get)
		api.GET("/crypto/:symbol", priceHandler.Get)
		api.GET("/quote/:symbol", priceHandler.Get)

		api.GET("/quotes", priceHandler.Quotes)
		api.GET("/historical/:symbol", priceHandler.History)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "Endpoint not found"})
	})
}
