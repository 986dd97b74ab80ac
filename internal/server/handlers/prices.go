package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/application/services"
	"github.com/tuncanbit/pricefeed/internal/domain"
)

type PriceHandler struct {
	resolver services.IQueryResolver
	logger   zerolog.Logger
}

func NewPriceHandler(resolver services.IQueryResolver, logger zerolog.Logger) *PriceHandler {
	return &PriceHandler{
		resolver: resolver,
		logger:   logger.With().Str("component", "price_handler").Logger(),
	}
}

func (h *PriceHandler) List(c *gin.Context) {
	records, err := h.resolver.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *PriceHandler) Get(c *gin.Context) {
	symbol := c.Param("symbol")

	record, err := h.resolver.Lookup(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "No data available for " + strings.ToUpper(symbol)})
			return
		}
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *PriceHandler) Quotes(c *gin.Context) {
	var inputs []string
	for _, part := range strings.Split(c.Query("symbols"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			inputs = append(inputs, part)
		}
	}

	records, err := h.resolver.LookupMany(c.Request.Context(), inputs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *PriceHandler) History(c *gin.Context) {
	days := services.DefaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: domain.ErrInvalidDays.Error()})
			return
		}
		days = n
	}

	points, err := h.resolver.History(c.Request.Context(), c.Param("symbol"), days)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, points)
}
