package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/service"
)

type OptimizeHandler struct {
	service *service.OptimizationService
}

func NewOptimizeHandler(service *service.OptimizationService) *OptimizeHandler {
	return &OptimizeHandler{service: service}
}

func (h *OptimizeHandler) ListProducts(c *gin.Context) {
	products, err := h.service.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch products", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    len(products),
	})
}

// TriggerStrategic forces a strategic re-optimization out of cadence.
func (h *OptimizeHandler) TriggerStrategic(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	policy, err := h.service.TriggerStrategic(c.Request.Context(), productID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientHistory):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history", "details": err.Error()})
		case errors.Is(err, domain.ErrPolicyVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "policy version conflict", "details": err.Error()})
		case errors.Is(err, domain.ErrOptimizationFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "optimization failed", "details": err.Error()})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "strategic run failed", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, policy)
}

// TriggerTactical runs one tactical control cycle and returns the action.
func (h *OptimizeHandler) TriggerTactical(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	action, err := h.service.TriggerTactical(c.Request.Context(), productID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientHistory):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history", "details": err.Error()})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tactical run failed", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, action)
}

func (h *OptimizeHandler) GetRecentActions(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	actions, err := h.service.GetRecentActions(c.Request.Context(), productID, parseLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch actions", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"total":   len(actions),
	})
}

// GetSummary returns the portfolio rollup, optionally scoped by
// ?product_ids=1,2,3 and ?category=.
func (h *OptimizeHandler) GetSummary(c *gin.Context) {
	filter := domain.SummaryFilter{
		Category:    strings.TrimSpace(c.Query("category")),
		RecentLimit: parseLimit(c, 20),
	}
	if raw := strings.TrimSpace(c.Query("product_ids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product_ids"})
				return
			}
			filter.ProductIDs = append(filter.ProductIDs, id)
		}
	}

	summary, err := h.service.GetPortfolioSummary(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *OptimizeHandler) GetMetrics(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	metricType := domain.MetricType(strings.TrimSpace(c.Query("type")))
	metrics, err := h.service.GetMetrics(c.Request.Context(), productID, metricType, parseLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch metrics", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": metrics,
		"total":   len(metrics),
	})
}
