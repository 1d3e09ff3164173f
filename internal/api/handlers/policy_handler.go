package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/service"
)

type PolicyHandler struct {
	service *service.OptimizationService
}

func NewPolicyHandler(service *service.OptimizationService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

func parseProductID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product_id"})
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func (h *PolicyHandler) GetActivePolicy(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	policy, err := h.service.GetActivePolicy(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active policy"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch policy", "details": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active policy"})
		return
	}

	c.JSON(http.StatusOK, policy)
}

func (h *PolicyHandler) GetPolicyHistory(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	history, err := h.service.GetPolicyHistory(c.Request.Context(), productID, parseLimit(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch policy history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policies": history,
		"total":    len(history),
	})
}

func (h *PolicyHandler) GetProductState(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	state, err := h.service.GetProductState(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientHistory) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history", "details": err.Error()})
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to featurize product", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, state)
}
