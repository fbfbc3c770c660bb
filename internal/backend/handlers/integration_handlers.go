package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hubconnect/internal/backend/middleware"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/services"
)

// refParam is the path segment after the route prefix. Provider routes read
// it as a provider slug, connection routes as a connection id.
const refParam = "ref"

type IntegrationHandler struct {
	connections  *services.ConnectionService
	oauthEnabled map[models.ProviderKind]bool
	logger       *zap.Logger
}

// NewIntegrationHandler serves the integration API. Only providers listed in
// oauthProviders accept the OAuth routes; manual setup works for all.
func NewIntegrationHandler(connections *services.ConnectionService, oauthProviders []models.ProviderKind, logger *zap.Logger) *IntegrationHandler {
	enabled := make(map[models.ProviderKind]bool, len(oauthProviders))
	for _, kind := range oauthProviders {
		enabled[kind] = true
	}
	return &IntegrationHandler{
		connections:  connections,
		oauthEnabled: enabled,
		logger:       logger.Named("http"),
	}
}

func (h *IntegrationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/stats", h.Statistics)
	rg.GET("/events", h.Events)

	rg.GET("/:ref/auth-url", h.AuthURL)
	rg.POST("/:ref/callback", h.Callback)
	rg.POST("/:ref/manual", h.ManualSetup)
	rg.POST("/:ref/validate", h.ValidateToken)

	rg.GET("/:ref", h.Get)
	rg.PATCH("/:ref/toggle", h.Toggle)
	rg.POST("/:ref/revalidate", h.Revalidate)
	rg.PUT("/:ref/settings", h.UpdateSettings)
	rg.POST("/:ref/rotate", h.RotateToken)
	rg.DELETE("/:ref", h.Disconnect)
}

type callbackRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}

type manualSetupRequest struct {
	Token    string `json:"token" binding:"required"`
	BotToken string `json:"botToken"`

	AccountID   string `json:"accountId"`
	SlackUserID string `json:"slackUserId"`
	WorkspaceID string `json:"workspaceId"`
	TeamID      string `json:"teamId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	BaseURL     string `json:"baseUrl"`

	Settings json.RawMessage `json:"settings"`
}

type tokenRequest struct {
	Token   string `json:"token" binding:"required"`
	BaseURL string `json:"baseUrl"`
}

func (h *IntegrationHandler) AuthURL(c *gin.Context) {
	kind, ok := h.oauthProvider(c)
	if !ok {
		return
	}

	state := c.Query("state")
	if state == "" {
		state = uuid.NewString()
	}

	authURL, err := h.connections.BuildAuthorizationURL(kind, state)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := middleware.SetSessionValue(c, middleware.OAuthStateKey(kind), state); err != nil {
		h.logger.Error("Failed to store OAuth state in session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse("failed to initialize OAuth flow"))
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
		"authUrl":  authURL,
		"provider": kind,
		"state":    state,
	}))
}

func (h *IntegrationHandler) Callback(c *gin.Context) {
	kind, ok := h.oauthProvider(c)
	if !ok {
		return
	}

	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code is required")
		return
	}

	stateKey := middleware.OAuthStateKey(kind)
	if pending := middleware.GetSessionString(c, stateKey); pending != "" {
		if pending != req.State {
			badRequest(c, "OAuth state mismatch")
			return
		}
		if err := middleware.DeleteSessionValue(c, stateKey); err != nil {
			h.logger.Warn("Failed to clear OAuth state", zap.Error(err))
		}
	}

	view, err := h.connections.ConnectViaOAuth(c.Request.Context(), middleware.CurrentUserID(c), kind, req.Code, req.RedirectURI)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(view))
}

func (h *IntegrationHandler) ManualSetup(c *gin.Context) {
	kind, ok := h.provider(c)
	if !ok {
		return
	}

	var req manualSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	setup := services.ManualSetupRequest{
		Token:       req.Token,
		BotToken:    req.BotToken,
		AccountID:   firstNonEmpty(req.AccountID, req.SlackUserID),
		WorkspaceID: firstNonEmpty(req.WorkspaceID, req.TeamID),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		BaseURL:     req.BaseURL,
	}
	if len(req.Settings) > 0 && string(req.Settings) != "null" {
		setup.Settings = string(req.Settings)
	}

	view, err := h.connections.ConnectManually(c.Request.Context(), middleware.CurrentUserID(c), kind, setup)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse(view))
}

func (h *IntegrationHandler) ValidateToken(c *gin.Context) {
	kind, ok := h.provider(c)
	if !ok {
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	result, err := h.connections.ValidateToken(c.Request.Context(), middleware.CurrentUserID(c), kind, req.Token, req.BaseURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(result))
}

func (h *IntegrationHandler) List(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "active must be a boolean")
			return
		}
		activeOnly = parsed
	}

	views, err := h.connections.List(c.Request.Context(), middleware.CurrentUserID(c), activeOnly)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponseWithMeta(views, &models.Meta{Total: len(views)}))
}

func (h *IntegrationHandler) Statistics(c *gin.Context) {
	stats, err := h.connections.Statistics(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(stats))
}

func (h *IntegrationHandler) Events(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			badRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := h.connections.Events(c.Request.Context(), middleware.CurrentUserID(c), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponseWithMeta(events, &models.Meta{Total: len(events), Limit: limit}))
}

func (h *IntegrationHandler) Get(c *gin.Context) {
	view, err := h.connections.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param(refParam))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(view))
}

func (h *IntegrationHandler) Toggle(c *gin.Context) {
	view, err := h.connections.Toggle(c.Request.Context(), middleware.CurrentUserID(c), c.Param(refParam))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(view))
}

func (h *IntegrationHandler) Revalidate(c *gin.Context) {
	connectionID := c.Param(refParam)
	valid, err := h.connections.Revalidate(c.Request.Context(), middleware.CurrentUserID(c), connectionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
		"id":    connectionID,
		"valid": valid,
	}))
}

// UpdateSettings takes the new settings document as the request body.
func (h *IntegrationHandler) UpdateSettings(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	view, err := h.connections.UpdateSettings(c.Request.Context(), middleware.CurrentUserID(c), c.Param(refParam), string(body))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(view))
}

func (h *IntegrationHandler) RotateToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	view, err := h.connections.RotateToken(c.Request.Context(), middleware.CurrentUserID(c), c.Param(refParam), req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(view))
}

func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	connectionID := c.Param(refParam)
	if err := h.connections.Disconnect(c.Request.Context(), middleware.CurrentUserID(c), connectionID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"id": connectionID}))
}

func (h *IntegrationHandler) provider(c *gin.Context) (models.ProviderKind, bool) {
	kind, err := models.ParseProviderKind(c.Param(refParam))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return kind, true
}

func (h *IntegrationHandler) oauthProvider(c *gin.Context) (models.ProviderKind, bool) {
	kind, ok := h.provider(c)
	if !ok {
		return "", false
	}
	if !h.oauthEnabled[kind] {
		badRequest(c, fmt.Sprintf("OAuth is not enabled for %s", kind.Title()))
		return "", false
	}
	return kind, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
