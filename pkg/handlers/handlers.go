package handlers

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/pkg/auth"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/service"
)

//go:embed static/*
var staticEmbed embed.FS

const (
	ctxUsername = "username"
	ctxUserID   = "userID"
	ctxKey      = "participantKey"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	Service *service.Service
	Store   *database.Store
	Auth    *auth.Authenticator
	Logger  *zap.Logger

	// Metrics is mounted on /metrics when set
	Metrics http.Handler
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	// Strip "Bearer " if present
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	}
	return token
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// ParticipantKeyMiddleware verifies a participant key using HMAC and
// rejects revoked keys
func (h *Handler) ParticipantKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Participant key required"})
			return
		}

		userID, err := h.Auth.VerifyParticipantKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid participant key signature"})
			return
		}

		// Fetch or create the key record to track use
		pk, err := h.Store.EnsureParticipantKey(c.Request.Context(), key, userID)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		if pk.Revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Participant key revoked"})
			return
		}
		if err := h.Store.TouchParticipantKey(c.Request.Context(), pk); err != nil {
			h.log().Warn("could not record key use", zap.String("user_id", userID), zap.Error(err))
		}

		c.Set(ctxKey, pk)
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.Store.FindAdmin(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Auth.CreateToken(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// bindError renders request binding failures, one message per invalid field
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg := "failed on '" + fe.Tag() + "'"
			if fe.Param() != "" {
				msg += " (" + fe.Param() + ")"
			}
			fields[fieldPath(fe.Namespace())] = msg
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// fieldPath drops the top-level struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// fail maps service and storage errors onto HTTP statuses
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotPublished):
		status = http.StatusForbidden
	case errors.Is(err, database.ErrConflict),
		errors.Is(err, service.ErrRoleInUse),
		errors.Is(err, service.ErrNoPreferences),
		errors.Is(err, service.ErrNoAssignments):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func actor(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

// Health reports that the server is up
func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.DB.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": fmt.Sprint(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdminInterface serves the admin web interface from embedded files
func (h *Handler) AdminInterface(c *gin.Context) {
	data, err := staticEmbed.ReadFile("static/index.html")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "static/index.html not found in embedded FS"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// GetStaticFS returns the embedded filesystem for static assets
func (h *Handler) GetStaticFS() http.FileSystem {
	sub, err := fs.Sub(staticEmbed, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
