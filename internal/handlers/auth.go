package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/luiggisao1/turbonote/internal/auth"
	"github.com/luiggisao1/turbonote/internal/config"
	"github.com/luiggisao1/turbonote/internal/metrics"
	"github.com/luiggisao1/turbonote/internal/security"
	"github.com/luiggisao1/turbonote/internal/storage"
	"github.com/luiggisao1/turbonote/internal/validation"
	"log/slog"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AuthStore is the slice of the storage layer the session handlers consume.
type AuthStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (*storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	RecordRefreshToken(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID, issuedAt, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenID uuid.UUID) (*storage.RefreshToken, error)
	BlacklistRefreshToken(ctx context.Context, tokenID uuid.UUID) (bool, error)
	BlacklistAllRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error)
}

type AuthHandler struct {
	Store      AuthStore
	Logger     *slog.Logger
	JWTSecret  []byte
	JWTIssuer  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Argon2     security.Argon2Params
	Identity   config.IdentityScheme
	Clock      Clock
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenPairResponse struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Access  string    `json:"access"`
	Refresh string    `json:"refresh"`
}

type accessResponse struct {
	Access string `json:"access"`
}

type detailResponse struct {
	Detail  string `json:"detail"`
	Revoked *int64 `json:"revoked,omitempty"`
}

type meResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func NewAuthHandler(store AuthStore, logger *slog.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		Store:      store,
		Logger:     logger,
		JWTSecret:  []byte(cfg.JWTSecret),
		JWTIssuer:  cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Argon2: security.Argon2Params{
			Memory:      cfg.Argon2.Memory,
			Iterations:  cfg.Argon2.Iterations,
			Parallelism: cfg.Argon2.Parallelism,
			SaltLength:  cfg.Argon2.SaltLength,
			KeyLength:   cfg.Argon2.KeyLength,
		},
		Identity: cfg.IdentityScheme,
		Clock:    systemClock{},
	}
}

func (h *AuthHandler) RegisterRoutes(r *gin.Engine, authenticated gin.HandlerFunc) {
	r.POST("/auth/register/", h.Register)
	r.POST("/auth/login/", h.Login)
	r.POST("/auth/logout/", h.Logout)
	r.POST("/auth/token/refresh/", h.Refresh)

	protected := r.Group("/", authenticated)
	protected.POST("/auth/logout_all/", h.LogoutAll)
	protected.GET("/auth/me/", h.Me)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid payload"})
		return
	}

	if errs := validation.ValidateCredentials(req.Email, req.Password); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "email and password are required", Fields: errs})
		return
	}

	passwordHash, err := security.HashPassword(req.Password, h.Argon2)
	if err != nil {
		h.Logger.Error("password hash failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	user, err := h.Store.CreateUser(c.Request.Context(), req.Email, h.usernameFor(req.Email), passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, errorResponse{Code: "DUPLICATE_EMAIL", Message: "user with this email already exists"})
			return
		}
		h.Logger.Error("user create failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	access, refresh, err := h.issuePair(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Error("token issue failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusCreated, tokenPairResponse{ID: user.ID, Email: user.Email, Access: access, Refresh: refresh})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid payload"})
		return
	}

	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "email and password are required"})
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// same answer as a wrong password, no enumeration signal
			c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"})
			return
		}
		h.Logger.Error("login lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"})
		return
	}

	access, refresh, err := h.issuePair(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Error("token issue failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, tokenPairResponse{ID: user.ID, Email: user.Email, Access: access, Refresh: refresh})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "refresh token is required"})
		return
	}

	tokenID, err := h.parseRefresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_TOKEN", Message: "invalid or expired refresh token"})
		return
	}

	// Logging out an already-blacklisted token is a success, not an error.
	newly, err := h.Store.BlacklistRefreshToken(c.Request.Context(), tokenID)
	if err != nil {
		h.Logger.Error("token blacklist failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	if newly {
		metrics.TokensRevoked.Inc()
	}

	c.JSON(http.StatusOK, detailResponse{Detail: "Logout successful"})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	count, err := h.Store.BlacklistAllRefreshTokens(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Error("blacklist all failed", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	metrics.TokensRevoked.Add(float64(count))

	// already-issued access tokens stay valid until they expire
	c.JSON(http.StatusOK, detailResponse{Detail: "Logout from all sessions successful", Revoked: &count})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "refresh token is required"})
		return
	}

	tokenID, err := h.parseRefresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "INVALID_TOKEN", Message: "invalid or expired refresh token"})
		return
	}

	token, err := h.Store.GetRefreshToken(c.Request.Context(), tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, errorResponse{Code: "INVALID_TOKEN", Message: "invalid or expired refresh token"})
			return
		}
		h.Logger.Error("refresh token lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	now := h.Clock.Now()
	if token.Blacklisted() || token.ExpiresAt.Before(now) {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "INVALID_TOKEN", Message: "invalid or expired refresh token"})
		return
	}

	access, err := security.NewAccessToken(token.UserID, h.JWTSecret, h.AccessTTL, now, h.JWTIssuer)
	if err != nil {
		h.Logger.Error("jwt sign failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	metrics.TokensIssued.WithLabelValues(security.TokenTypeAccess).Inc()

	c.JSON(http.StatusOK, accessResponse{Access: access})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	c.JSON(http.StatusOK, meResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

// issuePair mints an access/refresh pair and records the refresh token in the
// ledger. Each call creates exactly one ledger row; prior pairs stay valid.
func (h *AuthHandler) issuePair(ctx context.Context, userID uuid.UUID) (string, string, error) {
	now := h.Clock.Now()

	access, err := security.NewAccessToken(userID, h.JWTSecret, h.AccessTTL, now, h.JWTIssuer)
	if err != nil {
		return "", "", err
	}

	tokenID := uuid.New()
	refresh, err := security.NewRefreshToken(userID, tokenID, h.JWTSecret, h.RefreshTTL, now, h.JWTIssuer)
	if err != nil {
		return "", "", err
	}

	if err := h.Store.RecordRefreshToken(ctx, tokenID, userID, now, now.Add(h.RefreshTTL)); err != nil {
		return "", "", err
	}

	metrics.TokensIssued.WithLabelValues(security.TokenTypeAccess).Inc()
	metrics.TokensIssued.WithLabelValues(security.TokenTypeRefresh).Inc()
	return access, refresh, nil
}

// parseRefresh verifies a refresh token and returns its ledger id. Malformed,
// expired, foreign-signed, and wrong-type tokens all collapse to one error.
func (h *AuthHandler) parseRefresh(raw string) (uuid.UUID, error) {
	claims, err := security.ParseToken(raw, h.JWTSecret, security.TokenTypeRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, security.ErrInvalidToken
	}
	return tokenID, nil
}

func (h *AuthHandler) usernameFor(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if h.Identity == config.IdentityLocalPart {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
	}
	return email
}
