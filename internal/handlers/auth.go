package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wshchocolatine/ake-api/internal/crypto"
	"github.com/wshchocolatine/ake-api/internal/middleware"
	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/repositories"
	"github.com/wshchocolatine/ake-api/internal/session"
	"github.com/wshchocolatine/ake-api/internal/telemetry"
	"github.com/wshchocolatine/ake-api/internal/token"
)

const socketTokenTTL = 10 * time.Minute

// AuthHandler manages registration, login and socket-token issuance.
type AuthHandler struct {
	users    repositories.UserRepository
	sessions *session.Store
	tokens   *token.Service
	audit    *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, sessions *session.Store, tokens *token.Service, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, tokens: tokens, audit: audit}
}

// Register creates an account: a fresh RSA keypair, the private key sealed
// under the password, the password hashed, and an authenticated session
// holding the decrypted private key.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required,max=25"`
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=8"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	publicKey, privateKey, err := crypto.GenerateKeyPair()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate keys"})
		return
	}
	sealedKey, err := crypto.EncryptPrivateKey(privateKey, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not protect private key"})
		return
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}

	description := req.Description
	if description == "" {
		description = "Hey!"
	}

	user, err := h.users.CreateUser(c.Request.Context(), models.User{
		ID:                  uuid.NewString(),
		Username:            req.Username,
		Email:               req.Email,
		PasswordHash:        string(passwordHash),
		PrivateKeyEncrypted: sealedKey,
		PublicKey:           publicKey,
		Description:         description,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrUserConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	sessionID, err := h.sessions.Create(c.Request.Context(), session.Session{UserID: user.ID, PrivateKey: privateKey})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}
	h.setSessionCookie(c, sessionID)

	h.audit.Emit(c.Request.Context(), "info", "user registered", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"tag":      user.Tag,
		"token":    sessionID,
	})
}

// Login verifies the password, recovers the private key and opens a session.
// Bad email, bad password and undecryptable key all answer the same way.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	privateKey, err := crypto.DecryptPrivateKey(user.PrivateKeyEncrypted, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sessionID, err := h.sessions.Create(c.Request.Context(), session.Session{UserID: user.ID, PrivateKey: privateKey})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}
	h.setSessionCookie(c, sessionID)

	h.audit.Emit(c.Request.Context(), "info", "user logged in", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, gin.H{"token": sessionID})
}

// Logout destroys the session; the session secret dies with it.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionIDKey)
	if err := h.sessions.Destroy(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close session"})
		return
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChangePassword re-hashes the password and re-encrypts the private key
// under the new password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	privateKey, err := crypto.DecryptPrivateKey(user.PrivateKeyEncrypted, req.OldPassword)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sealedKey, err := crypto.EncryptPrivateKey(privateKey, req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not protect private key"})
		return
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), userID, string(passwordHash), sealedKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update password"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info", "password changed", requestIDFromContext(c), &userID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SocketToken issues a single-use token authorizing one realtime connection.
func (h *AuthHandler) SocketToken(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	issued, err := h.tokens.Issue(c.Request.Context(), userID, socketTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": issued})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, sessionID string) {
	c.SetCookie(middleware.SessionCookie, sessionID, int((24 * time.Hour).Seconds()), "/", "", false, true)
}
