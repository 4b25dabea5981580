package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wshchocolatine/ake-api/internal/crypto"
	"github.com/wshchocolatine/ake-api/internal/kv"
	"github.com/wshchocolatine/ake-api/internal/middleware"
	"github.com/wshchocolatine/ake-api/internal/mocks"
	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/repositories"
	"github.com/wshchocolatine/ake-api/internal/session"
	"github.com/wshchocolatine/ake-api/internal/token"
)

type authFixture struct {
	router   *gin.Engine
	users    *mocks.UserRepositoryMock
	sessions *session.Store
	tokens   *token.Service
}

func newAuthFixture(authedUserID, authedSessionID string) *authFixture {
	gin.SetMode(gin.TestMode)
	store := kv.NewMemoryStore()
	fixture := &authFixture{
		users:    new(mocks.UserRepositoryMock),
		sessions: session.NewStore(store, time.Hour),
		tokens:   token.NewService(store),
	}
	handler := NewAuthHandler(fixture.users, fixture.sessions, fixture.tokens, nil)

	fixture.router = gin.New()
	fixture.router.POST("/register", handler.Register)
	fixture.router.POST("/login", handler.Login)

	authed := fixture.router.Group("/", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, authedUserID)
		c.Set(middleware.SessionIDKey, authedSessionID)
		c.Next()
	})
	authed.GET("/logout", handler.Logout)
	authed.POST("/password", handler.ChangePassword)
	authed.GET("/user/token", handler.SocketToken)
	return fixture
}

// registeredUser builds a stored user whose password is "password-123".
func registeredUser(t *testing.T) models.User {
	t.Helper()
	_, privatePEM := testKeyPair(t)
	sealed, err := crypto.EncryptPrivateKey(privatePEM, "password-123")
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("password-123"), bcrypt.MinCost)
	require.NoError(t, err)
	return models.User{
		ID:                  "u-1",
		Username:            "alice",
		Tag:                 4821,
		Email:               "alice@example.com",
		PasswordHash:        string(hash),
		PrivateKeyEncrypted: sealed,
	}
}

func TestRegisterCreatesAccountAndSession(t *testing.T) {
	fixture := newAuthFixture("", "")
	fixture.users.On("CreateUser", mock.Anything, mock.MatchedBy(func(user models.User) bool {
		return user.Username == "alice" &&
			user.Email == "alice@example.com" &&
			user.PublicKey != "" &&
			user.PrivateKeyEncrypted != "" &&
			user.PasswordHash != "password-123"
	})).Return(models.User{ID: "u-1", Username: "alice", Tag: 4821}, nil)

	recorder := performJSON(fixture.router, http.MethodPost, "/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password-123",
	})

	require.Equal(t, http.StatusCreated, recorder.Code)
	var body struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Tag      int    `json:"tag"`
		Token    string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body.UserID)
	assert.Equal(t, 4821, body.Tag)

	sess, err := fixture.sessions.Get(context.Background(), body.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Contains(t, sess.PrivateKey, "PRIVATE KEY")
}

func TestRegisterConflict(t *testing.T) {
	fixture := newAuthFixture("", "")
	fixture.users.On("CreateUser", mock.Anything, mock.Anything).
		Return(models.User{}, repositories.ErrUserConflict)

	recorder := performJSON(fixture.router, http.MethodPost, "/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password-123",
	})

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestLoginOpensSessionWithPrivateKey(t *testing.T) {
	fixture := newAuthFixture("", "")
	fixture.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(registeredUser(t), nil)

	recorder := performJSON(fixture.router, http.MethodPost, "/login", gin.H{
		"email":    "alice@example.com",
		"password": "password-123",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))

	sess, err := fixture.sessions.Get(context.Background(), body["token"])
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Contains(t, sess.PrivateKey, "PRIVATE KEY")
}

func TestLoginFailuresAreUniform(t *testing.T) {
	fixture := newAuthFixture("", "")
	fixture.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(registeredUser(t), nil)
	fixture.users.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(models.User{}, repositories.ErrUserNotFound)

	wrongPassword := performJSON(fixture.router, http.MethodPost, "/login", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	unknownEmail := performJSON(fixture.router, http.MethodPost, "/login", gin.H{
		"email":    "ghost@example.com",
		"password": "password-123",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLogoutDestroysSession(t *testing.T) {
	store := kv.NewMemoryStore()
	sessions := session.NewStore(store, time.Hour)
	sessionID, err := sessions.Create(context.Background(), session.Session{UserID: "u-1", PrivateKey: "secret"})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(new(mocks.UserRepositoryMock), sessions, token.NewService(store), nil)
	router := gin.New()
	router.GET("/logout", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "u-1")
		c.Set(middleware.SessionIDKey, sessionID)
	}, handler.Logout)

	recorder := performJSON(router, http.MethodGet, "/logout", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	_, err = sessions.Get(context.Background(), sessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestChangePasswordResealsPrivateKey(t *testing.T) {
	fixture := newAuthFixture("u-1", "s-1")
	user := registeredUser(t)
	fixture.users.On("GetByID", mock.Anything, "u-1").Return(user, nil)
	fixture.users.On("UpdatePassword", mock.Anything, "u-1", mock.Anything, mock.MatchedBy(func(sealed string) bool {
		recovered, err := crypto.DecryptPrivateKey(sealed, "new-password-456")
		if err != nil {
			return false
		}
		original, decErr := crypto.DecryptPrivateKey(user.PrivateKeyEncrypted, "password-123")
		return decErr == nil && recovered == original
	})).Return(nil)

	recorder := performJSON(fixture.router, http.MethodPost, "/password", gin.H{
		"old_password": "password-123",
		"new_password": "new-password-456",
	})

	assert.Equal(t, http.StatusOK, recorder.Code)
	fixture.users.AssertExpectations(t)
}

func TestChangePasswordRejectsWrongOldPassword(t *testing.T) {
	fixture := newAuthFixture("u-1", "s-1")
	fixture.users.On("GetByID", mock.Anything, "u-1").Return(registeredUser(t), nil)

	recorder := performJSON(fixture.router, http.MethodPost, "/password", gin.H{
		"old_password": "not-the-password",
		"new_password": "new-password-456",
	})

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	fixture.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSocketTokenAuthenticatesOnce(t *testing.T) {
	fixture := newAuthFixture("u-1", "s-1")

	recorder := performJSON(fixture.router, http.MethodGet, "/user/token", nil)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var body struct {
		Data token.OpaqueToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)

	_, err := fixture.tokens.Authenticate(context.Background(), body.Data.Token, "u-1")
	require.NoError(t, err)
	_, err = fixture.tokens.Authenticate(context.Background(), body.Data.Token, "u-1")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
