package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/invitations"
	"github.com/ItsMariusBC/TrainStats/pkg/journeys"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/realtime"
	"github.com/ItsMariusBC/TrainStats/pkg/sweeper"
)

type testEnv struct {
	server *Server
	repo   *db.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 0, ReadTimeout: 5, WriteTimeout: 5, IdleTimeout: 5},
		Database: config.DatabaseConfig{
			Driver:          "sqlite",
			Database:        filepath.Join(t.TempDir(), "test.db"),
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 300,
		},
		Security: config.SecurityConfig{
			SessionSecret:       "test-session-secret",
			SessionCookieName:   "trainstats_session",
			SessionCookieSecure: false,
			SessionMaxAgeDays:   7,
			TicketSecret:        "test-ticket-secret",
			TicketExpiryMinutes: 5,
			BcryptCost:          bcrypt.MinCost,
			AllowedOrigins:      "http://localhost:3000",
			RateLimitEnabled:    false,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"},
	}

	database, err := db.New(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	logger, err := log.New(&cfg.Logging)
	require.NoError(t, err)

	hub := realtime.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	repo := db.NewRepository(database)
	journeySvc := journeys.NewService(repo, hub, logger)
	invitationSvc := invitations.NewService(repo, logger, bcrypt.MinCost)
	sweepManager := sweeper.NewManager(cfg, journeySvc, logger)

	server, err := New(cfg, database, logger, hub, journeySvc, invitationSvc, sweepManager)
	require.NoError(t, err)

	return &testEnv{server: server, repo: repo}
}

func (e *testEnv) createUser(t *testing.T, email, password string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Email: email, Name: email, Password: string(hash), Role: role}
	require.NoError(t, e.repo.CreateUser(user))
	return user
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email": "admin@example.com", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email": "nobody@example.com", "password": "supersecret",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookies := env.login(t, "admin@example.com", "supersecret")

	rec = env.do(t, http.MethodGet, "/api/auth/me", nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin@example.com")
}

func TestRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/journeys", "/api/users/profile", "/api/ws/ticket", "/api/admin/invites"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminAreaForbiddenForUsers(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "supersecret", models.RoleUser)
	cookies := env.login(t, "user@example.com", "supersecret")

	for _, path := range []string{"/api/admin/journeys", "/api/admin/invites", "/api/admin/family-code", "/api/admin/users"} {
		rec := env.do(t, http.MethodGet, path, nil, cookies)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestJourneyEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)
	cookies := env.login(t, "admin@example.com", "supersecret")

	start := time.Now().UTC().Add(time.Hour)
	rec := env.do(t, http.MethodPost, "/api/journeys", gin.H{
		"title":      "Paris to Lyon",
		"start_date": start.Format(time.RFC3339),
		"stops": []gin.H{
			{"name": "Paris Gare de Lyon", "time": start.Format(time.RFC3339)},
			{"name": "Lyon Part-Dieu", "time": start.Add(2 * time.Hour).Format(time.RFC3339)},
		},
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data models.Journey `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.Data.ID)

	rec = env.do(t, http.MethodGet, "/api/journeys", nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris to Lyon")

	rec = env.do(t, http.MethodGet, "/api/journeys/999999", nil, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/journeys/abc", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/journeys/"+itoa(created.Data.ID)+"/position", gin.H{
		"current_stop": 1,
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.StatusCompleted))
}

func TestAdminJourneyAdvance(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)
	cookies := env.login(t, "admin@example.com", "supersecret")

	start := time.Now().UTC().Add(time.Hour)
	rec := env.do(t, http.MethodPost, "/api/admin/journeys", gin.H{
		"title":      "Marseille to Nice",
		"start_date": start.Format(time.RFC3339),
		"stops": []gin.H{
			{"name": "Marseille Saint-Charles", "time": start.Format(time.RFC3339)},
			{"name": "Toulon", "time": start.Add(time.Hour).Format(time.RFC3339)},
			{"name": "Nice Ville", "time": start.Add(2 * time.Hour).Format(time.RFC3339)},
		},
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data models.Journey `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := "/api/admin/journeys/" + itoa(created.Data.ID)

	// Advance past every stop; the last advance completes the journey.
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPatch, path, gin.H{"next_stop": true}, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), string(models.StatusOngoing))
	}
	rec = env.do(t, http.MethodPatch, path, gin.H{"next_stop": true}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.StatusCompleted))

	// Past the last stop there is nothing left to advance.
	rec = env.do(t, http.MethodPatch, path, gin.H{"next_stop": true}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSweeperSettingsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)
	env.createUser(t, "user@example.com", "supersecret", models.RoleUser)

	userCookies := env.login(t, "user@example.com", "supersecret")
	rec := env.do(t, http.MethodPatch, "/api/journeys", gin.H{"auto_update_enabled": false}, userCookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminCookies := env.login(t, "admin@example.com", "supersecret")
	rec = env.do(t, http.MethodPatch, "/api/journeys", gin.H{
		"auto_update_enabled":    true,
		"check_interval_seconds": 5,
	}, adminCookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "check_interval_seconds")

	rec = env.do(t, http.MethodPatch, "/api/journeys", gin.H{"check_interval_seconds": 0}, adminCookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWSTicketIssued(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "supersecret", models.RoleUser)
	cookies := env.login(t, "user@example.com", "supersecret")

	rec := env.do(t, http.MethodGet, "/api/ws/ticket", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticket")

	// The websocket endpoint rejects missing and bogus tickets.
	rec = env.do(t, http.MethodGet, "/api/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ws?ticket=bogus", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInviteListPagination(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)
	cookies := env.login(t, "admin@example.com", "supersecret")

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/admin/invites", gin.H{"role": "USER"}, cookies)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/admin/invites?page=1&limit=2", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Invitation `json:"data"`
		Meta struct {
			Page       int  `json:"page"`
			Limit      int  `json:"limit"`
			TotalCount int  `json:"total_count"`
			TotalPages int  `json:"total_pages"`
			HasNext    bool `json:"has_next"`
			HasPrev    bool `json:"has_prev"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 3, resp.Meta.TotalCount)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.True(t, resp.Meta.HasNext)
	assert.False(t, resp.Meta.HasPrev)

	rec = env.do(t, http.MethodGet, "/api/admin/invites?page=2&limit=2", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.True(t, resp.Meta.HasPrev)

	rec = env.do(t, http.MethodGet, "/api/admin/users?limit=1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_count")
}

func TestRegisterWithFamilyCode(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", "supersecret", models.RoleAdmin)
	cookies := env.login(t, "admin@example.com", "supersecret")

	rec := env.do(t, http.MethodGet, "/api/admin/family-code", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.Invitation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)

	rec = env.do(t, http.MethodGet, "/api/register/check-invitation?token="+resp.Data.Token, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The signup form relies on the family-code flag and the remaining uses.
	var check struct {
		Data struct {
			Valid        bool       `json:"valid"`
			IsFamilyCode bool       `json:"is_family_code"`
			UsesLeft     int        `json:"uses_left"`
			ExpiresAt    *time.Time `json:"expires_at"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.True(t, check.Data.Valid)
	assert.True(t, check.Data.IsFamilyCode)
	assert.Equal(t, resp.Data.UsesLeft, check.Data.UsesLeft)
	require.NotNil(t, check.Data.ExpiresAt)
	assert.Equal(t, 2099, check.Data.ExpiresAt.Year())

	rec = env.do(t, http.MethodPost, "/api/register/"+resp.Data.Token, gin.H{
		"name": "Cousin", "email": "cousin@example.com", "password": "supersecret",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The new account can log in.
	env.login(t, "cousin@example.com", "supersecret")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
