package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Register(ctx context.Context, in service.RegisterInput) (model.PublicUser, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.PublicUser), args.Error(1)
}

func (m *mockService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(model.TokenPair), args.Error(1)
}

func (m *mockService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(model.TokenPair), args.Error(1)
}

func (m *mockService) Logout(ctx context.Context, userID string, refreshToken string) error {
	return m.Called(ctx, userID, refreshToken).Error(0)
}

func (m *mockService) GetProfile(ctx context.Context, userID string) (model.PublicUser, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.PublicUser), args.Error(1)
}

func (m *mockService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (model.PublicUser, error) {
	args := m.Called(ctx, userID, update)
	return args.Get(0).(model.PublicUser), args.Error(1)
}

func (m *mockService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	return m.Called(ctx, userID, oldPassword, newPassword).Error(0)
}

func (m *mockService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockService) ConfirmPasswordReset(ctx context.Context, identifier string, token string, newPassword string) error {
	return m.Called(ctx, identifier, token, newPassword).Error(0)
}

var alice = model.PublicUser{ID: "u-1", Username: "alice", Email: "a@x.com"}

// testRouter mounts the handlers the way the application router does, with a fixed
// authenticated user standing in for RequireAuth.
func testRouter(svc *mockService) http.Handler {
	auth := NewAuthHandler(svc)
	profile := NewProfileHandler(svc)
	reset := NewPasswordResetHandler(svc)

	authenticated := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.ContextWithClaims(r.Context(), &model.AuthClaims{UserID: alice.ID, Username: alice.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	r := chi.NewRouter()
	r.Post("/auth/token", auth.Login)
	r.Post("/auth/token/refresh", auth.Refresh)
	r.Post("/auth/register", auth.Register)
	r.With(authenticated).Post("/auth/logout", auth.Logout)
	r.With(authenticated).Get("/auth/profile", profile.Get)
	r.With(authenticated).Patch("/auth/profile", profile.Update)
	r.With(authenticated).Put("/auth/change-password", profile.ChangePassword)
	r.Post("/auth/password-reset", reset.Request)
	r.Post("/auth/password-reset-confirm/{uid}/{token}", reset.Confirm)
	return r
}

func do(t *testing.T, h http.Handler, method string, path string, body string) (*httptest.ResponseRecorder, model.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestRegisterHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Register", mock.Anything, service.RegisterInput{
			Username: "alice", Email: "a@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
		}).Return(alice, nil)

		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/register",
			`{"username":"alice","email":"a@x.com","password":"Str0ng!Pass","password2":"Str0ng!Pass"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, map[string]any{"message": "User registered successfully"}, resp.Data)
		svc.AssertExpectations(t)
	})

	t.Run("struct validation reports json field names", func(t *testing.T) {
		svc := &mockService{}
		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/register",
			`{"username":"bad name!","email":"not-an-email","password":"x"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, apierror.CodeValidation, resp.Error.Code)
		assert.Contains(t, resp.Error.Fields, "username")
		assert.Contains(t, resp.Error.Fields, "email")
		assert.Equal(t, []string{"This field is required."}, resp.Error.Fields["password2"])
		svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})

	t.Run("conflict renders field map", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Register", mock.Anything, mock.Anything).
			Return(model.PublicUser{}, apierror.Conflict("username", "A user with that username already exists."))

		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/register",
			`{"username":"alice","email":"a@x.com","password":"Str0ng!Pass","password2":"Str0ng!Pass"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, []string{"A user with that username already exists."}, resp.Error.Fields["username"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, resp := do(t, testRouter(&mockService{}), http.MethodPost, "/auth/register", `{"username":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Login", mock.Anything, "alice", "Str0ng!Pass").Return(model.TokenPair{
			AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", ExpiresIn: 900, User: alice,
		}, nil)

		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/token", `{"username":"alice","password":"Str0ng!Pass"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a", data["access"])
		assert.Equal(t, "r", data["refresh"])
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("invalid credentials", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Login", mock.Anything, "alice", "nope").Return(model.TokenPair{}, apierror.InvalidCredentials())

		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/token", `{"username":"alice","password":"nope"}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apierror.CodeInvalidCredentials, resp.Error.Code)
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		svc := &mockService{}
		svc.On("Login", mock.Anything, "alice", "x").Return(model.TokenPair{}, errors.New("pq: connection refused"))

		rec, resp := do(t, testRouter(svc), http.MethodPost, "/auth/token", `{"username":"alice","password":"x"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, apierror.CodeInternal, resp.Error.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestRefreshAndLogoutHandlers(t *testing.T) {
	svc := &mockService{}
	svc.On("Refresh", mock.Anything, "r1").Return(model.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil)
	svc.On("Logout", mock.Anything, alice.ID, "r2").Return(nil)
	h := testRouter(svc)

	rec, _ := do(t, h, http.MethodPost, "/auth/token/refresh", `{"refresh":"r1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := do(t, h, http.MethodPost, "/auth/token/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Fields, "refresh")

	rec, _ = do(t, h, http.MethodPost, "/auth/logout", `{"refresh":"r2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestProfileHandlers(t *testing.T) {
	svc := &mockService{}
	first := "Alice"
	svc.On("GetProfile", mock.Anything, alice.ID).Return(alice, nil)
	svc.On("UpdateProfile", mock.Anything, alice.ID, model.ProfileUpdate{FirstName: &first}).
		Return(model.PublicUser{ID: alice.ID, Username: "alice", Email: "a@x.com", FirstName: "Alice"}, nil)
	h := testRouter(svc)

	rec, resp := do(t, h, http.MethodGet, "/auth/profile", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", resp.Data.(map[string]any)["username"])

	rec, resp = do(t, h, http.MethodPatch, "/auth/profile", `{"first_name":"Alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", resp.Data.(map[string]any)["first_name"])

	rec, resp = do(t, h, http.MethodPatch, "/auth/profile", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Fields, "email")

	svc.AssertExpectations(t)
}

func TestChangePasswordHandler(t *testing.T) {
	svc := &mockService{}
	svc.On("ChangePassword", mock.Anything, alice.ID, "wrong", "NewStr0ng!1").Return(apierror.WrongPassword())
	svc.On("ChangePassword", mock.Anything, alice.ID, "Str0ng!Pass", "NewStr0ng!1").Return(nil)
	h := testRouter(svc)

	rec, resp := do(t, h, http.MethodPut, "/auth/change-password", `{"old_password":"wrong","new_password":"NewStr0ng!1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"Wrong password."}, resp.Error.Fields["old_password"])

	rec, resp = do(t, h, http.MethodPut, "/auth/change-password", `{"old_password":"Str0ng!Pass","new_password":"NewStr0ng!1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "Password updated successfully"}, resp.Data)
}

func TestPasswordResetHandlers(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		setup      func(svc *mockService)
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name: "request sent",
			path: "/auth/password-reset",
			body: `{"email":"a@x.com"}`,
			setup: func(svc *mockService) {
				svc.On("RequestPasswordReset", mock.Anything, "a@x.com").Return(nil)
			},
			wantStatus: http.StatusOK,
			wantMsg:    "Password reset email sent",
		},
		{
			name: "request unknown email",
			path: "/auth/password-reset",
			body: `{"email":"nobody@x.com"}`,
			setup: func(svc *mockService) {
				svc.On("RequestPasswordReset", mock.Anything, "nobody@x.com").Return(apierror.NotFound("User not found", ""))
			},
			wantStatus: http.StatusNotFound,
			wantCode:   apierror.CodeNotFound,
		},
		{
			name: "request delivery failure",
			path: "/auth/password-reset",
			body: `{"email":"a@x.com"}`,
			setup: func(svc *mockService) {
				svc.On("RequestPasswordReset", mock.Anything, "a@x.com").
					Return(apierror.Delivery("Failed to send email", errors.New("smtp: 421")))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeDeliveryFailed,
		},
		{
			name: "confirm",
			path: "/auth/password-reset-confirm/dS0x/abc-123",
			body: `{"new_password":"NewStr0ng!1"}`,
			setup: func(svc *mockService) {
				svc.On("ConfirmPasswordReset", mock.Anything, "dS0x", "abc-123", "NewStr0ng!1").Return(nil)
			},
			wantStatus: http.StatusOK,
			wantMsg:    "Password has been reset",
		},
		{
			name: "confirm invalid link",
			path: "/auth/password-reset-confirm/dS0x/bad",
			body: `{"new_password":"NewStr0ng!1"}`,
			setup: func(svc *mockService) {
				svc.On("ConfirmPasswordReset", mock.Anything, "dS0x", "bad", "NewStr0ng!1").Return(apierror.InvalidLink())
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeInvalidLink,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			tt.setup(svc)

			rec, resp := do(t, testRouter(svc), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				assert.NotContains(t, rec.Body.String(), "smtp")
				return
			}
			assert.Equal(t, map[string]any{"message": tt.wantMsg}, resp.Data)
			svc.AssertExpectations(t)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(HealthCheck{Name: "db", Check: func(context.Context) error { return nil }}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	Health(HealthCheck{Name: "db", Check: func(context.Context) error { return errors.New("down") }}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
