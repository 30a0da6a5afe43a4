//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountLifecycle(t *testing.T) {
	server, logs := newTestServer(t)
	api := server.URL + "/api/v1/auth"

	registerResp := doJSON(t, http.MethodPost, api+"/register", map[string]string{
		"username":   "alice",
		"email":      "alice@example.com",
		"password":   "Str0ng!Pass",
		"password2":  "Str0ng!Pass",
		"first_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, registerResp.StatusCode)

	duplicate := doJSON(t, http.MethodPost, api+"/register", map[string]string{
		"username":  "ALICE",
		"email":     "other@example.com",
		"password":  "Str0ng!Pass",
		"password2": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusBadRequest, duplicate.StatusCode)
	env := decode(t, duplicate, nil)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "username")

	resp, pair := login(t, server.URL, "alice", "Str0ng!Pass")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	profileResp := doAuthJSONRequest(t, http.MethodGet, api+"/profile", nil, pair.Access)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)
	var profile struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
	}
	decode(t, profileResp, &profile)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "Alice", profile.FirstName)

	updateResp := doAuthJSONRequest(t, http.MethodPatch, api+"/profile", map[string]string{"last_name": "Liddell"}, pair.Access)
	require.Equal(t, http.StatusOK, updateResp.StatusCode)

	changeResp := doAuthJSONRequest(t, http.MethodPut, api+"/change-password", map[string]string{
		"old_password": "Str0ng!Pass",
		"new_password": "Chang3d!Pass",
	}, pair.Access)
	require.Equal(t, http.StatusOK, changeResp.StatusCode)

	// Changing the password drops every refresh token issued before it.
	refreshResp := doJSON(t, http.MethodPost, api+"/token/refresh", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, refreshResp.StatusCode)

	oldLogin, _ := login(t, server.URL, "alice", "Str0ng!Pass")
	assert.Equal(t, http.StatusUnauthorized, oldLogin.StatusCode)

	resetResp := doJSON(t, http.MethodPost, api+"/password-reset", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resetResp.StatusCode)

	uid, token := logs.lastResetLink(t)
	confirmURL := api + "/password-reset-confirm/" + uid + "/" + token + "/"

	confirmResp := doJSON(t, http.MethodPost, confirmURL, map[string]string{"new_password": "R3set!Pass"})
	require.Equal(t, http.StatusOK, confirmResp.StatusCode)

	replay := doJSON(t, http.MethodPost, confirmURL, map[string]string{"new_password": "An0ther!Pass"})
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)

	staleLogin, _ := login(t, server.URL, "alice", "Chang3d!Pass")
	assert.Equal(t, http.StatusUnauthorized, staleLogin.StatusCode)

	finalLogin, _ := login(t, server.URL, "alice", "R3set!Pass")
	assert.Equal(t, http.StatusOK, finalLogin.StatusCode)
}

func TestRefreshRotationAndLogout(t *testing.T) {
	server, _ := newTestServer(t)
	api := server.URL + "/api/v1/auth"

	resp := doJSON(t, http.MethodPost, api+"/register", map[string]string{
		"username":  "bob",
		"email":     "bob@example.com",
		"password":  "Str0ng!Pass",
		"password2": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, pair := login(t, server.URL, "bob", "Str0ng!Pass")

	rotated := doJSON(t, http.MethodPost, api+"/token/refresh", map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, rotated.StatusCode)
	var next tokenPair
	decode(t, rotated, &next)
	require.NotEqual(t, pair.Refresh, next.Refresh)

	reused := doJSON(t, http.MethodPost, api+"/token/refresh", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, reused.StatusCode)

	logoutResp := doAuthJSONRequest(t, http.MethodPost, api+"/logout", map[string]string{"refresh": next.Refresh}, next.Access)
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)

	afterLogout := doJSON(t, http.MethodPost, api+"/token/refresh", map[string]string{"refresh": next.Refresh})
	assert.Equal(t, http.StatusUnauthorized, afterLogout.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, mustNewRequest(t, http.MethodGet, server.URL+"/api/v1/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, newAuthRequest(t, http.MethodGet, server.URL+"/api/v1/auth/profile", nil, "not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	health := doRequest(t, mustNewRequest(t, http.MethodGet, server.URL+"/health", nil))
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
