package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkosyakov/authcore/internal/rbac"
	"github.com/mkosyakov/authcore/internal/repository/postgres"
	"github.com/mkosyakov/authcore/internal/service/auth"
	"github.com/mkosyakov/authcore/internal/testutil"
)

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with the production service wired on a rolled-back tx
	withServer := func(t *testing.T, fn func(url string, s *auth.Service)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			userRepo := &postgres.UserRepo{DB: tx}
			refreshRepo := &postgres.RefreshTokenRepo{DB: tx}
			grantRepo := &postgres.GrantRepo{DB: tx}

			c, _ := testutil.StartCache(t, time.Minute)

			resolver, err := rbac.NewResolver(rbac.DefaultTable(), grantRepo)
			require.NoError(t, err)

			tokens, err := auth.NewTokenManager(
				auth.TokenManagerConfig{
					SecretKey: "test-secret-key",
					Issuer:    "authcore",
					Audience:  "authcore-clients",
				},
				refreshRepo,
				auth.CachedUserSource{Cache: c, Users: userRepo},
				c,
				nil,
			)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := auth.NewService(auth.Config{}, tokens, userRepo, resolver, c, nil)
			require.NoError(t, err, "auth service should be created without errors")

			srv := httptest.NewServer(NewRouter(s, RouterConfig{}, nil))
			defer srv.Close()

			fn(srv.URL, s)
		})
	}

	postJSON := func(t *testing.T, url string, data string, bearer string) (*http.Response, string) {
		t.Helper()

		req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(data))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		return resp, string(body)
	}

	t.Run("register ok", func(t *testing.T) {
		withServer(t, func(url string, _ *auth.Service) {
			data := `{"email": "operator@example.com", "password": "StrongEnoughPassword"}`
			resp, body := postJSON(t, url+"/auth/register", data, "")

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var pair TokenPairResponse
			require.NoError(t, json.Unmarshal([]byte(body), &pair))
			assert.NotEmpty(t, pair.AccessToken, "access token should not be empty")
			assert.NotEmpty(t, pair.RefreshToken, "refresh token should not be empty")
			assert.InDelta(t, (15 * time.Minute).Seconds(), pair.ExpiresIn, 2, "expiresIn should be the access TTL")
		})
	})

	t.Run("register existed user fails", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			_, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"email": "operator@example.com", "password": "StrongEnoughPassword"}`
			resp, body := postJSON(t, url+"/auth/register", data, "")

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, body)
		})
	})

	t.Run("register validation", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"bad email", `{"email": "not-an-email", "password": "StrongEnoughPassword"}`},
			{"short password", `{"email": "operator@example.com", "password": "short"}`},
			{"missing fields", `{}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withServer(t, func(url string, _ *auth.Service) {
					resp, body := postJSON(t, url+"/auth/register", tt.data, "")

					require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
					assert.Contains(t, body, "validation_failed")
				})
			})
		}
	})

	t.Run("login ok", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			_, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"email": "operator@example.com", "password": "StrongEnoughPassword"}`
			resp, body := postJSON(t, url+"/auth/login", data, "")

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var pair TokenPairResponse
			require.NoError(t, json.Unmarshal([]byte(body), &pair))
			assert.NotEmpty(t, pair.AccessToken)
			assert.NotEmpty(t, pair.RefreshToken)
		})
	})

	t.Run("login failures look identical", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"wrong password", `{"email": "operator@example.com", "password": "WrongPassword"}`},
			{"unknown email", `{"email": "nobody@example.com", "password": "StrongEnoughPassword"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withServer(t, func(url string, s *auth.Service) {
					_, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
					require.NoError(t, err)

					resp, body := postJSON(t, url+"/auth/login", tt.data, "")

					require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
					require.JSONEq(t, `
						{
							"error": "service_error",
							"message": "Invalid email or password"
						}`, body)
				})
			})
		}
	})

	t.Run("refresh ok", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			initial, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"refreshToken": "` + initial.Refresh.Value + `"}`
			resp, body := postJSON(t, url+"/auth/refresh", data, "")

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var pair TokenPairResponse
			require.NoError(t, json.Unmarshal([]byte(body), &pair))
			assert.NotEqual(t, initial.Access.Value, pair.AccessToken, "access token should be changed after refresh")
			assert.NotEqual(t, initial.Refresh.Value, pair.RefreshToken, "refresh token should be changed after refresh")
		})
	})

	t.Run("refresh failures look identical", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			initial, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			// Spend the token once
			data := `{"refreshToken": "` + initial.Refresh.Value + `"}`
			resp, body := postJSON(t, url+"/auth/refresh", data, "")
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			// Replaying it and presenting garbage must be indistinguishable
			for _, payload := range []string{
				data,
				`{"refreshToken": "never-issued"}`,
			} {
				resp, body := postJSON(t, url+"/auth/refresh", payload, "")

				require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Invalid refresh token"
					}`, body)
			}
		})
	})

	t.Run("logout then refresh fails", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			pair, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"refreshToken": "` + pair.Refresh.Value + `"}`
			resp, body := postJSON(t, url+"/auth/logout", data, pair.Access.Value)
			require.Equalf(t, http.StatusNoContent, resp.StatusCode, "not expected code. Body: %s", body)

			resp, _ = postJSON(t, url+"/auth/refresh", data, "")
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			// Logout again is fine
			resp, body = postJSON(t, url+"/auth/logout", data, "")
			require.Equalf(t, http.StatusNoContent, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("me", func(t *testing.T) {
		t.Run("with bearer ok", func(t *testing.T) {
			withServer(t, func(url string, s *auth.Service) {
				pair, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				req, err := http.NewRequest(http.MethodGet, url+"/auth/me", nil)
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+pair.Access.Value)

				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				_ = resp.Body.Close()

				require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
				assert.Contains(t, string(body), `"email":"operator@example.com"`)
				assert.Contains(t, string(body), `"role":"field_operator"`)
				assert.Contains(t, string(body), "view_mission")
			})
		})

		t.Run("without bearer unauthorized", func(t *testing.T) {
			withServer(t, func(url string, _ *auth.Service) {
				resp, err := http.Get(url + "/auth/me")
				require.NoError(t, err)
				_ = resp.Body.Close()

				require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			})
		})
	})

	t.Run("logout-all kills outstanding access tokens", func(t *testing.T) {
		withServer(t, func(url string, s *auth.Service) {
			pair, err := s.Register(t.Context(), "operator@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			resp, body := postJSON(t, url+"/auth/logout-all", "", pair.Access.Value)
			require.Equalf(t, http.StatusNoContent, resp.StatusCode, "not expected code. Body: %s", body)

			req, err := http.NewRequest(http.MethodGet, url+"/auth/me", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+pair.Access.Value)

			resp, err = http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "pre-logout token must be dead")
		})
	})

	t.Run("metrics exposed", func(t *testing.T) {
		withServer(t, func(url string, _ *auth.Service) {
			resp, err := http.Get(url + "/metrics")
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			_ = resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), "go_goroutines", "default collectors should be registered")
		})
	})
}
