package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

func TestGitLab_Validate(t *testing.T) {
	g := NewGitLab(testLogger())

	t.Run("valid token reports the username", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v4/user", r.URL.Path)
			require.Equal(t, "glpat-test", r.Header.Get("PRIVATE-TOKEN"))
			fmt.Fprint(w, `{"username":"dev"}`)
		}))
		defer srv.Close()

		results := g.Validate(context.Background(), map[string]string{"host": srv.URL, "token": "glpat-test"})
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, "dev", results[0].Details["username"])
	})

	t.Run("every result is flagged as limited support", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"username":"dev"}`)
		}))
		defer srv.Close()

		results := g.Validate(context.Background(), map[string]string{"host": srv.URL, "token": "glpat-test"})
		require.Len(t, results, 1)
		assert.Equal(t, "limited", results[0].Details["feature_support"])
	})

	t.Run("rejected token is fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		results := g.Validate(context.Background(), map[string]string{"host": srv.URL, "token": "bad"})
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
		assert.True(t, results[0].Fatal)
		assert.Contains(t, results[0].ErrorMessage, "invalid GitLab token")
		assert.Equal(t, "limited", results[0].Details["feature_support"])
	})

	t.Run("unreachable host is not fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		results := g.Validate(context.Background(), map[string]string{"host": srv.URL, "token": "glpat-test"})
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
		assert.False(t, results[0].Fatal)
		assert.Equal(t, "limited", results[0].Details["feature_support"])
	})
}

func TestGitLab_FetchEpics(t *testing.T) {
	g := NewGitLab(testLogger())

	t.Run("epic-labeled issues are converted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v4/projects/acme%2Fwidgets/issues", r.URL.EscapedPath())
			require.Equal(t, "epic", r.URL.Query().Get("labels"))
			require.Equal(t, "all", r.URL.Query().Get("state"))
			fmt.Fprint(w, `[
				{"iid": 7, "title": "Ship the auth flow", "description": "details", "state": "opened",
				 "web_url": "https://gitlab.example.com/acme/widgets/-/issues/7",
				 "labels": ["epic", "p1"], "updated_at": "2026-08-01T10:00:00Z"},
				{"iid": 8, "title": "Old epic", "state": "closed", "web_url": "", "labels": ["epic"],
				 "updated_at": "2026-07-01T10:00:00Z"}
			]`)
		}))
		defer srv.Close()

		cfg := &config.Config{
			Provider: models.ProviderGitLab,
			GitLab:   &config.GitLabSettings{Host: srv.URL, Token: "glpat-test", Project: "acme/widgets"},
		}

		epics, err := g.FetchEpics(context.Background(), cfg)
		require.NoError(t, err)
		require.Len(t, epics, 2)

		assert.Equal(t, 7, epics[0].Number)
		assert.Equal(t, "Ship the auth flow", epics[0].Title)
		assert.Equal(t, "open", epics[0].State, "gitlab 'opened' maps to open")
		assert.Equal(t, []string{"epic", "p1"}, epics[0].Labels)
		assert.True(t, epics[0].UpdatedAt.Equal(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)))

		assert.Equal(t, "closed", epics[1].State)
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"404 Project Not Found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		cfg := &config.Config{
			Provider: models.ProviderGitLab,
			GitLab:   &config.GitLabSettings{Host: srv.URL, Token: "glpat-test", Project: "acme/missing"},
		}

		_, err := g.FetchEpics(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("missing token is an error", func(t *testing.T) {
		t.Setenv(config.EnvGitLabToken, "")
		cfg := &config.Config{
			Provider: models.ProviderGitLab,
			GitLab:   &config.GitLabSettings{Host: "https://gitlab.com", Project: "acme/widgets"},
		}

		_, err := g.FetchEpics(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.EnvGitLabToken)
	})
}
