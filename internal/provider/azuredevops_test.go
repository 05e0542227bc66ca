package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adoServer fakes the four probed REST endpoints with per-path status codes.
func adoServer(t *testing.T, statuses map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := statuses[r.URL.Path]; ok {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func adoCreds(orgURL string) map[string]string {
	return map[string]string{
		"organization_url":      orgURL,
		"project":               "widgets",
		"personal_access_token": "test-pat",
	}
}

func TestAzureDevOps_Validate(t *testing.T) {
	a := NewAzureDevOps(testLogger())

	t.Run("rejected token is fatal with the exact message", func(t *testing.T) {
		srv := adoServer(t, map[string]int{"/_apis/projects": http.StatusUnauthorized})

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 1)
		assert.Equal(t, "organization", results[0].Step)
		assert.False(t, results[0].Success)
		assert.True(t, results[0].Fatal)
		assert.Equal(t, "Invalid Personal Access Token", results[0].ErrorMessage)
		assert.Contains(t, results[0].Suggestion, "_usersSettings/tokens")
	})

	t.Run("203 from the proxy sign-in page is treated as a bad token", func(t *testing.T) {
		srv := adoServer(t, map[string]int{"/_apis/projects": http.StatusNonAuthoritativeInfo})

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 1)
		assert.Equal(t, "Invalid Personal Access Token", results[0].ErrorMessage)
		assert.True(t, results[0].Fatal)
	})

	t.Run("unknown project is fatal", func(t *testing.T) {
		srv := adoServer(t, map[string]int{"/_apis/projects/widgets": http.StatusNotFound})

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 2)
		assert.True(t, results[0].Success)
		assert.Equal(t, "project", results[1].Step)
		assert.False(t, results[1].Success)
		assert.True(t, results[1].Fatal)
		assert.Contains(t, results[1].ErrorMessage, `project "widgets" not found`)
	})

	t.Run("missing code scope is a warning", func(t *testing.T) {
		srv := adoServer(t, map[string]int{"/widgets/_apis/git/repositories": http.StatusForbidden})

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 3)
		scopes := results[2]
		assert.Equal(t, "scopes", scopes.Step)
		assert.False(t, scopes.Success)
		assert.False(t, scopes.Fatal, "missing scopes must not block the wizard")
		assert.Equal(t, []string{scopeCode}, scopes.Details["missing_scopes"])
	})

	t.Run("missing both scopes lists both", func(t *testing.T) {
		srv := adoServer(t, map[string]int{
			"/widgets/_apis/wit/workitemtypes": http.StatusForbidden,
			"/widgets/_apis/git/repositories":  http.StatusForbidden,
		})

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 3)
		assert.Equal(t, []string{scopeWorkItems, scopeCode}, results[2].Details["missing_scopes"])
	})

	t.Run("all probes pass", func(t *testing.T) {
		srv := adoServer(t, nil)

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 3)
		for _, r := range results {
			assert.True(t, r.Success, r.Step)
		}
	})

	t.Run("unreachable host is a retryable network failure", func(t *testing.T) {
		srv := adoServer(t, nil)
		srv.Close()

		results := a.Validate(context.Background(), adoCreds(srv.URL))
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
		assert.False(t, results[0].Fatal)
	})
}
