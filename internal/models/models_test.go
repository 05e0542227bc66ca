package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderType(t *testing.T) {
	t.Run("valid values", func(t *testing.T) {
		for _, p := range ProviderTypes() {
			assert.True(t, p.Valid(), string(p))
		}
		assert.False(t, ProviderType("bitbucket").Valid())
		assert.False(t, ProviderType("").Valid())
	})

	t.Run("display names", func(t *testing.T) {
		assert.Equal(t, "GitHub", ProviderGitHub.DisplayName())
		assert.Equal(t, "Azure DevOps", ProviderAzureDevOps.DisplayName())
		assert.Equal(t, "GitLab", ProviderGitLab.DisplayName())
	})
}

func TestPriority_Rank(t *testing.T) {
	assert.Equal(t, 1, PriorityP1.Rank())
	assert.Equal(t, 4, PriorityP4.Rank())
	assert.Equal(t, 5, Priority("P9").Rank())
	assert.True(t, PriorityP2.Valid())
	assert.False(t, Priority("urgent").Valid())
}

func TestRemoteEpic(t *testing.T) {
	epic := RemoteEpic{
		Title:  "Add feat-auth support",
		Body:   "Tracks the work on the FEAT-LOGIN branch",
		Labels: []string{"Epic", "p1"},
		State:  "open",
	}

	t.Run("open state", func(t *testing.T) {
		assert.True(t, epic.IsOpen())
		closed := RemoteEpic{State: "closed"}
		assert.False(t, closed.IsOpen())
	})

	t.Run("label lookup is case-insensitive", func(t *testing.T) {
		assert.True(t, epic.HasLabel("epic"))
		assert.True(t, epic.HasLabel("P1"))
		assert.False(t, epic.HasLabel("p2"))
	})

	t.Run("branch reference in title or body", func(t *testing.T) {
		assert.True(t, epic.ReferencesBranch("feat-auth"))
		assert.True(t, epic.ReferencesBranch("feat-login"), "body match, case-insensitive")
		assert.False(t, epic.ReferencesBranch("feat-other"))
		assert.False(t, epic.ReferencesBranch(""), "empty ref never matches")
	})
}

func TestValidationHelpers(t *testing.T) {
	pass := ValidationResult{Step: "organization", Success: true}
	warn := ValidationResult{Step: "scopes", Success: false, ErrorMessage: "token is missing scopes"}
	fatal := ValidationResult{Step: "project", Success: false, Fatal: true, ErrorMessage: "project not found"}

	t.Run("all succeeded requires at least one result", func(t *testing.T) {
		assert.False(t, AllSucceeded(nil))
		assert.True(t, AllSucceeded([]ValidationResult{pass}))
		assert.False(t, AllSucceeded([]ValidationResult{pass, warn}))
	})

	t.Run("any fatal", func(t *testing.T) {
		assert.False(t, AnyFatal([]ValidationResult{pass, warn}))
		assert.True(t, AnyFatal([]ValidationResult{pass, fatal}))
	})

	t.Run("failure messages name the step", func(t *testing.T) {
		msgs := FailureMessages([]ValidationResult{pass, warn, fatal})
		assert.Equal(t, []string{
			"scopes: token is missing scopes",
			"project: project not found",
		}, msgs)
	})
}
