package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/models"
)

const adoAPIVersion = "7.1"

// Token scopes the sync engine depends on. Probed, not assumed.
const (
	scopeWorkItems = "Work Items: Read/Write"
	scopeCode      = "Code: Read/Write"
)

// AzureDevOps integrates with Azure DevOps using PAT-authenticated REST probes
// for validation and the work item tracking API for epic retrieval.
type AzureDevOps struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAzureDevOps creates the Azure DevOps adapter.
func NewAzureDevOps(logger *slog.Logger) *AzureDevOps {
	return &AzureDevOps{httpClient: &http.Client{}, logger: logger}
}

func (a *AzureDevOps) Type() models.ProviderType {
	return models.ProviderAzureDevOps
}

// Detect matches dev.azure.com and *.visualstudio.com remotes.
func (a *AzureDevOps) Detect(remoteURL string) (string, bool) {
	host, _, ok := parseRemote(remoteURL)
	if !ok {
		return "", false
	}
	if host == "dev.azure.com" || host == "ssh.dev.azure.com" || strings.HasSuffix(host, ".visualstudio.com") {
		return fmt.Sprintf("git remote origin (%s)", host), true
	}
	return "", false
}

// Validate probes the organization root, the named project, and one
// work-item-scoped plus one code-scoped endpoint to infer which scopes the
// token actually holds. 401 is always fatal; a 404 on the project probe is
// fatal; missing scopes are warnings surfaced in details.missing_scopes.
func (a *AzureDevOps) Validate(ctx context.Context, creds map[string]string) []models.ValidationResult {
	var results []models.ValidationResult

	orgURL := strings.TrimRight(creds["organization_url"], "/")
	project := creds["project"]
	pat := creds["personal_access_token"]

	tokenSuggestion := fmt.Sprintf("create a new token at %s/_usersSettings/tokens with Code and Work Items scopes", orgURL)

	// Organization root doubles as the token liveness probe.
	status, err := a.probe(ctx, pat, fmt.Sprintf("%s/_apis/projects?api-version=%s&$top=1", orgURL, adoAPIVersion))
	if err != nil {
		results = append(results, networkFailure("organization", err))
		return results
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusNonAuthoritativeInfo:
		results = append(results, probeFailure("organization",
			"Invalid Personal Access Token", tokenSuggestion, true))
		return results
	case status == http.StatusNotFound:
		results = append(results, probeFailure("organization",
			fmt.Sprintf("organization not found at %s", orgURL),
			"check the organization URL, e.g. https://dev.azure.com/your-org", true))
		return results
	case status != http.StatusOK:
		results = append(results, probeFailure("organization",
			fmt.Sprintf("unexpected response %d from organization endpoint", status),
			"verify the organization URL and token", true))
		return results
	}
	results = append(results, probeResult("organization", nil))

	status, err = a.probe(ctx, pat, fmt.Sprintf("%s/_apis/projects/%s?api-version=%s", orgURL, project, adoAPIVersion))
	if err != nil {
		results = append(results, networkFailure("project", err))
		return results
	}
	switch {
	case status == http.StatusUnauthorized:
		results = append(results, probeFailure("project",
			"Invalid Personal Access Token", tokenSuggestion, true))
		return results
	case status == http.StatusNotFound:
		results = append(results, probeFailure("project",
			fmt.Sprintf("project %q not found", project),
			"check the project name in the organization", true))
		return results
	case status != http.StatusOK:
		results = append(results, probeFailure("project",
			fmt.Sprintf("unexpected response %d from project endpoint", status),
			"verify the project name and token", true))
		return results
	}
	results = append(results, probeResult("project", nil))

	var missing []string
	status, err = a.probe(ctx, pat, fmt.Sprintf("%s/%s/_apis/wit/workitemtypes?api-version=%s", orgURL, project, adoAPIVersion))
	if err != nil {
		results = append(results, networkFailure("scopes", err))
		return results
	}
	if status != http.StatusOK {
		missing = append(missing, scopeWorkItems)
	}
	status, err = a.probe(ctx, pat, fmt.Sprintf("%s/%s/_apis/git/repositories?api-version=%s", orgURL, project, adoAPIVersion))
	if err != nil {
		results = append(results, networkFailure("scopes", err))
		return results
	}
	if status != http.StatusOK {
		missing = append(missing, scopeCode)
	}

	if len(missing) > 0 {
		r := probeFailure("scopes",
			fmt.Sprintf("token is missing scopes: %s", strings.Join(missing, ", ")),
			tokenSuggestion, false)
		r.Details["missing_scopes"] = missing
		results = append(results, r)
		return results
	}
	results = append(results, probeResult("scopes", map[string]any{"missing_scopes": []string{}}))

	return results
}

func (a *AzureDevOps) probe(ctx context.Context, pat, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth("", pat)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// FetchEpics queries Epic work items via WIQL and retrieves their details in
// batches. HTML descriptions are converted to markdown before they reach the
// roadmap.
func (a *AzureDevOps) FetchEpics(ctx context.Context, cfg *config.Config) ([]models.RemoteEpic, error) {
	if cfg.AzureDevOps == nil {
		return nil, fmt.Errorf("azure devops settings are not configured")
	}
	settings := cfg.AzureDevOps
	pat := cfg.AzurePAT()
	if pat == "" {
		return nil, fmt.Errorf("no personal access token available (set %s or run the wizard)", config.EnvAzurePAT)
	}

	connection := azuredevops.NewPatConnection(settings.OrganizationURL, pat)
	witClient, err := workitemtracking.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item tracking client: %w", err)
	}

	wiql := fmt.Sprintf(
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = '%s' AND [System.WorkItemType] = 'Epic' ORDER BY [System.ChangedDate] DESC",
		settings.Project)

	result, err := witClient.QueryByWiql(ctx, workitemtracking.QueryByWiqlArgs{
		Project: &settings.Project,
		Wiql:    &workitemtracking.Wiql{Query: &wiql},
	})
	if err != nil {
		return nil, fmt.Errorf("WIQL query execution failed: %w", err)
	}

	var ids []int
	if result.WorkItems != nil {
		for _, wi := range *result.WorkItems {
			if wi.Id != nil {
				ids = append(ids, *wi.Id)
			}
		}
	}
	if len(ids) == 0 {
		a.logger.Warn("no epics found in project", "project", settings.Project)
		return []models.RemoteEpic{}, nil
	}

	var epics []models.RemoteEpic
	batchSize := 100 // ADO API limit
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		expand := workitemtracking.WorkItemExpandValues.Fields
		response, err := witClient.GetWorkItems(ctx, workitemtracking.GetWorkItemsArgs{
			Project: &settings.Project,
			Ids:     &batch,
			Expand:  &expand,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get work items: %w", err)
		}
		if response == nil {
			continue
		}
		for _, wi := range *response {
			epics = append(epics, a.convertWorkItem(wi, settings))
		}
	}

	a.logger.Info("fetched epics from Azure DevOps", "count", len(epics))
	return epics, nil
}

func (a *AzureDevOps) convertWorkItem(wi workitemtracking.WorkItem, settings *config.AzureDevOpsSettings) models.RemoteEpic {
	epic := models.RemoteEpic{}

	if wi.Id != nil {
		epic.Number = *wi.Id
		epic.URL = fmt.Sprintf("%s/%s/_workitems/edit/%d",
			strings.TrimRight(settings.OrganizationURL, "/"), settings.Project, *wi.Id)
	}
	if wi.Fields == nil {
		return epic
	}
	fields := *wi.Fields

	epic.Title = stringField(fields, "System.Title")
	epic.Body = a.cleanHTML(stringField(fields, "System.Description"))
	epic.State = mapWorkItemState(stringField(fields, "System.State"))
	epic.Labels = parseTags(stringField(fields, "System.Tags"))

	if changed := stringField(fields, "System.ChangedDate"); changed != "" {
		if t, err := time.Parse(time.RFC3339, changed); err == nil {
			epic.UpdatedAt = t
		}
	}

	return epic
}

func (a *AzureDevOps) cleanHTML(content string) string {
	if content == "" {
		return ""
	}
	converted, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		a.logger.Warn("failed to convert HTML description to markdown", "error", err)
		return content
	}
	return strings.TrimSpace(converted)
}

func mapWorkItemState(state string) string {
	switch strings.ToLower(state) {
	case "done", "closed", "removed", "completed":
		return "closed"
	default:
		return "open"
	}
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// parseTags splits the semicolon-separated ADO tag string.
func parseTags(tags string) []string {
	if tags == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(tags, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
