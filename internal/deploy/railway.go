package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sakif/app-builder/internal/model"
)

const railwayAPI = "https://backboard.railway.app/graphql/v2"

const projectCreateMutation = `mutation projectCreate($name: String!) {
  projectCreate(input: {name: $name}) {
    id
  }
}`

// Railway only creates the project; the user connects a repository to
// finish the deploy.
type Railway struct {
	token    string
	endpoint string
	client   *http.Client
}

var _ Provider = (*Railway)(nil)

func NewRailway(token string) *Railway {
	return &Railway{token: token, endpoint: railwayAPI, client: newHTTPClient()}
}

func (r *Railway) Name() string { return model.PlatformRailway }

func (r *Railway) Deploy(ctx context.Context, b Bundle) (*Result, error) {
	if r.token == "" {
		return notConfigured(model.PlatformRailway), nil
	}

	payload, err := json.Marshal(map[string]any{
		"query":     projectCreateMutation,
		"variables": map[string]string{"name": b.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding railway query: %w", err)
	}

	status, raw, err := call(ctx, r.client, http.MethodPost, r.endpoint, r.token, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	const creationFailed = "Railway project creation failed"
	if status != http.StatusOK {
		return failed(model.PlatformRailway, creationFailed), nil
	}

	var resp struct {
		Data struct {
			ProjectCreate struct {
				ID string `json:"id"`
			} `json:"projectCreate"`
		} `json:"data"`
	}
	if err := decode(raw, &resp); err != nil || resp.Data.ProjectCreate.ID == "" {
		return failed(model.PlatformRailway, creationFailed), nil
	}

	id := resp.Data.ProjectCreate.ID
	return &Result{
		Success:      true,
		Platform:     model.PlatformRailway,
		URL:          "https://railway.app/project/" + id,
		DeploymentID: id,
		Status:       "created",
		Message:      "Project created. Connect your GitHub repo to complete deployment.",
	}, nil
}

// Status is not tracked for Railway projects.
func (r *Railway) Status(context.Context, string) (*Status, error) {
	return &Status{Status: "unknown"}, nil
}
