package deploy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/app-builder/internal/model"
)

const vercelAPI = "https://api.vercel.com"

// Vercel deploys through the v13 deployments API.
type Vercel struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ Provider = (*Vercel)(nil)

func NewVercel(token string) *Vercel {
	return &Vercel{token: token, baseURL: vercelAPI, client: newHTTPClient()}
}

func (v *Vercel) Name() string { return model.PlatformVercel }

type vercelFile struct {
	File     string `json:"file"`
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

type vercelDeployment struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	ReadyState string      `json:"readyState"`
	CreatedAt  json.Number `json:"createdAt"`
}

func (v *Vercel) Deploy(ctx context.Context, b Bundle) (*Result, error) {
	if v.token == "" {
		return notConfigured(model.PlatformVercel), nil
	}

	files := make([]vercelFile, 0, len(b.Files))
	for _, f := range b.Files {
		files = append(files, vercelFile{
			File:     f.Path,
			Data:     base64.StdEncoding.EncodeToString([]byte(f.Content)),
			Encoding: "base64",
		})
	}
	payload, err := json.Marshal(map[string]any{
		"name":  slug(b.Name),
		"files": files,
		"projectSettings": map[string]string{
			"framework":       "create-react-app",
			"buildCommand":    "npm run build",
			"outputDirectory": "build",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding vercel payload: %w", err)
	}

	status, raw, err := call(ctx, v.client, http.MethodPost, v.baseURL+"/v13/deployments", v.token, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if !created(status) {
		return failed(model.PlatformVercel, "Vercel deployment failed: "+strings.TrimSpace(string(raw))), nil
	}

	var d vercelDeployment
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	return &Result{
		Success:      true,
		Platform:     model.PlatformVercel,
		URL:          "https://" + d.URL,
		DeploymentID: d.ID,
		Status:       "deployed",
	}, nil
}

func (v *Vercel) Status(ctx context.Context, id string) (*Status, error) {
	if v.token == "" {
		return &Status{Status: "unknown", Error: "VERCEL_TOKEN not configured"}, nil
	}
	status, raw, err := call(ctx, v.client, http.MethodGet, v.baseURL+"/v13/deployments/"+id, v.token, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &Status{Status: "unknown"}, nil
	}
	var d vercelDeployment
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	state := d.ReadyState
	if state == "" {
		state = "UNKNOWN"
	}
	return &Status{Status: state, URL: "https://" + d.URL, Created: d.CreatedAt.String()}, nil
}
