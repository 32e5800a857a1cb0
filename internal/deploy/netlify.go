package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sakif/app-builder/internal/export"
	"github.com/sakif/app-builder/internal/model"
)

const netlifyAPI = "https://api.netlify.com"

// Netlify creates a site per deploy and uploads the files as a zip.
type Netlify struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ Provider = (*Netlify)(nil)

func NewNetlify(token string) *Netlify {
	return &Netlify{token: token, baseURL: netlifyAPI, client: newHTTPClient()}
}

func (n *Netlify) Name() string { return model.PlatformNetlify }

type netlifyDeploy struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	URL       string `json:"url"`
	SSLURL    string `json:"ssl_url"`
	CreatedAt string `json:"created_at"`
}

func (d netlifyDeploy) publicURL() string {
	if d.SSLURL != "" {
		return d.SSLURL
	}
	return d.URL
}

func (n *Netlify) Deploy(ctx context.Context, b Bundle) (*Result, error) {
	if n.token == "" {
		return notConfigured(model.PlatformNetlify), nil
	}

	archive, err := export.Zip(b.Files)
	if err != nil {
		return nil, err
	}

	site, _ := json.Marshal(map[string]string{"name": slug(b.Name)})
	status, raw, err := call(ctx, n.client, http.MethodPost, n.baseURL+"/api/v1/sites", n.token, "application/json", bytes.NewReader(site))
	if err != nil {
		return nil, err
	}
	if !created(status) {
		return failed(model.PlatformNetlify, "Failed to create Netlify site"), nil
	}
	var s struct {
		ID string `json:"id"`
	}
	if err := decode(raw, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return failed(model.PlatformNetlify, "Failed to create Netlify site"), nil
	}

	url := fmt.Sprintf("%s/api/v1/sites/%s/deploys", n.baseURL, s.ID)
	status, raw, err = call(ctx, n.client, http.MethodPost, url, n.token, "application/zip", bytes.NewReader(archive))
	if err != nil {
		return nil, err
	}
	if !created(status) {
		return failed(model.PlatformNetlify, "Netlify deployment failed"), nil
	}
	var d netlifyDeploy
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	return &Result{
		Success:      true,
		Platform:     model.PlatformNetlify,
		URL:          d.publicURL(),
		DeploymentID: d.ID,
		Status:       "deployed",
	}, nil
}

func (n *Netlify) Status(ctx context.Context, id string) (*Status, error) {
	if n.token == "" {
		return &Status{Status: "unknown", Error: "NETLIFY_TOKEN not configured"}, nil
	}
	status, raw, err := call(ctx, n.client, http.MethodGet, n.baseURL+"/api/v1/deploys/"+id, n.token, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &Status{Status: "unknown"}, nil
	}
	var d netlifyDeploy
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	state := d.State
	if state == "" {
		state = "unknown"
	}
	return &Status{Status: state, URL: d.publicURL(), Created: d.CreatedAt}, nil
}
