package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/model"
)

// Deploy makes one backend deploy call for platform.
func (c *Client) Deploy(ctx context.Context, projectID, platform string) (*deploy.Result, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/deploy?" + url.Values{"platform": {platform}}.Encode()
	var res deploy.Result
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeployConsole walks the console stages locally while the deploy call
// runs, the way the web console animates a deploy. Observer and timer
// options are passed to the pipeline. The returned stages are the final
// console state, including on failure.
func (c *Client) DeployConsole(ctx context.Context, projectID, platform string, opts ...deploy.PipelineOption) (*deploy.Result, []deploy.Stage, error) {
	p := deploy.NewPipeline(opts...)
	res, err := p.Run(ctx, func(ctx context.Context) (*deploy.Result, error) {
		return c.Deploy(ctx, projectID, platform)
	})
	return res, p.Stages(), err
}

// DeploymentStatus is the recorded deployment and the provider's state.
type DeploymentStatus struct {
	Deployment *model.Deployment `json:"deployment"`
	Provider   *deploy.Status    `json:"provider"`
}

// DeploymentStatus asks the server for the state of a deployment.
func (c *Client) DeploymentStatus(ctx context.Context, deploymentID string) (*DeploymentStatus, error) {
	var st DeploymentStatus
	if err := c.do(ctx, http.MethodGet, "/deployments/"+url.PathEscape(deploymentID)+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
