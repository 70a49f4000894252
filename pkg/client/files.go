package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
)

// Files lists the current artifact view.
func (c *Client) Files(ctx context.Context) ([]model.OutputFile, error) {
	var result model.OutputFilesResponse
	if err := c.doJSON(ctx, http.MethodGet, apiPath("output-files"), nil, &result, nil); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Download writes the current artifact name into w.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	return c.doCopy(ctx, apiPath("download", name), w)
}

// Cleanup deletes every stored artifact and returns how many were removed.
func (c *Client) Cleanup(ctx context.Context) (*model.CleanupResponse, error) {
	var result model.CleanupResponse
	if err := c.doJSON(ctx, http.MethodDelete, apiPath("cleanup"), nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunListOptions filters ListRuns. Zero values are omitted.
type RunListOptions struct {
	Status         string
	Source         string
	OutputFilename string
	Page           int
	PageSize       int
}

func (o RunListOptions) values() url.Values {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Source != "" {
		q.Set("source", o.Source)
	}
	if o.OutputFilename != "" {
		q.Set("output_filename", o.OutputFilename)
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	return q
}

func (c *Client) ListRuns(ctx context.Context, opts RunListOptions) (*model.RunListResponse, error) {
	var result model.RunListResponse
	if err := c.doJSON(ctx, http.MethodGet, apiPath("runs"), nil, &result, opts.values()); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var result model.Run
	if err := c.doJSON(ctx, http.MethodGet, apiPath("runs", id), nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RunFiles(ctx context.Context, id string) ([]model.OutputFile, error) {
	var result model.OutputFilesResponse
	if err := c.doJSON(ctx, http.MethodGet, apiPath("runs", id, "files"), nil, &result, nil); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// DownloadRunFile writes one artifact of a specific run into w.
func (c *Client) DownloadRunFile(ctx context.Context, id, name string, w io.Writer) (int64, error) {
	return c.doCopy(ctx, apiPath("runs", id, "files", name), w)
}

func (c *Client) Preview(ctx context.Context, id string) (*model.PreviewResponse, error) {
	var result model.PreviewResponse
	if err := c.doJSON(ctx, http.MethodGet, apiPath("runs", id, "preview"), nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}
