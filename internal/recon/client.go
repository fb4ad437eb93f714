package recon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fabrica3d/fabrica/internal/models"
)

// Tunables for the reconstruction model. The defaults favor high-resolution
// textures with enough geometry to carry them.
const (
	defaultSeed          = 1337
	defaultTextureSize   = 2048
	defaultMeshSimplify  = 0.94
	defaultSamplingSteps = 16
)

// Client calls a queue-based reconstruction REST API: submit a job, poll its
// status while forwarding log lines as progress hints, then fetch the result.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: 2 * time.Second,
	}
}

type submitRequest struct {
	ImageURL          string  `json:"image_url"`
	Seed              int     `json:"seed"`
	TextureSize       int     `json:"texture_size"`
	MeshSimplify      float64 `json:"mesh_simplify"`
	SSSamplingSteps   int     `json:"ss_sampling_steps"`
	SlatSamplingSteps int     `json:"slat_sampling_steps"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status   string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED, FAILED
	Progress int    `json:"progress"`
	Logs     []struct {
		Message string `json:"message"`
	} `json:"logs"`
	Error string `json:"error,omitempty"`
}

type fileRef struct {
	URL string `json:"url"`
}

type resultResponse struct {
	ModelMesh     *fileRef  `json:"model_mesh"`
	ColorVideo    *fileRef  `json:"color_video"`
	PointCloud    *fileRef  `json:"point_cloud"`
	NormalVideo   *fileRef  `json:"normal_video"`
	CombinedVideo *fileRef  `json:"combined_video"`
	NoBackground  []fileRef `json:"no_background_images"`
}

// Reconstruct generates 3D artifacts from the image set. Only the first
// image is submitted; the API accepts a single view. Progress hints from the
// job's log stream are forwarded through progress as they arrive.
func (c *Client) Reconstruct(ctx context.Context, images []string, progress ProgressFunc) (*models.ReconstructionArtifacts, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("reconstruct: no images provided")
	}

	requestID, err := c.submit(ctx, images[0])
	if err != nil {
		return nil, err
	}

	if err := c.waitForCompletion(ctx, requestID, progress); err != nil {
		return nil, err
	}

	return c.fetchResult(ctx, requestID)
}

func (c *Client) submit(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(submitRequest{
		ImageURL:          imageURL,
		Seed:              defaultSeed,
		TextureSize:       defaultTextureSize,
		MeshSimplify:      defaultMeshSimplify,
		SSSamplingSteps:   defaultSamplingSteps,
		SlatSamplingSteps: defaultSamplingSteps,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("submit reconstruction: %w", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.RequestID == "" {
		return "", fmt.Errorf("submit reconstruction: no request id in response")
	}
	return resp.RequestID, nil
}

func (c *Client) waitForCompletion(ctx context.Context, requestID string, progress ProgressFunc) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	seenLogs := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		respBody, err := c.do(ctx, http.MethodGet, "/jobs/"+requestID+"/status", nil)
		if err != nil {
			return fmt.Errorf("poll reconstruction status: %w", err)
		}

		var status statusResponse
		if err := json.Unmarshal(respBody, &status); err != nil {
			return fmt.Errorf("decode status response: %w", err)
		}

		if progress != nil {
			for ; seenLogs < len(status.Logs); seenLogs++ {
				progress(models.PhaseGeneratingModel, status.Progress, status.Logs[seenLogs].Message)
			}
		}

		switch status.Status {
		case "COMPLETED":
			return nil
		case "FAILED":
			if status.Error != "" {
				return fmt.Errorf("reconstruction failed: %s", status.Error)
			}
			return fmt.Errorf("reconstruction failed")
		}
	}
}

func (c *Client) fetchResult(ctx context.Context, requestID string) (*models.ReconstructionArtifacts, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/jobs/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch reconstruction result: %w", err)
	}

	var result resultResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode result response: %w", err)
	}
	if result.ModelMesh == nil || result.ModelMesh.URL == "" {
		return nil, fmt.Errorf("reconstruction result contains no mesh file")
	}

	artifacts := &models.ReconstructionArtifacts{
		MeshFile: result.ModelMesh.URL,
	}
	if result.ColorVideo != nil {
		artifacts.ColorVideo = result.ColorVideo.URL
	}
	if result.PointCloud != nil {
		artifacts.PointCloud = result.PointCloud.URL
	}
	if result.NormalVideo != nil {
		artifacts.NormalVideo = result.NormalVideo.URL
	}
	if result.CombinedVideo != nil {
		artifacts.CombinedVideo = result.CombinedVideo.URL
	}
	for _, ref := range result.NoBackground {
		if ref.URL != "" {
			artifacts.BackgroundRemovedImages = append(artifacts.BackgroundRemovedImages, ref.URL)
		}
	}
	return artifacts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// HealthCheck verifies the reconstruction API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reconstruction health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reconstruction health check: status %d", resp.StatusCode)
	}
	return nil
}
