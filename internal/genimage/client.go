package genimage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls a Gemini-style image generation REST API.
type Client struct {
	baseURL    string
	apiKey     string
	proModel   string
	flashModel string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, proModel, flashModel string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		proModel:   proModel,
		flashModel: flashModel,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type generateRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	Count           int      `json:"count"`
}

type generateResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// Generate produces Count image refs for the request. Create flow: the first
// call establishes the product, each further view is generated with the
// first image as reference so all views show the same product. Edit flow:
// every view uses the caller's reference set.
func (c *Client) Generate(ctx context.Context, req Request) ([]string, error) {
	model, err := c.modelFor(req.Workflow)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count < 1 {
		count = 1
	}

	prompt := buildPrompt(req)
	images := make([]string, 0, count)

	for i := 0; i < count; i++ {
		refs := req.ReferenceImages
		if req.Workflow == WorkflowCreate {
			if i == 0 {
				refs = nil
			} else {
				refs = images[:1]
			}
		}

		img, err := c.generateOne(ctx, model, anglePrompt(prompt, i), refs)
		if err != nil {
			return nil, fmt.Errorf("generate view %d: %w", i+1, err)
		}
		if img == "" {
			continue
		}
		images = append(images, img)
	}

	return images, nil
}

func (c *Client) modelFor(workflow string) (string, error) {
	switch workflow {
	case WorkflowCreate:
		return c.proModel, nil
	case WorkflowEdit:
		return c.flashModel, nil
	}
	return "", fmt.Errorf("unknown workflow %q", workflow)
}

func (c *Client) generateOne(ctx context.Context, model, prompt string, refs []string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:           model,
		Prompt:          prompt,
		ReferenceImages: refs,
		Count:           1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("image api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image api: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(result.Images) == 0 {
		return "", nil
	}
	return result.Images[0].URL, nil
}

// HealthCheck verifies the image API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image api health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image api health check: status %d", resp.StatusCode)
	}
	return nil
}

func buildPrompt(req Request) string {
	prompt := req.Prompt
	if req.Workflow == WorkflowEdit && req.BaseDescription != "" {
		prompt = fmt.Sprintf("Base product: %s\n\nEdit instruction: %s", req.BaseDescription, req.Prompt)
	}
	if req.IsTexture {
		prompt += "\n\nRender as a flat orthographic texture with no perspective, no shadows, and no surrounding scene."
	}
	return prompt
}

// anglePrompt asks for a distinct viewing angle for each additional view of
// the same product.
func anglePrompt(prompt string, viewIndex int) string {
	angles := []string{
		"front three-quarter view",
		"rear three-quarter view",
		"side profile view",
		"top-down view",
		"close-up detail view",
		"low angle view",
	}
	if viewIndex == 0 {
		return prompt
	}
	angle := angles[viewIndex%len(angles)]
	return fmt.Sprintf("%s\n\nShow the exact same product from a %s.", prompt, angle)
}
