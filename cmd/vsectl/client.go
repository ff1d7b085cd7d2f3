package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	searchhandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/handler"
)

const defaultServer = "http://localhost:8080"

func apiBaseURL() string {
	if u := os.Getenv("VSE_API_URL"); u != "" {
		return u
	}
	return defaultServer
}

// apiClient is a thin resty wrapper over the image and search routes.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func statusError(resp *resty.Response) error {
	var body apiError
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		if len(body.Fields) > 0 {
			return fmt.Errorf("%s %s: %d %s %v", resp.Request.Method, resp.Request.URL, resp.StatusCode(), body.Error, body.Fields)
		}
		return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL, resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL, resp.Status())
}

func (c *apiClient) addImage(ctx context.Context, id string, hist []float64, async bool) (ingestion.ImageResponse, error) {
	var out ingestion.ImageResponse
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ingestion.AddImageRequest{ImageID: id, Histogram: hist}).
		SetResult(&out)
	if async {
		req.SetQueryParam("async", "true")
	}
	resp, err := req.Post("/api/v1/images")
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusAccepted {
		return out, statusError(resp)
	}
	return out, nil
}

func (c *apiClient) putContent(ctx context.Context, id string, image []byte) (ingestion.ImageResponse, error) {
	var out ingestion.ImageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&out).
		Put("/api/v1/images/" + url.PathEscape(id) + "/content")
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusCreated {
		return out, statusError(resp)
	}
	return out, nil
}

func (c *apiClient) listImages(ctx context.Context) (searchhandler.ImageListResponse, error) {
	var out searchhandler.ImageListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/images")
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusOK {
		return out, statusError(resp)
	}
	return out, nil
}

func (c *apiClient) getImage(ctx context.Context, id string) (searchhandler.ImageResponse, error) {
	var out searchhandler.ImageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/images/" + url.PathEscape(id))
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusOK {
		return out, statusError(resp)
	}
	return out, nil
}

// removeImage reports whether the removal was applied (false when queued).
func (c *apiClient) removeImage(ctx context.Context, id string, async bool) (bool, error) {
	req := c.http.R().SetContext(ctx)
	if async {
		req.SetQueryParam("async", "true")
	}
	resp, err := req.Delete("/api/v1/images/" + url.PathEscape(id))
	if err != nil {
		return false, err
	}
	switch resp.StatusCode() {
	case http.StatusNoContent:
		return true, nil
	case http.StatusAccepted:
		return false, nil
	default:
		return false, statusError(resp)
	}
}

func (c *apiClient) search(ctx context.Context, hist []float64, limit int) (searchhandler.SearchResponse, error) {
	var out searchhandler.SearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(searchhandler.SearchRequest{Histogram: hist, Limit: limit}).
		SetResult(&out).
		Post("/api/v1/search")
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusOK {
		return out, statusError(resp)
	}
	return out, nil
}

func (c *apiClient) searchImage(ctx context.Context, image []byte, limit int) (searchhandler.SearchResponse, error) {
	var out searchhandler.SearchResponse
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&out)
	if limit != 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Post("/api/v1/search/image")
	if err != nil {
		return out, err
	}
	if resp.StatusCode() != http.StatusOK {
		return out, statusError(resp)
	}
	return out, nil
}

func (c *apiClient) stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/stats")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp)
	}
	return out, nil
}
