package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mycelian/mycelian-todo/internal/api"
	"github.com/mycelian/mycelian-todo/internal/api/respond"
)

// todoClient is a thin HTTP client for the todo service.
type todoClient struct {
	http *resty.Client
}

func newTodoClient(baseURL string, timeout time.Duration) *todoClient {
	return &todoClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *todoClient) listItems(ctx context.Context, email string) ([]api.TodoItem, error) {
	var items []api.TodoItem
	var apiErr respond.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&items).
		SetError(&apiErr).
		Get("/api/todo/" + url.PathEscape(email))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp, apiErr)
	}
	return items, nil
}

func (c *todoClient) addItem(ctx context.Context, email, description string) error {
	var apiErr respond.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(api.AddItemRequest{Description: description}).
		SetError(&apiErr).
		Post("/api/todo/" + url.PathEscape(email))
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError(resp, apiErr)
	}
	return nil
}

func (c *todoClient) health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("health: unexpected status %d", resp.StatusCode())
	}
	return out, nil
}

func statusError(resp *resty.Response, apiErr respond.ErrorResponse) error {
	switch {
	case apiErr.Message != "":
		return fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Message)
	case apiErr.Error != "":
		return fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode())
}
