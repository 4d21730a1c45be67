package clist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/flor3z/contest-remind-bot/internal/contest"
)

const (
	// BaseURL is the clist.by API root
	BaseURL = "https://clist.by"

	contestPath = "/api/v4/contest/"
	pageLimit   = 1000
)

// Response is the envelope returned by the contest endpoint
type Response struct {
	Objects []contest.RawContest `json:"objects"`
}

// Client is a clist.by API client with rate limiting
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new clist API client allowing perMinute requests per minute
func NewClient(baseURL, username, apiKey string, perMinute int) *Client {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Contests fetches contests from the given websites starting at or after from.
// It returns the raw response body alongside the decoded records.
func (c *Client) Contests(ctx context.Context, websites []string, from time.Time) ([]contest.RawContest, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("start__gte", from.UTC().Format("2006-01-02T15:04:05"))
	q.Set("order_by", "start")
	q.Set("limit", strconv.Itoa(pageLimit))
	if len(websites) > 0 {
		q.Set("resource__in", strings.Join(websites, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+contestPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s:%s", c.username, c.apiKey))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	records, err := Decode(body)
	if err != nil {
		return nil, nil, err
	}
	return records, body, nil
}

// Decode parses a contest endpoint response body
func Decode(body []byte) ([]contest.RawContest, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return r.Objects, nil
}
