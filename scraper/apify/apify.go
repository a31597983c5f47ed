package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/utils"
)

const (
	defaultBaseURL = "https://api.apify.com"
	itemsPageSize  = 500

	// MaxReviews bounds a single fetch; the actor rejects larger requests.
	MaxReviews = 1000
)

// Client is the capability the rest of the application depends on: start a
// scrape and return the raw records it produced. Test doubles implement this.
type Client interface {
	FetchReviews(ctx context.Context, targetURL string, maxReviews int) ([]models.RawReview, error)
}

// HTTPClient talks to the Apify actor API: it starts a run of the Google Maps
// reviews actor, waits for the run to finish, then pages through the run's
// default dataset.
type HTTPClient struct {
	baseURL      *url.URL
	token        string
	actorID      string
	client       *http.Client
	logger       *utils.Logger
	pollInterval time.Duration
}

// NewHTTPClient constructs an HTTP-backed Apify client.
func NewHTTPClient(baseURL, token, actorID string, timeout time.Duration, logger *utils.Logger) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apify: parse base url: %w", err)
	}
	return &HTTPClient{
		baseURL:      parsed,
		token:        token,
		actorID:      actorID,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
		pollInterval: 3 * time.Second,
	}, nil
}

type runInput struct {
	Language     string     `json:"language"`
	MaxReviews   int        `json:"maxReviews"`
	PersonalData bool       `json:"personalData"`
	StartURLs    []startURL `json:"startUrls"`
}

type startURL struct {
	URL string `json:"url"`
}

type runEnvelope struct {
	Data runData `json:"data"`
}

type runData struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// FetchReviews runs the actor against targetURL and returns every dataset
// item. Any upstream failure comes back as *models.BackendError; nothing is
// retried.
func (c *HTTPClient) FetchReviews(ctx context.Context, targetURL string, maxReviews int) ([]models.RawReview, error) {
	if maxReviews < 1 {
		maxReviews = 1
	}
	if maxReviews > MaxReviews {
		maxReviews = MaxReviews
	}

	run, err := c.startRun(ctx, targetURL, maxReviews)
	if err != nil {
		return nil, &models.BackendError{Service: "apify", Err: err}
	}
	c.logger.Info("[apify] Run %s started (dataset %s)", run.ID, run.DefaultDatasetID)

	run, err = c.waitForRun(ctx, run)
	if err != nil {
		return nil, &models.BackendError{Service: "apify", Err: err}
	}

	reviews, err := c.datasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, &models.BackendError{Service: "apify", Err: err}
	}
	c.logger.Info("[apify] Run %s finished: %d raw reviews", run.ID, len(reviews))
	return reviews, nil
}

func (c *HTTPClient) startRun(ctx context.Context, targetURL string, maxReviews int) (runData, error) {
	input := runInput{
		Language:     "ja",
		MaxReviews:   maxReviews,
		PersonalData: true,
		StartURLs:    []startURL{{URL: targetURL}},
	}
	body, err := json.Marshal(input)
	if err != nil {
		return runData{}, fmt.Errorf("marshal run input: %w", err)
	}

	endpoint := c.endpoint("/v2/acts/"+c.actorID+"/runs", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return runData{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var env runEnvelope
	if err := c.do(req, http.StatusCreated, &env); err != nil {
		return runData{}, fmt.Errorf("start run: %w", err)
	}
	if env.Data.ID == "" {
		return runData{}, fmt.Errorf("start run: response carried no run id")
	}
	return env.Data, nil
}

// waitForRun polls the run handle until it reaches a terminal status. Polling
// for completion is part of one logical request, not a retry.
func (c *HTTPClient) waitForRun(ctx context.Context, run runData) (runData, error) {
	for {
		switch run.Status {
		case "SUCCEEDED":
			return run, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return runData{}, fmt.Errorf("run %s ended with status %s", run.ID, run.Status)
		}

		select {
		case <-ctx.Done():
			return runData{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		endpoint := c.endpoint("/v2/actor-runs/"+run.ID, nil)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return runData{}, err
		}
		var env runEnvelope
		if err := c.do(req, http.StatusOK, &env); err != nil {
			return runData{}, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		if env.Data.DefaultDatasetID == "" {
			env.Data.DefaultDatasetID = run.DefaultDatasetID
		}
		run = env.Data
	}
}

func (c *HTTPClient) datasetItems(ctx context.Context, datasetID string) ([]models.RawReview, error) {
	var all []models.RawReview
	for offset := 0; ; offset += itemsPageSize {
		endpoint := c.endpoint("/v2/datasets/"+datasetID+"/items", url.Values{
			"format": {"json"},
			"clean":  {"true"},
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(itemsPageSize)},
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var page []models.RawReview
		if err := c.do(req, http.StatusOK, &page); err != nil {
			return nil, fmt.Errorf("dataset items at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < itemsPageSize {
			return all, nil
		}
	}
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.token)
	rel := &url.URL{Path: path, RawQuery: query.Encode()}
	return c.baseURL.ResolveReference(rel).String()
}

func (c *HTTPClient) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
