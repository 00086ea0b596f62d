package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to a running engine's HTTP API
type Client struct {
	baseURL string
	actor   string
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient creates an API client. Base URL and acting user come from the
// GATEHOUSE_URL and GATEHOUSE_ACTOR environment variables when empty.
func NewClient(baseURL, actor string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("GATEHOUSE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if actor == "" {
		actor = os.Getenv("GATEHOUSE_ACTOR")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if os.Getenv("GATEHOUSE_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Client{
		baseURL: baseURL,
		actor:   actor,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// do executes a request and decodes the JSON response into dest (when
// non-nil). Error statuses surface the server's error message.
func (c *Client) do(method, path string, body interface{}, dest interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.actor != "" {
		// Admin routes resolve the actor's own permissions from these
		req.Header.Set("X-Auth-User-ID", c.actor)
	}

	c.logger.WithFields(logrus.Fields{"method": method, "path": path}).Debug("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, errBody.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON renders a value as indented JSON on stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
