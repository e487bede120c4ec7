package task

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Task document names served under <base>/<taskID>/.
const (
	initialStateDocument = "initialGameState.json"
	worldObjectsDocument = "initialWorldObjects.json"
	targetDeltasDocument = "targetGameChanges.json"
)

const defaultFetchTimeout = 30 * time.Second

// HTTPLoader fetches task seed documents from a task-data container.
type HTTPLoader struct {
	// BaseURL is the container root, without a trailing slash.
	BaseURL string
	// Client is the HTTP client used for fetches. A default client with a
	// bounded timeout is used when nil.
	Client *http.Client
}

// Load fetches and parses the three seed documents for taskID.
func (l *HTTPLoader) Load(ctx context.Context, taskID string) (Seed, error) {
	if strings.TrimSpace(l.BaseURL) == "" {
		return Seed{}, fmt.Errorf("task data base url is required")
	}
	if strings.TrimSpace(taskID) == "" {
		return Seed{}, fmt.Errorf("task id is required")
	}

	seed := Seed{TaskID: taskID}

	if err := l.fetchDocument(ctx, taskID, initialStateDocument, &seed.Initial); err != nil {
		return Seed{}, err
	}
	if err := l.fetchDocument(ctx, taskID, worldObjectsDocument, &seed.WorldObjects); err != nil {
		return Seed{}, err
	}
	if err := l.fetchDocument(ctx, taskID, targetDeltasDocument, &seed.TargetDeltas); err != nil {
		return Seed{}, err
	}

	return seed, nil
}

func (l *HTTPLoader) fetchDocument(ctx context.Context, taskID, name string, target any) error {
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(l.BaseURL, "/"), taskID, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", name, err)
	}

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
