// Package fireflies fetches meeting transcripts from the Fireflies GraphQL API.
package fireflies

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

const transcriptQuery = `query Transcript($transcriptId: String!) {
  transcript(id: $transcriptId) {
    id
    title
    date
    duration
    organizer_email
    participants
    transcript_url
    summary { overview shorthand_bullet action_items keywords }
    sentences { speaker_name text }
  }
}`

const (
	maxTries     = 3
	maxBodyBytes = 32 << 20
)

var ErrTranscriptNotFound = errors.New("fireflies transcript not found")

type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

func NewClient(apiKey, endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: httpClient,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Transcript fetches one transcript. Network errors, 429 and 5xx responses
// are retried; everything else fails immediately.
func (c *Client) Transcript(ctx context.Context, id string) (*transcript.Input, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fireflies api key is not configured")
	}

	body, err := sjson.Set(`{}`, "query", transcriptQuery)
	if err != nil {
		return nil, fmt.Errorf("build fireflies query: %w", err)
	}
	if body, err = sjson.Set(body, "variables.transcriptId", id); err != nil {
		return nil, fmt.Errorf("build fireflies query: %w", err)
	}

	attempt := 0
	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		data, err := c.post(ctx, []byte(body))
		if err != nil && attempt < maxTries {
			var perm *backoff.PermanentError
			if !errors.As(err, &perm) {
				log.Printf("[fireflies] attempt %d for %s failed, retrying: %v", attempt, id, err)
			}
		}
		return data, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(maxTries))
	if err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", id, err)
	}

	if msg := gjson.GetBytes(raw, "errors.0.message"); msg.Exists() {
		return nil, fmt.Errorf("fetch transcript %s: graphql: %s", id, msg.String())
	}
	node := gjson.GetBytes(raw, "data.transcript")
	if !node.Exists() || node.Type == gjson.Null {
		return nil, fmt.Errorf("fetch transcript %s: %w", id, ErrTranscriptNotFound)
	}

	var in transcript.Input
	if err := json.Unmarshal([]byte(node.Raw), &in); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", id, err)
	}
	// The API reports duration in minutes.
	if in.DurationUnit == "" {
		in.DurationUnit = transcript.UnitMinutes
	}
	log.Printf("[fireflies] fetched %s %q (%d sentences)", in.ID, in.Title, len(in.Sentences))
	return &in, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "errors.0.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		err := fmt.Errorf("fireflies http %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	return data, nil
}
