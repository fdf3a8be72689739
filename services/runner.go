package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/AI-Wars-Soc/matchmaker/utils"
)

// SubmissionResult is one player slot in the runner's response payload.
type SubmissionResult struct {
	Outcome    models.Outcome `json:"outcome"`
	Healthy    bool           `json:"healthy"`
	PlayerID   int            `json:"player_id"`
	Printed    string         `json:"printed"`
	ResultCode int            `json:"result_code"`
}

// MatchResult is the runner's full response for one match: a replay recording
// plus one result per requested submission, in seat order.
type MatchResult struct {
	Recording         json.RawMessage    `json:"recording"`
	SubmissionResults []SubmissionResult `json:"submission_results"`
}

// RunnerClient invokes the external match execution service.
type RunnerClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewRunnerClient(baseURL string) *RunnerClient {
	return &RunnerClient{BaseURL: baseURL, HTTPClient: utils.HTTPClient}
}

// RunMatch asks the runner to play one match between the given submission
// hashes, in seat order, and parses the outcome payload. A transport error,
// non-200 response or malformed payload fails the whole attempt; retrying is
// the caller's call, made on its next iteration.
func (c *RunnerClient) RunMatch(ctx context.Context, gamemode string, options json.RawMessage, hashes []string) (*MatchResult, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid runner URL %q: %w", c.BaseURL, err)
	}
	u = u.JoinPath("run")

	hashesJSON, err := json.Marshal(hashes)
	if err != nil {
		return nil, fmt.Errorf("encoding submission hashes: %w", err)
	}

	q := u.Query()
	q.Set("gamemode", gamemode)
	q.Set("options", string(options))
	q.Set("submissions", string(hashesJSON))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building runner request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling runner: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("runner returned status %d: %s", resp.StatusCode, string(body))
	}

	var result MatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding runner response: %w", err)
	}

	if len(result.SubmissionResults) != len(hashes) {
		return nil, fmt.Errorf("runner returned %d results for %d submissions",
			len(result.SubmissionResults), len(hashes))
	}
	for i, r := range result.SubmissionResults {
		if !r.Outcome.Valid() {
			return nil, fmt.Errorf("runner returned invalid outcome %d in slot %d", r.Outcome, i)
		}
	}
	return &result, nil
}
