package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"linear_reminder_bot/internal/infra/config"
)

// ErrCommentRejected is returned when Linear answers but does not create the comment.
var ErrCommentRejected = errors.New("linear rejected comment")

const commentCreateMutation = `mutation CommentCreate($input: CommentCreateInput!) {
  commentCreate(input: $input) { success }
}`

// maxErrorBody bounds how much of an error response ends up in logs.
const maxErrorBody = 4 << 10

// GraphQLClient implements the domain linear.Client against the Linear GraphQL API.
type GraphQLClient struct {
	httpClient *http.Client
	apiURL     string
	apiKey     config.Secret
}

func NewGraphQLClient(cfg config.LinearConfig, httpClient *http.Client) *GraphQLClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GraphQLClient{
		httpClient: httpClient,
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type commentCreateResponse struct {
	Data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateComment posts body as a comment on the issue. The caller's context
// bounds the whole round trip.
func (c *GraphQLClient) CreateComment(ctx context.Context, issueID, body string) error {
	payload, err := json.Marshal(graphQLRequest{
		Query: commentCreateMutation,
		Variables: map[string]any{
			"input": map[string]string{"issueId": issueID, "body": body},
		},
	})
	if err != nil {
		return fmt.Errorf("encode comment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// personal API keys are sent bare, without a Bearer prefix
	req.Header.Set("Authorization", c.apiKey.Reveal())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrCommentRejected, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out commentCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode comment response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrCommentRejected, strings.Join(msgs, "; "))
	}
	if !out.Data.CommentCreate.Success {
		return fmt.Errorf("%w: success=false", ErrCommentRejected)
	}
	return nil
}
