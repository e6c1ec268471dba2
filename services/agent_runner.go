// services/agent_runner.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"arena-feedback-system/models"
)

// HTTPAgentRunner calls the external agent-runner service that executes the
// two reviewer agents and the judge for a match. A dead or unreachable
// service surfaces as ErrAgentUnavailable, which the match orchestrator
// converts into a placeholder resolution.
type HTTPAgentRunner struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type runMatchRequest struct {
	MatchID     string   `json:"match_id"`
	Agent1ID    string   `json:"agent1_id"`
	Agent2ID    string   `json:"agent2_id"`
	JudgeID     string   `json:"judge_id"`
	PaperIDs    []string `json:"paper_ids"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Year        int      `json:"year"`
}

type runMatchResponse struct {
	Reviews []struct {
		AgentID        string  `json:"agent_id"`
		PaperID        string  `json:"paper_id"`
		Content        string  `json:"content"`
		TechnicalScore float64 `json:"technical_score"`
		DepthScore     float64 `json:"depth_score"`
		FeedbackScore  float64 `json:"feedback_score"`
		ClarityScore   float64 `json:"clarity_score"`
		FairnessScore  float64 `json:"fairness_score"`
		OverallScore   float64 `json:"overall_score"`
	} `json:"reviews"`
	PaperScores map[string]float64 `json:"paper_scores"`
}

func NewHTTPAgentRunner(baseURL, token string) *HTTPAgentRunner {
	return &HTTPAgentRunner{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			// Agent runs involve multiple LLM round trips; the orchestrator's
			// own context deadline is the real bound.
			Timeout: 6 * time.Minute,
		},
	}
}

// Run calls /matches/run on the agent-runner service and blocks until
// the reviews and judge scores come back.
func (c *HTTPAgentRunner) Run(ctx context.Context, match models.Match) (MatchOutcome, error) {
	url := fmt.Sprintf("%s/matches/run", c.BaseURL)

	reqBody := runMatchRequest{
		MatchID:     match.ID,
		Agent1ID:    match.Agent1ID,
		Agent2ID:    match.Agent2ID,
		JudgeID:     match.JudgeID,
		PaperIDs:    match.PaperIDs(),
		Category:    match.Category,
		Subcategory: match.Subcategory,
		Year:        match.Year,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return MatchOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("agent runner unreachable: %w: %v", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		log.Printf("AgentRunner /matches/run returned %d: %s", resp.StatusCode, string(body))
		return MatchOutcome{}, fmt.Errorf("agent runner returned %d: %w", resp.StatusCode, ErrAgentUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return MatchOutcome{}, fmt.Errorf("agent run rejected: %d: %s", resp.StatusCode, string(body))
	}

	var out runMatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return MatchOutcome{}, fmt.Errorf("agent runner sent malformed response: %w", err)
	}

	outcome := MatchOutcome{PaperScores: out.PaperScores}
	for _, r := range out.Reviews {
		outcome.Reviews = append(outcome.Reviews, models.Review{
			ID:             fmt.Sprintf("%s-%s-%s", match.ID, r.AgentID, r.PaperID),
			MatchID:        match.ID,
			AgentID:        r.AgentID,
			PaperID:        r.PaperID,
			Content:        r.Content,
			TechnicalScore: r.TechnicalScore,
			DepthScore:     r.DepthScore,
			FeedbackScore:  r.FeedbackScore,
			ClarityScore:   r.ClarityScore,
			FairnessScore:  r.FairnessScore,
			OverallScore:   r.OverallScore,
			CreatedAt:      time.Now().UTC(),
		})
	}
	return outcome, nil
}
