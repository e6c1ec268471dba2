// services/match_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"arena-feedback-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchSpec is a match creation request. Single mode sets PaperID;
// comparison mode sets Paper1ID and Paper2ID.
type MatchSpec struct {
	Agent1ID string `json:"agent1_id"`
	Agent2ID string `json:"agent2_id"`
	JudgeID  string `json:"judge_id"`

	PaperID  string `json:"paper_id,omitempty"`
	Paper1ID string `json:"paper1_id,omitempty"`
	Paper2ID string `json:"paper2_id,omitempty"`

	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Year        int    `json:"year"`
}

// MatchOutcome is what the external agent runner produces for a match:
// the reviews plus the judge's overall score per paper.
type MatchOutcome struct {
	Reviews     []models.Review
	PaperScores map[string]float64
}

// AgentRunner drives the external review-agent service for one match. Its
// timeout/failure contract is its own; the orchestrator only reacts to the
// result. Errors should wrap ErrAgentUnavailable when the service itself
// was unreachable.
type AgentRunner interface {
	Run(ctx context.Context, match models.Match) (MatchOutcome, error)
}

// placeholderReview is the clearly marked synthetic review text attached
// when the reviewer service is down.
const placeholderReview = "Automated review unavailable: the external reviewer service could not be reached. " +
	"This placeholder result was generated so the match could resolve; scores are zeroed and no winner is declared."

// validTransitions mirrors the match lifecycle: no transition skips
// in_progress, terminal states accept nothing.
var validTransitions = map[string][]string{
	models.MatchStatusPending:    {models.MatchStatusInProgress, models.MatchStatusFailed},
	models.MatchStatusInProgress: {models.MatchStatusCompleted, models.MatchStatusFailed},
	models.MatchStatusCompleted:  {},
	models.MatchStatusFailed:     {},
}

// MatchService owns the match lifecycle state machine. It validates specs,
// drives the external agent runner, resolves every match to completed or
// failed (placeholder policy), and emits exactly one completion event per
// terminal transition.
type MatchService struct {
	DB     *gorm.DB // nil disables persistence and catalog lookups (tests)
	Runner AgentRunner

	// RunTimeout bounds a single runner invocation.
	RunTimeout time.Duration

	feedback *FeedbackService
	hub      *Hub // optional

	mu        sync.RWMutex
	matches   map[string]*models.Match
	listeners []func(models.Match)
}

func NewMatchService(db *gorm.DB, runner AgentRunner, feedback *FeedbackService) *MatchService {
	return &MatchService{
		DB:         db,
		Runner:     runner,
		RunTimeout: 5 * time.Minute,
		feedback:   feedback,
		matches:    make(map[string]*models.Match),
	}
}

// SetHub wires the realtime hub for match registration. Optional.
func (s *MatchService) SetHub(h *Hub) {
	s.hub = h
}

// OnCompletion registers a completion-event listener (ranking aggregator,
// metrics, …). Register before serving; listeners run synchronously in
// registration order on the match's own goroutine.
func (s *MatchService) OnCompletion(fn func(models.Match)) {
	s.listeners = append(s.listeners, fn)
}

// Create validates the spec, creates the match, moves it pending →
// in_progress and launches the agent runner. Validation failures produce
// no match record and no completion event.
func (s *MatchService) Create(spec MatchSpec) (models.Match, error) {
	if err := s.validate(spec); err != nil {
		return models.Match{}, err
	}

	paper1 := spec.PaperID
	var paper2 *string
	if paper1 == "" {
		paper1 = spec.Paper1ID
		p2 := spec.Paper2ID
		paper2 = &p2
	}

	match := &models.Match{
		ID:          uuid.NewString(),
		Status:      models.MatchStatusPending,
		Agent1ID:    spec.Agent1ID,
		Agent2ID:    spec.Agent2ID,
		JudgeID:     spec.JudgeID,
		Paper1ID:    paper1,
		Paper2ID:    paper2,
		Category:    spec.Category,
		Subcategory: spec.Subcategory,
		Year:        spec.Year,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.matches[match.ID] = match
	s.mu.Unlock()

	if s.DB != nil {
		if err := s.DB.Create(match).Error; err != nil {
			s.mu.Lock()
			delete(s.matches, match.ID)
			s.mu.Unlock()
			return models.Match{}, fmt.Errorf("failed to persist match: %w", err)
		}
	}

	s.feedback.Register(match.ID)
	if s.hub != nil {
		s.hub.RegisterMatch(*match)
	}

	// pending is observable but momentary: creation immediately hands the
	// match to the runner.
	if err := s.transition(match, models.MatchStatusInProgress); err != nil {
		return models.Match{}, err
	}
	go s.run(match.ID)

	log.Printf("[MATCH] created match %s (%s/%s/%d, comparison=%t)",
		match.ID, match.Category, match.Subcategory, match.Year, match.Comparison())
	return *match, nil
}

func (s *MatchService) validate(spec MatchSpec) error {
	if spec.Agent1ID == "" || spec.Agent2ID == "" || spec.JudgeID == "" {
		return validationf("a match needs exactly two agent refs and one judge ref")
	}
	if spec.Agent1ID == spec.Agent2ID || spec.Agent1ID == spec.JudgeID || spec.Agent2ID == spec.JudgeID {
		return validationf("agents and judge must all be different")
	}

	single := spec.PaperID != ""
	comparison := spec.Paper1ID != "" || spec.Paper2ID != ""
	switch {
	case single && comparison:
		return validationf("provide either paper_id or the paper1_id/paper2_id pair, not both")
	case comparison && (spec.Paper1ID == "" || spec.Paper2ID == ""):
		return validationf("comparison matches need both paper1_id and paper2_id")
	case comparison && spec.Paper1ID == spec.Paper2ID:
		return validationf("comparison matches need two distinct papers")
	case !single && !comparison:
		return validationf("provide paper_id (single) or paper1_id and paper2_id (comparison)")
	}

	if spec.Category == "" || spec.Subcategory == "" || spec.Year == 0 {
		return validationf("category, subcategory and year are required")
	}

	// Catalog lookups only when the mirrors are attached. A lookup failure
	// rejects the match — an unreachable catalog must not admit refs it
	// could not verify.
	if s.DB != nil {
		var n int64
		agentIDs := []string{spec.Agent1ID, spec.Agent2ID, spec.JudgeID}
		if err := s.DB.Model(&models.Agent{}).Where("id IN ?", agentIDs).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to verify agent refs: %w", err)
		}
		if n != 3 {
			return fmt.Errorf("one or more agents unknown: %w", ErrNotFound)
		}
		paperIDs := []string{spec.PaperID}
		if !single {
			paperIDs = []string{spec.Paper1ID, spec.Paper2ID}
		}
		if err := s.DB.Model(&models.Paper{}).Where("id IN ?", paperIDs).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to verify paper refs: %w", err)
		}
		if n != int64(len(paperIDs)) {
			return fmt.Errorf("one or more papers unknown: %w", ErrNotFound)
		}
	}
	return nil
}

// Get returns the match by id.
func (s *MatchService) Get(matchID string) (models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	if !ok {
		return models.Match{}, ErrNotFound
	}
	return *m, nil
}

// run waits on the agent runner and resolves the match. This is the only
// long-lived suspension in the service; other matches are unaffected.
func (s *MatchService) run(matchID string) {
	s.mu.RLock()
	match := *s.matches[matchID]
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.RunTimeout)
	defer cancel()

	outcome, err := s.Runner.Run(ctx, match)
	if err != nil {
		log.Printf("[MATCH] runner failed for match %s: %v — resolving with placeholder outcome", matchID, err)
		s.resolvePlaceholder(matchID, err)
		return
	}
	s.resolveCompleted(matchID, outcome)
}

// resolveCompleted attaches reviews and evaluation, determines the winner
// by comparing judge-assigned overall scores (comparison mode; equal scores
// are a draw), transitions to completed and emits the completion event.
func (s *MatchService) resolveCompleted(matchID string, outcome MatchOutcome) {
	s.mu.Lock()
	match, ok := s.matches[matchID]
	if !ok || match.Terminal() {
		s.mu.Unlock()
		return
	}

	match.Reviews = outcome.Reviews
	match.Paper1Score = outcome.PaperScores[match.Paper1ID]
	if match.Comparison() {
		match.Paper2Score = outcome.PaperScores[*match.Paper2ID]
		switch {
		case match.Paper1Score > match.Paper2Score:
			winner := match.Paper1ID
			match.WinnerPaperID = &winner
		case match.Paper2Score > match.Paper1Score:
			winner := *match.Paper2ID
			match.WinnerPaperID = &winner
		}
		// Equal scores: WinnerPaperID stays nil — a draw.
	}

	if err := s.transitionLocked(match, models.MatchStatusCompleted); err != nil {
		s.mu.Unlock()
		return
	}
	done := *match
	s.mu.Unlock()

	s.persistTerminal(done)
	s.emit(done)
}

// resolvePlaceholder converts an agent-runner outage into a normal failed
// completion: zeroed scores, explanatory placeholder reviews, no winner.
// The downstream ranking/feedback pipeline never stalls on a reviewer
// outage.
func (s *MatchService) resolvePlaceholder(matchID string, cause error) {
	s.mu.Lock()
	match, ok := s.matches[matchID]
	if !ok || match.Terminal() {
		s.mu.Unlock()
		return
	}

	match.Placeholder = true
	if errors.Is(cause, ErrAgentUnavailable) {
		match.Error = ErrAgentUnavailable.Error()
	} else {
		match.Error = cause.Error()
	}

	var reviews []models.Review
	for _, agentID := range []string{match.Agent1ID, match.Agent2ID} {
		for _, paperID := range match.PaperIDs() {
			reviews = append(reviews, models.Review{
				ID:        uuid.NewString(),
				MatchID:   match.ID,
				AgentID:   agentID,
				PaperID:   paperID,
				Content:   placeholderReview,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	match.Reviews = reviews
	match.Paper1Score = 0
	match.Paper2Score = 0
	match.WinnerPaperID = nil

	if err := s.transitionLocked(match, models.MatchStatusFailed); err != nil {
		s.mu.Unlock()
		return
	}
	done := *match
	s.mu.Unlock()

	s.persistTerminal(done)
	s.emit(done)
}

func (s *MatchService) transition(match *models.Match, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(match, to)
}

func (s *MatchService) transitionLocked(match *models.Match, to string) error {
	allowed := false
	for _, next := range validTransitions[match.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return validationf("invalid status transition from %s to %s", match.Status, to)
	}
	match.Status = to
	match.UpdatedAt = time.Now().UTC()
	if match.Terminal() {
		now := match.UpdatedAt
		match.CompletedAt = &now
	}
	return nil
}

func (s *MatchService) persistTerminal(match models.Match) {
	if s.DB == nil {
		return
	}
	if err := s.DB.Save(&match).Error; err != nil {
		log.Printf("[MATCH] failed to persist terminal match %s: %v", match.ID, err)
	}
	for i := range match.Reviews {
		if err := s.DB.Save(&match.Reviews[i]).Error; err != nil {
			log.Printf("[MATCH] failed to persist review %s: %v", match.Reviews[i].ID, err)
		}
	}
}

// emit delivers exactly one completion event per terminal transition.
func (s *MatchService) emit(match models.Match) {
	log.Printf("[MATCH] match %s resolved: status=%s placeholder=%t", match.ID, match.Status, match.Placeholder)
	for _, fn := range s.listeners {
		fn(match)
	}
}

// Load rehydrates the in-memory state from persisted matches on boot and
// re-registers their feedback partitions. Pending or stuck in_progress
// matches are left for the sweeper to resume or fail.
func (s *MatchService) Load() error {
	if s.DB == nil {
		return nil
	}
	var matches []models.Match
	if err := s.DB.Preload("Reviews").Find(&matches).Error; err != nil {
		return fmt.Errorf("failed to load matches: %w", err)
	}

	s.mu.Lock()
	for i := range matches {
		m := matches[i]
		s.matches[m.ID] = &m
	}
	s.mu.Unlock()

	for i := range matches {
		s.feedback.Register(matches[i].ID)
		if s.hub != nil {
			s.hub.RegisterMatch(matches[i])
		}
	}
	log.Printf("[MATCH] loaded %d matches from storage", len(matches))
	return nil
}

// ResumePending relaunches matches that were created but never handed to
// the runner (e.g. the service restarted between create and run).
func (s *MatchService) ResumePending() {
	s.mu.Lock()
	var resumed []string
	for id, m := range s.matches {
		if m.Status == models.MatchStatusPending {
			if err := s.transitionLocked(m, models.MatchStatusInProgress); err == nil {
				resumed = append(resumed, id)
			}
		}
	}
	s.mu.Unlock()

	for _, id := range resumed {
		log.Printf("[MATCH] resuming pending match %s", id)
		go s.run(id)
	}
}

// FailStale force-resolves matches stuck in_progress longer than maxAge
// with the placeholder policy. Covers runner invocations lost to a crash.
func (s *MatchService) FailStale(maxAge time.Duration) {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.RLock()
	var stale []string
	for id, m := range s.matches {
		if m.Status == models.MatchStatusInProgress && m.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[MATCH] match %s stuck in_progress past %s — forcing placeholder resolution", id, maxAge)
		s.resolvePlaceholder(id, ErrAgentUnavailable)
	}
}
