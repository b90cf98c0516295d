package geoquest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/minus-twelve/geoquest/badge"
	"github.com/minus-twelve/geoquest/catalog"
	"github.com/minus-twelve/geoquest/geo"
	"github.com/minus-twelve/geoquest/storage"
	"github.com/minus-twelve/geoquest/token"
	"github.com/minus-twelve/geoquest/types"
)

const completionMessage = "Congratulations! You have completed the challenge!"

// Rules are the per-stage limits applied by Verify.
type Rules struct {
	MaxAttempts     int
	ToleranceMeters float64
}

// RiddleView is the client-facing part of a riddle.
type RiddleView struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Total  int    `json:"total"`
}

type StartResult struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token"`
	Riddle    RiddleView `json:"riddle"`
	SessionID string     `json:"-"`
}

type StatusResult struct {
	CurrentRiddle    RiddleView `json:"currentRiddle"`
	CompletedRiddles []int      `json:"completedRiddles"`
	AttemptsLeft     int        `json:"attemptsLeft"`
	Completed        bool       `json:"completed"`
}

// VerifyResult covers the three Verify outcomes: advanced to the next
// riddle, completed the challenge, or missed the target.
type VerifyResult struct {
	Success          bool        `json:"success"`
	Badge            string      `json:"badge,omitempty"`
	NextRiddle       *RiddleView `json:"nextRiddle,omitempty"`
	Token            string      `json:"token,omitempty"`
	Completed        bool        `json:"completed,omitempty"`
	CompletionTimeMs int64       `json:"completionTimeMs,omitempty"`
	DistanceMeters   *float64    `json:"distanceMeters,omitempty"`
	AttemptsLeft     *int        `json:"attemptsLeft,omitempty"`
	Message          string      `json:"message,omitempty"`
}

// Challenge drives sessions through the riddle sequence.
type Challenge struct {
	store   Store
	catalog *catalog.Catalog
	tokens  *token.Service
	rules   Rules
	locks   stripedLock
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Challenge)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Challenge) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Challenge) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator replaces the uuid session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Challenge) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewChallenge wires the orchestrator. Missing collaborators or unusable
// rules are configuration errors.
func NewChallenge(store Store, cat *catalog.Catalog, tokens *token.Service, rules Rules, opts ...Option) (*Challenge, error) {
	switch {
	case store == nil:
		return nil, newError(CodeConfig, "session store is required")
	case cat == nil:
		return nil, newError(CodeConfig, "riddle catalog is required")
	case tokens == nil:
		return nil, newError(CodeConfig, "token service is required")
	case rules.MaxAttempts < 1:
		return nil, newError(CodeConfig, fmt.Sprintf("max attempts must be positive, got %d", rules.MaxAttempts))
	case rules.ToleranceMeters < 0 || math.IsNaN(rules.ToleranceMeters):
		return nil, newError(CodeConfig, fmt.Sprintf("tolerance must not be negative, got %v", rules.ToleranceMeters))
	}

	c := &Challenge{
		store:   store,
		catalog: cat,
		tokens:  tokens,
		rules:   rules,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start creates a session on riddle 1 and returns its first token.
func (c *Challenge) Start(ctx context.Context) (*StartResult, error) {
	first, ok := c.catalog.Get(1)
	if !ok {
		return nil, newError(CodeConfig, "riddle configuration error")
	}

	now := c.now()
	id := c.newID()

	tok, err := c.tokens.Issue(token.Payload{SessionID: id, CurrentRiddle: 1, StartTime: now})
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to start challenge", err)
	}

	if err := c.store.Create(ctx, id, types.NewSession(id, now)); err != nil {
		return nil, wrapError(CodeInternal, "failed to start challenge", err)
	}

	c.logger.Info("challenge started", "session_id", id)

	return &StartResult{
		Success:   true,
		Token:     tok,
		Riddle:    c.view(first),
		SessionID: id,
	}, nil
}

// Status reports progress for the session the token refers to. It never
// changes attempt counts.
func (c *Challenge) Status(ctx context.Context, rawToken string) (*StatusResult, error) {
	payload, err := c.authenticate(rawToken)
	if err != nil {
		return nil, err
	}
	session, err := c.loadSession(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}

	riddle, ok := c.catalog.Get(session.CurrentRiddle)
	if !ok {
		return nil, newError(CodeInvalidRiddle, "invalid riddle")
	}

	return &StatusResult{
		CurrentRiddle:    c.view(riddle),
		CompletedRiddles: session.CompletedRiddles,
		AttemptsLeft:     c.attemptsLeft(session),
		Completed:        session.Completed,
	}, nil
}

// Verify checks a reported position against the session's current riddle.
// An attempt is consumed as soon as the attempt limit check passes. All
// reads and writes of one session happen under that session's lock.
func (c *Challenge) Verify(ctx context.Context, rawToken string, lat, lng float64) (*VerifyResult, error) {
	payload, err := c.authenticate(rawToken)
	if err != nil {
		return nil, err
	}
	if !geo.ValidCoordinate(lat, lng) {
		return nil, newError(CodeInvalidInput, "latitude and longitude must be valid coordinates")
	}

	unlock := c.locks.lock(payload.SessionID)
	defer unlock()

	session, err := c.loadSession(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("session_id", session.ID, "riddle", session.CurrentRiddle)

	if session.Completed {
		return nil, newError(CodeChallengeCompleted, "challenge already completed")
	}

	current := session.CurrentRiddle
	riddle, ok := c.catalog.Get(current)
	if !ok {
		return nil, newError(CodeInvalidRiddle, "invalid riddle")
	}

	if session.AttemptsUsed(current) >= c.rules.MaxAttempts {
		log.Warn("attempts exhausted")
		return nil, newError(CodeAttemptsExhausted, "Maximum attempts exceeded for this riddle")
	}

	now := c.now()
	session.Attempts[current]++
	session.LastActivity = now

	distance := geo.DistanceMeters(lat, lng, riddle.Lat, riddle.Lng)
	rounded := geo.Round2(distance)

	if distance > c.rules.ToleranceMeters {
		if err := c.save(ctx, session); err != nil {
			return nil, err
		}
		left := c.attemptsLeft(session)
		log.Debug("location rejected", "distance_m", rounded, "attempts_left", left)
		return &VerifyResult{
			Success:        false,
			DistanceMeters: &rounded,
			AttemptsLeft:   &left,
			Message:        fmt.Sprintf("You are %dm away from the target location", int64(math.Round(distance))),
		}, nil
	}

	attemptOnly := session.Clone()
	session.CompletedRiddles = append(session.CompletedRiddles, current)
	reward := badge.Encode(riddle.Key)

	if next := current + 1; next <= c.catalog.Total() {
		nextRiddle, ok := c.catalog.Get(next)
		if !ok {
			c.keepAttempt(ctx, attemptOnly, log)
			return nil, newError(CodeInvalidRiddle, "invalid riddle")
		}
		tok, err := c.tokens.Issue(token.Payload{SessionID: session.ID, CurrentRiddle: next, StartTime: session.StartTime})
		if err != nil {
			c.keepAttempt(ctx, attemptOnly, log)
			return nil, wrapError(CodeInternal, "failed to verify location", err)
		}

		session.CurrentRiddle = next
		if err := c.save(ctx, session); err != nil {
			return nil, err
		}
		view := c.view(nextRiddle)
		log.Info("riddle solved", "next_riddle", next)
		return &VerifyResult{
			Success:        true,
			Badge:          reward,
			NextRiddle:     &view,
			Token:          tok,
			DistanceMeters: &rounded,
		}, nil
	}

	session.Completed = true
	session.CompletedAt = now
	if err := c.save(ctx, session); err != nil {
		return nil, err
	}
	elapsed := now.Sub(session.StartTime).Milliseconds()
	log.Info("challenge completed", "completion_ms", elapsed)
	return &VerifyResult{
		Success:          true,
		Badge:            reward,
		Completed:        true,
		CompletionTimeMs: elapsed,
		Message:          completionMessage,
	}, nil
}

// RunCleanup removes sessions idle longer than retention every interval
// until ctx is done.
func (c *Challenge) RunCleanup(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.store.Cleanup(ctx, retention); err != nil {
				c.logger.Error("session cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the session store.
func (c *Challenge) Close() error {
	return c.store.Close()
}

func (c *Challenge) authenticate(rawToken string) (token.Payload, error) {
	payload, err := c.tokens.Verify(rawToken)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, token.ErrMissing):
		return token.Payload{}, wrapError(CodeTokenMissing, "Access token required", err)
	case errors.Is(err, token.ErrExpired):
		return token.Payload{}, wrapError(CodeTokenExpired, "Token expired", err)
	default:
		return token.Payload{}, wrapError(CodeTokenInvalid, "Invalid token", err)
	}
}

func (c *Challenge) loadSession(ctx context.Context, id string) (types.Session, error) {
	session, err := c.store.Get(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return types.Session{}, wrapError(CodeSessionNotFound, "Session not found", err)
	}
	if err != nil {
		return types.Session{}, wrapError(CodeInternal, "failed to load session", err)
	}
	if session.Attempts == nil {
		session.Attempts = make(map[int]int)
	}
	return session, nil
}

func (c *Challenge) save(ctx context.Context, session types.Session) error {
	err := c.store.Put(ctx, session.ID, session)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return wrapError(CodeSessionNotFound, "Session not found", err)
	}
	if err != nil {
		return wrapError(CodeInternal, "failed to save session", err)
	}
	return nil
}

// keepAttempt persists a consumed attempt when the success path fails
// after the increment.
func (c *Challenge) keepAttempt(ctx context.Context, session types.Session, log *slog.Logger) {
	if err := c.save(ctx, session); err != nil {
		log.Error("failed to record attempt", "error", err)
	}
}

func (c *Challenge) attemptsLeft(session types.Session) int {
	left := c.rules.MaxAttempts - session.AttemptsUsed(session.CurrentRiddle)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Challenge) view(r types.Riddle) RiddleView {
	return RiddleView{Number: r.Number, Text: r.Text, Total: c.catalog.Total()}
}
