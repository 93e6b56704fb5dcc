package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Confirmer confirms one optimistic award with the remote ledger.
// A nil error means the remote accepted the award.
type Confirmer interface {
	Confirm(ctx context.Context, challengeID string, points int) error
}

// ConfirmRequest is the JSON body posted by HTTPConfirmer.
type ConfirmRequest struct {
	ChallengeID   string `json:"challengeId"`
	PointsAwarded int    `json:"pointsAwarded"`
}

// HTTPConfirmer posts confirmations to a remote endpoint. Any 2xx response
// is success.
type HTTPConfirmer struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPConfirmer creates an HTTPConfirmer with its own client timeout.
func NewHTTPConfirmer(endpoint string, timeout time.Duration) *HTTPConfirmer {
	return &HTTPConfirmer{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Confirm implements Confirmer.
func (c *HTTPConfirmer) Confirm(ctx context.Context, challengeID string, points int) error {
	body, err := json.Marshal(ConfirmRequest{ChallengeID: challengeID, PointsAwarded: points})
	if err != nil {
		return fmt.Errorf("marshal confirm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ConfirmError{ChallengeID: challengeID, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ConfirmError{ChallengeID: challengeID, StatusCode: resp.StatusCode}
	}
	return nil
}

// SimulatedConfirmer stands in for a remote ledger: it waits Latency and
// then succeeds with probability SuccessRate.
type SimulatedConfirmer struct {
	Latency     time.Duration
	SuccessRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedConfirmer creates a SimulatedConfirmer. The seed makes the
// success draws reproducible.
func NewSimulatedConfirmer(latency time.Duration, successRate float64, seed uint64) *SimulatedConfirmer {
	return &SimulatedConfirmer{
		Latency:     latency,
		SuccessRate: successRate,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Confirm implements Confirmer.
func (c *SimulatedConfirmer) Confirm(ctx context.Context, challengeID string, points int) error {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	draw := c.rng.Float64()
	c.mu.Unlock()

	if draw < c.SuccessRate {
		return nil
	}
	return &ConfirmError{ChallengeID: challengeID, Err: ErrSimulatedFailure}
}

// NopConfirmer accepts every award.
type NopConfirmer struct{}

// Confirm implements Confirmer.
func (NopConfirmer) Confirm(context.Context, string, int) error {
	return nil
}
