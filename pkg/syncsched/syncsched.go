// Package syncsched implements the Sync Scheduler: per-namespace batch
// timers that deliver pending local operations to the remote service,
// classify responses, and retry failures on a fixed delay table.
package syncsched

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/rs/zerolog"
)

// Outcome classifies a delivered operation's remote response.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailure   Outcome = "failure"
)

// Delivered is reported on DeliveredCh for every operation a sync cycle
// attempted, so the kernel can update its log and fan out progress.
type Delivered struct {
	EnvelopeID string
	Outcome    Outcome
}

// wireResponse matches the outbound mutation call's JSON contract.
type wireResponse struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	OperationID string          `json:"operationId"`
	Message     string          `json:"message,omitempty"`
}

// Scheduler owns one batch timer per namespace and runs at most one
// sync cycle per namespace concurrently.
type Scheduler struct {
	store      storage.Store
	httpClient *http.Client
	baseURL    string
	cfg        config.Sync
	logger     zerolog.Logger

	DeliveredCh chan Delivered

	mu       sync.Mutex
	timers   map[string]*time.Timer
	running  map[string]bool
	online   bool
	stopCh   chan struct{}
	stopOnce sync.Once
	failed   map[string]int
}

// New builds a Scheduler whose outbound calls target baseURL within
// timeout, and whose batching/retry behavior follows cfg.
func New(store storage.Store, baseURL string, cfg config.Sync, timeout time.Duration) *Scheduler {
	return &Scheduler{
		store:       store,
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		cfg:         cfg,
		logger:      log.WithComponent("syncsched"),
		DeliveredCh: make(chan Delivered, 256),
		timers:      make(map[string]*time.Timer),
		running:     make(map[string]bool),
		online:      true,
		stopCh:      make(chan struct{}),
		failed:      make(map[string]int),
	}
}

// FailedCount returns how many operations have exhausted their retry
// budget for namespace and stopped retrying.
func (s *Scheduler) FailedCount(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[namespace]
}

// Stop halts every pending timer. Safe to call once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		for _, t := range s.timers {
			t.Stop()
		}
		s.mu.Unlock()
	})
}

// SetOnline toggles connectivity. Going online immediately schedules a
// cycle for every namespace with pending operations; going offline
// suppresses future cycles without canceling one already in flight.
func (s *Scheduler) SetOnline(online bool, pendingNamespaces []string) {
	s.mu.Lock()
	wasOffline := !s.online
	s.online = online
	s.mu.Unlock()

	if online && wasOffline {
		for _, ns := range pendingNamespaces {
			s.TriggerCycle(ns)
		}
	}
}

// NotifyDispatch arms (or leaves running) the per-namespace batch
// timer. A dispatch within an already-armed window extends nothing.
func (s *Scheduler) NotifyDispatch(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, armed := s.timers[namespace]; armed {
		return
	}
	s.timers[namespace] = time.AfterFunc(s.cfg.BatchWindow(), func() {
		s.mu.Lock()
		delete(s.timers, namespace)
		s.mu.Unlock()
		s.TriggerCycle(namespace)
	})
}

// TriggerCycle runs one sync cycle for namespace unless one is already
// in progress or the scheduler is offline.
func (s *Scheduler) TriggerCycle(namespace string) {
	s.mu.Lock()
	if !s.online || s.running[namespace] {
		s.mu.Unlock()
		return
	}
	s.running[namespace] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, namespace)
			s.mu.Unlock()
		}()
		s.runCycle(namespace)
	}()
}

// DeliverNow ships envelope right away, bypassing the batch window and
// the rest of its namespace's pending operations, and reports whether
// delivery succeeded. A failure still schedules a retry through the
// normal table rather than dropping the envelope.
func (s *Scheduler) DeliverNow(envelope *types.Envelope) bool {
	outcome, err := s.deliver(envelope)
	if err != nil {
		outcome = OutcomeFailure
	}
	switch outcome {
	case OutcomeSuccess, OutcomeDuplicate:
		if err := s.store.MarkProcessed([]string{envelope.ID}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to mark operation processed")
		}
	case OutcomeFailure:
		if err := s.store.MarkFailed([]string{envelope.ID}, true); err != nil {
			s.logger.Warn().Err(err).Msg("failed to mark operation failed")
		}
		s.scheduleRetry(envelope.Namespace, envelope)
	}
	select {
	case s.DeliveredCh <- Delivered{EnvelopeID: envelope.ID, Outcome: outcome}:
	default:
	}
	return outcome == OutcomeSuccess || outcome == OutcomeDuplicate
}

func (s *Scheduler) runCycle(namespace string) {
	timer := metrics.NewTimer()
	outcome := "success"
	defer func() {
		metrics.SyncCyclesTotal.WithLabelValues(namespace, outcome).Inc()
		timer.ObserveDurationVec(metrics.SyncCycleDuration, namespace)
	}()

	pending, err := s.store.GetPending(namespace)
	if err != nil {
		s.logger.Warn().Err(err).Str("namespace", namespace).Msg("failed to load pending operations")
		outcome = "error"
		return
	}

	var succeeded, failed []string
	for _, envelope := range pending {
		deliveredOutcome, err := s.deliver(envelope)
		if err != nil {
			s.logger.Warn().Err(err).Str("envelope", envelope.ID).Msg("delivery error")
			deliveredOutcome = OutcomeFailure
		}
		switch deliveredOutcome {
		case OutcomeSuccess, OutcomeDuplicate:
			succeeded = append(succeeded, envelope.ID)
		case OutcomeFailure:
			failed = append(failed, envelope.ID)
			outcome = "failure"
			s.scheduleRetry(namespace, envelope)
		}
		select {
		case s.DeliveredCh <- Delivered{EnvelopeID: envelope.ID, Outcome: deliveredOutcome}:
		default:
		}
	}

	if len(succeeded) > 0 {
		if err := s.store.MarkProcessed(succeeded); err != nil {
			s.logger.Warn().Err(err).Msg("failed to mark operations processed")
		}
	}
	if len(failed) > 0 {
		if err := s.store.MarkFailed(failed, true); err != nil {
			s.logger.Warn().Err(err).Msg("failed to mark operations failed")
		}
	}
}

// scheduleRetry arms a retry for envelope unless it has already
// exhausted cfg.MaxRetries, in which case it stops retrying and counts
// toward FailedCount instead (surfaced via GetSyncStatus's failedCount).
func (s *Scheduler) scheduleRetry(namespace string, envelope *types.Envelope) {
	if s.cfg.MaxRetries > 0 && envelope.RetryCount+1 >= s.cfg.MaxRetries {
		s.mu.Lock()
		s.failed[namespace]++
		s.mu.Unlock()
		s.logger.Warn().Str("envelope", envelope.ID).Int("retryCount", envelope.RetryCount+1).
			Msg("operation exhausted retry budget, giving up")
		return
	}

	delay := s.cfg.RetryDelay(envelope.RetryCount + 1)
	time.AfterFunc(delay, func() {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.TriggerCycle(namespace)
	})
}

// deliver ships one envelope to its per-type endpoint and classifies
// the response.
func (s *Scheduler) deliver(envelope *types.Envelope) (Outcome, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OperationDeliveryDuration)

	method, action := endpointFor(envelope.Op.Tag)
	url := fmt.Sprintf("%s/operations/%s/%s", s.baseURL, envelope.Namespace, action)

	body, err := json.Marshal(envelope)
	if err != nil {
		return OutcomeFailure, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return OutcomeFailure, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return OutcomeFailure, errs.Wrap(errs.ErrOutboundTimeout, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return OutcomeFailure, errs.Wrap(errs.ErrOutboundHTTPError, resp.Status)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return OutcomeFailure, err
	}
	if wire.Message == "Operation already processed" {
		return OutcomeDuplicate, nil
	}
	if !wire.Success {
		return OutcomeFailure, nil
	}
	return OutcomeSuccess, nil
}

// endpointFor maps an operation tag to its outbound HTTP method and
// action segment, per the external interfaces contract.
func endpointFor(tag types.OpTag) (method, action string) {
	switch tag {
	case types.OpCreateFolder, types.OpCreateBookmark, types.OpMoveNode:
		return http.MethodPost, string(tag)
	case types.OpRemoveNode:
		return http.MethodDelete, string(tag)
	default:
		return http.MethodPut, string(tag)
	}
}
