// Package model provides the estimator lifecycle, shared interfaces and
// persistence helpers used by the transformer and the regressors.
package model

import (
	"sync"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// StateManager tracks the fitted state of an estimator in a thread-safe manner.
//
// Estimators in this module are single-use: Fit may succeed at most once, and
// every read path checks RequireFitted first.
type StateManager struct {
	mu sync.RWMutex

	name      string
	fitted    bool
	nFeatures int
	nSamples  int
}

// NewStateManager creates a StateManager for the estimator called name. The name
// appears in NotFittedError and AlreadyFitError messages.
func NewStateManager(name string) *StateManager {
	return &StateManager{name: name}
}

// Name returns the estimator name.
func (s *StateManager) Name() string {
	return s.name
}

// IsFitted returns whether the estimator has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// RequireFitted returns a NotFittedError naming method when the estimator is unfit.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(s.name, method)
	}
	return nil
}

// RequireUnfitted returns an AlreadyFitError when Fit has already succeeded.
func (s *StateManager) RequireUnfitted() error {
	if s.IsFitted() {
		return errors.NewAlreadyFitError(s.name)
	}
	return nil
}

// MarkFitted records a successful fit and the dimensions it saw.
// It fails with AlreadyFitError if another Fit won the race.
func (s *StateManager) MarkFitted(nFeatures, nSamples int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fitted {
		return errors.NewAlreadyFitError(s.name)
	}
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
	return nil
}

// Dimensions returns the number of features and samples seen during fitting.
func (s *StateManager) Dimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// ModelState is the serialisable form of a StateManager.
type ModelState struct {
	Fitted    bool
	NFeatures int
	NSamples  int
}

// State returns a snapshot for persistence.
func (s *StateManager) State() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{Fitted: s.fitted, NFeatures: s.nFeatures, NSamples: s.nSamples}
}

// RestoreState rebuilds a StateManager from a persisted snapshot.
func RestoreState(name string, state ModelState) *StateManager {
	return &StateManager{
		name:      name,
		fitted:    state.Fitted,
		nFeatures: state.NFeatures,
		nSamples:  state.NSamples,
	}
}
