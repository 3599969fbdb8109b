package statemanager

import (
	"sync"
	"time"

	"hybrid-grid-bot-go/internal/models"
	"hybrid-grid-bot-go/internal/persistence"

	"go.uber.org/zap"
)

// EventType defines the type of a normalized event
type EventType int

const (
	// SnapshotEvent replaces the held state with a fresh engine snapshot.
	SnapshotEvent EventType = iota
	// StateResetEvent replaces the state and, when Data is nil, deletes the stored snapshot.
	StateResetEvent
	// StatusEvent records the latest status event on the held state.
	StatusEvent
)

// NormalizedEvent is a standardized internal representation of an event
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// StateManager serializes every mutation of the persisted bot state and
// writes snapshots asynchronously.
type StateManager struct {
	mu              sync.RWMutex
	symbol          string
	state           *models.BotState
	repo            persistence.StateRepository
	eventChannel    chan NormalizedEvent
	persistenceChan chan *models.BotState
	stopChan        chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
	logger          *zap.Logger
}

// NewStateManager creates a new StateManager. initialState may be nil.
func NewStateManager(symbol string, initialState *models.BotState, repo persistence.StateRepository, logger *zap.Logger) *StateManager {
	return &StateManager{
		symbol:          symbol,
		state:           initialState,
		repo:            repo,
		eventChannel:    make(chan NormalizedEvent, 1024),
		persistenceChan: make(chan *models.BotState, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the event processing and persistence loops.
func (sm *StateManager) Start() {
	sm.wg.Add(2)
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Sugar().Infow("StateManager started.", "symbol", sm.symbol)
}

// Stop drains queued events and snapshots, then shuts both loops down.
func (sm *StateManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
		sm.wg.Wait()
		sm.logger.Sugar().Infow("StateManager stopped.", "symbol", sm.symbol)
	})
}

// DispatchEvent sends an event to the StateManager for processing.
func (sm *StateManager) DispatchEvent(event NormalizedEvent) {
	select {
	case sm.eventChannel <- event:
	case <-sm.stopChan:
		sm.logger.Sugar().Warnf("StateManager stopped, dropping event type %d", event.Type)
	}
}

// GetStateSnapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) GetStateSnapshot() *models.BotState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return deepCopy(sm.state)
}

func deepCopy(s *models.BotState) *models.BotState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Grid.Levels != nil {
		c.Grid.Levels = make([]models.GridLevel, len(s.Grid.Levels))
		copy(c.Grid.Levels, s.Grid.Levels)
	}
	if s.LastStatus != nil {
		st := *s.LastStatus
		if st.Reasons != nil {
			st.Reasons = append([]string(nil), st.Reasons...)
		}
		c.LastStatus = &st
	}
	return &c
}

func (sm *StateManager) eventLoop() {
	defer sm.wg.Done()
	for {
		select {
		case event := <-sm.eventChannel:
			sm.processEvent(event)
		case <-sm.stopChan:
			for {
				select {
				case event := <-sm.eventChannel:
					sm.processEvent(event)
				default:
					close(sm.persistenceChan)
					return
				}
			}
		}
	}
}

// persistenceLoop saves snapshots until the event loop closes the channel.
func (sm *StateManager) persistenceLoop() {
	defer sm.wg.Done()
	for stateToSave := range sm.persistenceChan {
		if sm.repo == nil {
			continue
		}
		var err error
		if stateToSave.BotID == "" {
			err = sm.repo.DeleteState(sm.symbol)
		} else {
			err = sm.repo.SaveState(stateToSave)
		}
		if err != nil {
			sm.logger.Sugar().Errorf("CRITICAL: Failed to save state: %v", err)
		}
	}
}

func (sm *StateManager) processEvent(event NormalizedEvent) {
	sm.mu.Lock()
	switch event.Type {
	case SnapshotEvent:
		if snap, ok := event.Data.(*models.BotState); ok && snap != nil {
			last := (*models.StatusEvent)(nil)
			if sm.state != nil {
				last = sm.state.LastStatus
			}
			sm.state = deepCopy(snap)
			if sm.state.LastStatus == nil {
				sm.state.LastStatus = last
			}
		} else {
			sm.logger.Sugar().Warnf("Received SnapshotEvent with unexpected data type: %T", event.Data)
			sm.mu.Unlock()
			return
		}
	case StateResetEvent:
		newState, ok := event.Data.(*models.BotState)
		if !ok && event.Data != nil {
			sm.logger.Sugar().Warnf("Received StateResetEvent with unexpected data type: %T", event.Data)
			sm.mu.Unlock()
			return
		}
		sm.state = deepCopy(newState)
		sm.logger.Sugar().Info("State has been reset.")
	case StatusEvent:
		ev, ok := event.Data.(models.StatusEvent)
		if !ok {
			sm.logger.Sugar().Warnf("Received StatusEvent with unexpected data type: %T", event.Data)
			sm.mu.Unlock()
			return
		}
		if sm.state == nil {
			sm.state = &models.BotState{Symbol: sm.symbol}
		}
		sm.state.LastStatus = &ev
	}

	var toSave *models.BotState
	if sm.state != nil {
		ts := event.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		sm.state.LastUpdateTime = ts
		toSave = deepCopy(sm.state)
	} else {
		// an empty BotID tells the persistence loop to delete
		toSave = &models.BotState{Symbol: sm.symbol}
	}
	sm.mu.Unlock()

	sm.persistenceChan <- toSave
}
