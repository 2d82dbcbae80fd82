package alerts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ats-dashboard-feed/pkg/models"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrAlertExists   = errors.New("alert already exists")
	ErrInvalidAlert  = errors.New("invalid alert")
)

// Store keeps alerts in memory, indexed by symbol. Reads return copies.
type Store struct {
	alerts      map[string]*models.Alert
	symbolIndex map[string][]string
	mu          sync.RWMutex
}

// NewStore creates a new in-memory alert store
func NewStore() *Store {
	return &Store{
		alerts:      make(map[string]*models.Alert),
		symbolIndex: make(map[string][]string),
	}
}

func Validate(alert *models.Alert) error {
	switch {
	case alert.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidAlert)
	case !models.IsAlertField(alert.Field):
		return fmt.Errorf("%w: unknown field %q", ErrInvalidAlert, alert.Field)
	case alert.Comparator == models.ComparatorUnspecified:
		return fmt.Errorf("%w: comparator is required", ErrInvalidAlert)
	}
	return nil
}

func (s *Store) Create(alert *models.Alert) error {
	if err := Validate(alert); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; exists {
		return ErrAlertExists
	}

	s.alerts[alert.ID] = alert
	s.symbolIndex[alert.Symbol] = append(s.symbolIndex[alert.Symbol], alert.ID)

	return nil
}

func (s *Store) Get(id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, exists := s.alerts[id]
	if !exists {
		return nil, ErrAlertNotFound
	}

	alertCopy := *alert
	return &alertCopy, nil
}

func (s *Store) SetEnabled(id string, enabled bool) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alerts[id]
	if !exists {
		return nil, ErrAlertNotFound
	}
	alert.Enabled = enabled

	alertCopy := *alert
	return &alertCopy, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alerts[id]
	if !exists {
		return ErrAlertNotFound
	}

	ids := s.symbolIndex[alert.Symbol]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.symbolIndex, alert.Symbol)
	} else {
		s.symbolIndex[alert.Symbol] = ids
	}

	delete(s.alerts, id)
	return nil
}

// List returns copies of every alert ordered by symbol, then ID.
func (s *Store) List() []*models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		alertCopy := *alert
		alerts = append(alerts, &alertCopy)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Symbol != alerts[j].Symbol {
			return alerts[i].Symbol < alerts[j].Symbol
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

func (s *Store) EnabledBySymbol(symbol string) []*models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.symbolIndex[symbol]
	alerts := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		if alert, exists := s.alerts[id]; exists && alert.Enabled {
			alertCopy := *alert
			alerts = append(alerts, &alertCopy)
		}
	}
	return alerts
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *Store) MarkTriggered(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alerts[id]
	if !exists {
		return ErrAlertNotFound
	}

	alert.MarkTriggered(at)
	return nil
}
