package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
)

// Manager owns the lifecycle of the registered services. Services start
// concurrently and stop one by one in reverse registration order.
type Manager struct {
	logger   *logger.Logger
	services []Service
	statuses map[string]*ServiceStatus
	eventBus *EventBus
	mu       sync.RWMutex
	started  []Service
}

// Service represents a service that can be started and stopped.
// Start must not block once the service is serving.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// ServiceWithEvents is a service that can publish events
type ServiceWithEvents interface {
	Service
	SetEventBus(bus *EventBus)
}

// NewManager creates a new service manager
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		logger:   log,
		statuses: make(map[string]*ServiceStatus),
		eventBus: NewEventBus(256),
	}
}

// GetEventBus returns the bus injected into every ServiceWithEvents
func (m *Manager) GetEventBus() *EventBus {
	return m.eventBus
}

// Register adds a service. Registration order is the reverse of stop order.
func (m *Manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
	m.statuses[svc.Name()] = NewServiceStatus(svc.Name())

	if svcWithEvents, ok := svc.(ServiceWithEvents); ok {
		svcWithEvents.SetEventBus(m.eventBus)
	}
}

// Start starts every registered service and waits for all Start calls to
// return. Failed services are left in StatusError and reported together.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Starting services", "count", len(m.services))

	errs := make([]error, len(m.services))
	var wg sync.WaitGroup
	for i, svc := range m.services {
		status := m.statuses[svc.Name()]
		status.SetStatus(StatusStarting)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Start(ctx); err != nil {
				status.SetError(err)
				m.logger.Error("Service failed to start", "service", svc.Name(), "error", err)
				m.eventBus.Publish(Event{
					Type:   EventTypeServiceError,
					Source: svc.Name(),
					Data:   map[string]interface{}{"error": err.Error()},
				})
				errs[i] = fmt.Errorf("%s: %w", svc.Name(), err)
				return
			}
			status.SetStatus(StatusRunning)
			m.logger.Debug("Service started", "service", svc.Name())
			m.eventBus.Publish(Event{
				Type:   EventTypeServiceStarted,
				Source: "manager",
				Data:   map[string]interface{}{"service": svc.Name()},
			})
		}()
	}
	wg.Wait()

	m.started = m.started[:0]
	for i, svc := range m.services {
		if errs[i] == nil {
			m.started = append(m.started, svc)
		}
	}

	return errors.Join(errs...)
}

// Shutdown stops the started services in reverse registration order, then
// closes the event bus
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.eventBus.Close()

	m.logger.Info("Shutting down services", "count", len(m.started))

	for i := len(m.started) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return fmt.Errorf("shutdown timeout: %w", ctx.Err())
		}
		svc := m.started[i]
		status := m.statuses[svc.Name()]
		status.SetStatus(StatusStopping)

		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := svc.Stop(stopCtx)
		cancel()
		if err != nil {
			status.SetError(err)
			m.logger.Error("Error stopping service", "service", svc.Name(), "error", err)
		} else {
			status.SetStatus(StatusStopped)
			m.logger.Info("Service stopped", "service", svc.Name())
		}

		m.eventBus.Publish(Event{
			Type:   EventTypeServiceStopped,
			Source: "manager",
			Data:   map[string]interface{}{"service": svc.Name()},
		})
	}
	m.started = nil

	m.logger.Info("All services stopped")
	return nil
}

// GetServiceCount returns the number of registered services
func (m *Manager) GetServiceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// GetServiceStatus returns the status of a service
func (m *Manager) GetServiceStatus(serviceName string) *ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[serviceName]
}

// GetAllStatuses returns all service statuses
func (m *Manager) GetAllStatuses() map[string]*ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]*ServiceStatus, len(m.statuses))
	for name, status := range m.statuses {
		statuses[name] = status
	}
	return statuses
}
