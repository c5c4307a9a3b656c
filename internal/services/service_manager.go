package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/lesson-sync-service/internal/cache"
	"github.com/SAP-F-2025/lesson-sync-service/internal/events"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

// ServiceManagerConfig carries everything the services need.
type ServiceManagerConfig struct {
	Repository      repositories.Repository
	DB              *gorm.DB
	Client          ws.LessonWebService
	CacheManager    *cache.CacheManager
	Publisher       events.EventPublisher
	Validator       *validator.Validator
	Logger          *slog.Logger
	MinSyncInterval time.Duration
}

type serviceManager struct {
	config ServiceManagerConfig

	lesson   LessonService
	offline  OfflineService
	password PasswordService
	sync     SyncService

	mu          sync.RWMutex
	initialized bool
}

// NewServiceManager creates a manager; call Initialize before using the
// service getters.
func NewServiceManager(config ServiceManagerConfig) ServiceManager {
	return &serviceManager{config: config}
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return fmt.Errorf("service manager already initialized")
	}
	if m.config.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if m.config.Client == nil {
		return fmt.Errorf("web service client is required")
	}
	if m.config.Logger == nil {
		m.config.Logger = slog.Default()
	}
	if m.config.Validator == nil {
		m.config.Validator = validator.New()
	}

	m.lesson = NewLessonService(m.config.Logger)
	m.offline = NewOfflineService(m.config.Repository, m.config.DB, m.config.Logger, m.config.Validator, m.lesson)
	m.password = NewPasswordService(m.config.Repository, m.config.Client, m.config.CacheManager, m.config.Logger)
	m.sync = NewSyncService(
		m.config.Repository,
		m.config.Client,
		m.offline,
		m.password,
		m.config.CacheManager,
		m.config.Publisher,
		m.config.Logger,
		m.config.MinSyncInterval,
	)

	m.initialized = true
	m.config.Logger.Info("service manager initialized")
	return nil
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}

	if m.config.Publisher != nil {
		if err := m.config.Publisher.Close(); err != nil {
			m.config.Logger.Warn("failed to close event publisher", "error", err)
		}
	}

	m.initialized = false
	m.config.Logger.Info("service manager shut down")
	return nil
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if err := m.config.Repository.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	if m.config.CacheManager != nil {
		if err := m.config.CacheManager.HealthCheck(ctx); err != nil {
			// The cache is optional; degraded is not down.
			m.config.Logger.Warn("cache health check failed", "error", err)
		}
	}
	return nil
}

func (m *serviceManager) Lesson() LessonService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeInitialized()
	return m.lesson
}

func (m *serviceManager) Offline() OfflineService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeInitialized()
	return m.offline
}

func (m *serviceManager) Password() PasswordService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeInitialized()
	return m.password
}

func (m *serviceManager) Sync() SyncService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeInitialized()
	return m.sync
}

func (m *serviceManager) mustBeInitialized() {
	if !m.initialized {
		panic("service manager used before Initialize")
	}
}
