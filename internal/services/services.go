package services

import (
	"net/http"
	"sync"

	"github.com/deepgram/connected/internal/config"
	"github.com/deepgram/connected/internal/connections"
	"github.com/deepgram/connected/internal/infrastructure/redis"
	"github.com/deepgram/connected/internal/services/drill"
	"github.com/deepgram/connected/internal/services/session"
	"github.com/deepgram/connected/pkg/logger"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	redisService  *redis.Service
	sessionClient *session.Client
	drillService  *drill.Service
	poller        *drill.Poller
	connManager   *connections.Manager
	loginPath     string
}

// Options overrides pieces of the default wiring, mainly for tests.
type Options struct {
	APIBaseURL string
	Store      session.Store
	Navigator  session.Navigator
	Poller     *drill.PollerConfig
}

// InitializeServices wires the services from the environment
func InitializeServices() (*Services, error) {
	return InitializeServicesWithOptions(Options{})
}

func InitializeServicesWithOptions(opts Options) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	logger.Info(logger.SERVICE, "Initializing core services")

	// Redis is optional; without it sessions live in memory
	redisService := redis.NewService()

	store := opts.Store
	if store == nil {
		store = session.NewStore(redisService, config.GetSessionStorePrefix())
	}

	baseURL := opts.APIBaseURL
	if baseURL == "" {
		baseURL = config.GetAPIBaseURL()
	}

	clientOpts := []session.Option{
		session.WithHTTPClient(&http.Client{Timeout: config.GetHTTPTimeout()}),
	}
	if opts.Navigator != nil {
		clientOpts = append(clientOpts, session.WithNavigator(opts.Navigator))
	}
	sessionClient := session.NewClient(baseURL, store, clientOpts...)
	logger.Info(logger.SERVICE, "Session client targeting %s", baseURL)

	drillService := drill.NewService(sessionClient)

	pollerCfg := drill.DefaultPollerConfig()
	if opts.Poller != nil {
		pollerCfg = *opts.Poller
	}
	poller := drill.NewPoller(drillService, sessionClient.Navigator(), pollerCfg)

	logger.Info(logger.SERVICE, "All services initialized successfully")

	return &Services{
		redisService:  redisService,
		sessionClient: sessionClient,
		drillService:  drillService,
		poller:        poller,
		connManager:   connections.NewManager(connections.DefaultTimeouts),
		loginPath:     pollerCfg.LoginPath,
	}, nil
}

func (s *Services) GetSessionClient() *session.Client {
	return s.sessionClient
}

func (s *Services) GetDrillService() *drill.Service {
	return s.drillService
}

func (s *Services) GetPoller() *drill.Poller {
	return s.poller
}

func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connManager
}

// GetLoginPath is where unauthenticated callers are sent
func (s *Services) GetLoginPath() string {
	if s.loginPath == "" {
		return config.GetLoginPath()
	}
	return s.loginPath
}

// Shutdown closes watcher sockets and the Redis connection
func (s *Services) Shutdown() {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	if n := s.connManager.GetConnectionCount(); n > 0 {
		logger.Info(logger.SERVICE, "Closing %d drill watcher connections", n)
	}
	s.connManager.CloseAll()
	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			logger.Warn(logger.SERVICE, "Failed to close Redis: %v", err)
		}
	}
}
