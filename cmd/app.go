package cmd

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/AzielCF/az-users/core/config"
	"github.com/AzielCF/az-users/core/database"
	extApp "github.com/AzielCF/az-users/externaldata/application"
	"github.com/AzielCF/az-users/infrastructure/external"
	"github.com/AzielCF/az-users/infrastructure/valkey"
	"github.com/AzielCF/az-users/pkg/utils"
	"github.com/AzielCF/az-users/resilience/cache"
	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/health"
	"github.com/AzielCF/az-users/resilience/metrics"
	"github.com/AzielCF/az-users/resilience/ratelimit"
	"github.com/AzielCF/az-users/resilience/repository"
	userApp "github.com/AzielCF/az-users/users/application"
	userRepo "github.com/AzielCF/az-users/users/repository"
)

const (
	lenientLimiterName = "global"
	strictLimiterName  = "strict"
	metricsNamespace   = "azusers"
)

// App is the dependency graph of a running instance.
type App struct {
	Config     *config.Config
	InstanceID string

	DB     *gorm.DB
	Memory *repository.MemoryStore
	Store  domain.SharedStore
	// counterStore backs the rate limiters. Nil when Valkey is disabled, so
	// limits are counted in process and reported as such.
	counterStore domain.SharedStore
	switcher     *repository.SwitchStore
	Detector     *health.Detector
	Reconnector  *health.Reconnector

	// Set once Valkey is reached, possibly long after startup.
	mu      sync.Mutex
	valkey  *valkey.Client
	monitor *health.Monitor

	Registry *prometheus.Registry
	Metrics  *metrics.Prometheus

	Lenient *ratelimit.Limiter
	Strict  *ratelimit.Limiter

	Users        *userApp.UserService
	ExternalData *extApp.ExternalDataService
}

// NewApp opens every dependency described by cfg. On error, anything already
// opened is released.
func NewApp(ctx context.Context, cfg *config.Config) (a *App, err error) {
	a = &App{
		Config:     cfg,
		InstanceID: utils.GetInstanceID(cfg.App.InstanceID),
		Registry:   prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewPrometheus(a.Registry, metricsNamespace)

	a.DB, err = database.NewDatabase(cfg)
	if err != nil {
		return a, err
	}
	users := userRepo.NewUserGormRepository(a.DB)
	if err = users.InitSchema(ctx); err != nil {
		return a, err
	}
	a.Users = userApp.NewUserService(users, cfg.Security.BcryptCost)

	a.openStore(ctx)

	a.Lenient, err = ratelimit.New(ratelimit.Config{
		Name:          lenientLimiterName,
		Window:        cfg.RateLimit.Window,
		Max:           cfg.RateLimit.MaxRequests,
		LocalCapacity: cfg.RateLimit.LocalCapacity,
		Metrics:       a.Metrics,
	}, a.counterStore, a.Detector)
	if err != nil {
		return a, err
	}
	a.Strict, err = ratelimit.New(ratelimit.Config{
		Name:          strictLimiterName,
		Window:        cfg.RateLimit.Window,
		Max:           cfg.RateLimit.StrictMax,
		LocalCapacity: cfg.RateLimit.LocalCapacity,
		Metrics:       a.Metrics,
	}, a.counterStore, a.Detector)
	if err != nil {
		return a, err
	}

	a.Metrics.StoreAvailable(a.Detector.IsAvailable())
	a.Detector.OnChange(a.Metrics.StoreAvailable)
	a.Detector.OnChange(a.Lenient.HandleAvailability)
	a.Detector.OnChange(a.Strict.HandleAvailability)

	source, err := external.NewClient(external.Config{
		URL:     cfg.External.APIURL,
		Timeout: cfg.External.Timeout,
	})
	if err != nil {
		return a, err
	}
	fetcher := cache.NewFetcher(a.Store, source, a.Detector, cache.Options{
		TTL:           cfg.Cache.TTL,
		StaleTTL:      cfg.Cache.StaleTTL,
		SourceTimeout: cfg.External.Timeout,
		Metrics:       a.Metrics,
	})
	a.ExternalData = extApp.NewExternalDataService(fetcher)

	if a.Reconnector != nil {
		a.Reconnector.Start(ctx)
	}

	logrus.Infof("[APP] instance %s ready (shared store: %s)", a.InstanceID, a.storeKind())
	return a, nil
}

// openStore picks the shared store. With Valkey enabled the service always
// runs on a SwitchStore: it starts on an empty in-process placeholder with the
// detector unavailable, and the reconnector swaps Valkey in as soon as it
// answers, at startup or later.
func (a *App) openStore(ctx context.Context) {
	cfg := a.Config
	a.Memory = repository.NewMemoryStore()

	if !cfg.Valkey.Enabled {
		a.Store = a.Memory
		a.Detector = health.NewDetector("memory", true)
		logrus.Warn("[VALKEY] disabled, cache and rate limits are local to this instance")
		return
	}

	a.switcher = repository.NewSwitchStore(a.Memory)
	a.Store = a.switcher
	a.counterStore = a.switcher
	a.Detector = health.NewDetector("valkey", false)
	a.Reconnector = health.NewReconnector(a.connectValkey, a.Detector, cfg.Health.PingInterval)

	if !a.Reconnector.TryNow(ctx) {
		logrus.Warnf("[VALKEY] %s unreachable at startup, running degraded and retrying every %s",
			cfg.Valkey.Address, cfg.Health.PingInterval)
	}
}

// connectValkey is the reconnector's ConnectFunc.
func (a *App) connectValkey(ctx context.Context) error {
	cfg := a.Config
	client, err := valkey.NewClient(valkey.Config{
		Address:      cfg.Valkey.Address,
		Password:     cfg.Valkey.Password,
		DB:           cfg.Valkey.DB,
		KeyPrefix:    cfg.Valkey.KeyPrefix,
		WriteTimeout: cfg.Valkey.OpTimeout,
	})
	if err != nil {
		return err
	}

	store := repository.NewValkeyStore(client, a.Detector, cfg.Valkey.OpTimeout)
	monitor := health.NewMonitor(store, a.Detector, cfg.Health.PingInterval, cfg.Valkey.OpTimeout)

	a.mu.Lock()
	a.valkey = client
	a.monitor = monitor
	a.mu.Unlock()

	a.switcher.Swap(store)
	monitor.Start(ctx)
	return nil
}

func (a *App) storeKind() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.valkey != nil:
		return "valkey"
	case a.switcher != nil:
		return "memory, waiting for valkey"
	default:
		return "memory"
	}
}

// Close releases everything NewApp opened. Safe on a partially built App.
func (a *App) Close() error {
	var errs []error

	if a.Reconnector != nil {
		a.Reconnector.Stop()
	}

	a.mu.Lock()
	monitor, client := a.monitor, a.valkey
	a.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if client != nil {
		client.Close()
	}
	if a.Memory != nil {
		a.Memory.Close()
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
