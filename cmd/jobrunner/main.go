// jobrunner is a distributed job-execution engine for large batches of
// LLM calls: it decomposes a submitted survey job into interviews and
// tasks, schedules those tasks against rate-limited provider queues,
// executes them through a worker pool, and assembles typed results.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/jobrunner/pkg/api"
	"github.com/codeready-toolchain/jobrunner/pkg/cleanup"
	"github.com/codeready-toolchain/jobrunner/pkg/config"
	"github.com/codeready-toolchain/jobrunner/pkg/coordinator"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/llmclient"
	"github.com/codeready-toolchain/jobrunner/pkg/promptrender"
	"github.com/codeready-toolchain/jobrunner/pkg/queue"
	"github.com/codeready-toolchain/jobrunner/pkg/render"
	"github.com/codeready-toolchain/jobrunner/pkg/rules"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/hybrid"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
	redisstore "github.com/codeready-toolchain/jobrunner/pkg/storage/redis"
	pgstore "github.com/codeready-toolchain/jobrunner/pkg/storage/sql"
	"github.com/codeready-toolchain/jobrunner/pkg/worker"
	"github.com/codeready-toolchain/jobrunner/pkg/workerregistry"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	if err := godotenv.Load(filepath.Join(*configDir, ".env")); err != nil {
		log.Printf("Warning: could not load .env from %s: %v", *configDir, err)
		log.Println("Continuing with existing environment variables...")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	st, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend %s: %v", cfg.StorageBackend, err)
	}
	defer closeStorage()
	log.Printf("Storage backend: %s", cfg.StorageBackend)

	svc := jobservice.New(st)

	resolver := &queue.StaticKeyResolver{
		Services: make(map[string]bool, len(cfg.Services)),
		Limits:   make(map[string]queue.Limits, len(cfg.Services)),
	}
	apiKeys := &envAPIKeys{}
	for service, limits := range cfg.Services {
		resolver.Services[service] = apiKeys.Key(service) != ""
		resolver.Limits[service] = queue.Limits{RPM: limits.RPM, TPM: limits.TPM}
	}

	queueRegistry := queue.NewRegistry(resolver)
	coord := coordinator.New(queueRegistry, apiKeys)

	workerReg := workerregistry.New(st)
	coord.SetDeadWorkerSource(deadWorkerAdapter{reg: workerReg, timeout: cfg.Queue.OrphanThreshold})

	renderURL := getEnv("RENDER_SERVICE_URL", "http://localhost:8090")
	renderer := promptrender.NewClient(renderURL, 30*time.Second)
	renderWorker := render.NewWorker(svc, renderer)
	directRunner := worker.NewDirectRunner(svc, cfg.Queue.RenderBatchSize)
	ruleRegistry := rules.NewRegistry()

	llmURL := getEnv("LLM_SERVICE_URL", "http://localhost:8091")
	llmClient := llmclient.NewClient(llmURL, 5*time.Minute)

	pool := worker.NewPool(worker.PoolConfig{
		MinWorkers:  cfg.Queue.WorkerCount,
		MaxWorkers:  cfg.Queue.WorkerCount,
		IdleTimeout: cfg.Queue.PollInterval,
		PodID:       getEnv("POD_ID", "jobrunner-local"),
	}, coord, svc, llmClient, workerReg)
	pool.Start(ctx)
	defer pool.Stop(context.Background())

	cleanupSvc := cleanup.NewService(cfg.Retention, svc.Stores(), st)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(svc, string(cfg.StorageBackend))
	server.SetWorkerPool(pool)

	driver := &jobDriver{
		svc:          svc,
		renderWorker: renderWorker,
		directRunner: directRunner,
		coordinator:  coord,
		ruleRegistry: ruleRegistry,
		batchSize:    cfg.Queue.RenderBatchSize,
	}
	server.SetOnSubmit(driver.track)
	go driver.run(ctx)

	go deadWorkerLoop(ctx, coord, cfg.Queue.OrphanDetectionInterval)

	httpPort := getEnv("HTTP_PORT", cfg.HTTPPort)
	ln, err := net.Listen("tcp", ":"+httpPort)
	if err != nil {
		log.Fatalf("Failed to bind :%s: %v", httpPort, err)
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := server.StartWithListener(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during HTTP shutdown: %v", err)
	}
}

// envAPIKeys resolves a service's API key from SERVICE_<NAME>_API_KEY,
// implementing coordinator.APIKeys directly against the process
// environment rather than a secrets store.
type envAPIKeys struct{}

func (envAPIKeys) Key(service string) string { return os.Getenv(envKeyName(service)) }

func envKeyName(service string) string {
	return "SERVICE_" + upper(service) + "_API_KEY"
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		} else if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}

// jobDriver runs the render -> direct-answer -> coordinator pipeline
// for every job submitted to this process, polling each tracked job
// until it reaches a terminal state. RuleCollection capabilities
// aren't serializable, so each job falls back to rules.Default
// unless a caller has registered its survey's real rule collection on
// driver.ruleRegistry out of band.
type jobDriver struct {
	svc          *jobservice.Service
	renderWorker *render.Worker
	directRunner *worker.DirectRunner
	coordinator  *coordinator.Coordinator
	ruleRegistry *rules.Registry
	batchSize    int

	mu     sync.Mutex
	active map[string]struct{}
}

func (d *jobDriver) track(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		d.active = make(map[string]struct{})
	}
	d.active[jobID] = struct{}{}
}

func (d *jobDriver) untrack(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, jobID)
	d.ruleRegistry.Unregister(jobID)
}

func (d *jobDriver) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids
}

func (d *jobDriver) run(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobID := range d.snapshot() {
				d.driveOnce(ctx, jobID)
			}
		}
	}
}

func (d *jobDriver) driveOnce(ctx context.Context, jobID string) {
	survey, ok, err := d.svc.Stores().GetSurvey(ctx, jobID)
	if err != nil || !ok {
		return
	}
	rc := d.ruleRegistry.Get(jobID, len(survey.Questions))

	if _, err := d.directRunner.RunBatch(ctx, jobID); err != nil {
		slog.Error("direct-answer batch failed", "job", jobID, "error", err)
	}

	rendered, err := d.renderWorker.RenderBatch(ctx, jobID, rc, d.batchSize)
	if err != nil {
		slog.Error("render batch failed", "job", jobID, "error", err)
	} else {
		for _, t := range rendered.LLMTasks {
			d.coordinator.Enqueue(t)
		}
	}

	status, err := d.svc.Status(ctx, jobID)
	if err == nil && (status.Completed == 1 || status.CompletedWithFailures == 1 || status.Cancelled == 1) {
		d.untrack(jobID)
	}
}

func deadWorkerLoop(ctx context.Context, coord *coordinator.Coordinator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := coord.RecoverDeadWorkers(ctx); err != nil {
				slog.Error("dead worker recovery failed", "error", err)
			} else if n > 0 {
				slog.Info("recovered dead worker tasks", "count", n)
			}
		}
	}
}

// deadWorkerAdapter bridges workerregistry.Registry to
// coordinator.DeadWorkerSource: the two packages each define their own
// DeadWorkerTask shape to avoid an import cycle (the registry doesn't
// need to know about the coordinator's types), so this adapter
// translates between them.
type deadWorkerAdapter struct {
	reg     *workerregistry.Registry
	timeout time.Duration
}

func (a deadWorkerAdapter) DeadWorkerTasks(ctx context.Context) ([]coordinator.DeadWorkerTask, error) {
	tasks, err := a.reg.GetDeadWorkerTasks(ctx, a.timeout)
	if err != nil {
		return nil, err
	}
	out := make([]coordinator.DeadWorkerTask, len(tasks))
	for i, t := range tasks {
		out[i] = coordinator.DeadWorkerTask{WorkerID: t.WorkerID, JobID: t.JobID, TaskID: t.TaskID}
	}
	return out, nil
}

func (a deadWorkerAdapter) Cleanup(ctx context.Context, workerID string) error {
	return a.reg.Cleanup(ctx, workerID)
}

// buildStorage constructs the configured Storage Protocol
// implementation, returning a no-op close func for backends (like
// memory) with nothing to release.
func buildStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return memory.New(), noop, nil
	case config.BackendSQL:
		st, err := pgstore.New(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.BackendRedis:
		st, err := redisstore.New(redisstore.Options{
			URL:          cfg.Redis.URL,
			Namespace:    cfg.Redis.Namespace,
			PersistentDB: cfg.Redis.PersistentDB,
			VolatileDB:   cfg.Redis.VolatileDB,
			SetsDB:       cfg.Redis.SetsDB,
			BlobDB:       cfg.Redis.BlobDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.BackendHybrid:
		durable, err := pgstore.New(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		fast, err := redisstore.New(redisstore.Options{
			URL:          cfg.Redis.URL,
			Namespace:    cfg.Redis.Namespace,
			PersistentDB: cfg.Redis.PersistentDB,
			VolatileDB:   cfg.Redis.VolatileDB,
			SetsDB:       cfg.Redis.SetsDB,
			BlobDB:       cfg.Redis.BlobDB,
		})
		if err != nil {
			return nil, noop, err
		}
		st := hybrid.New(durable, fast)
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, noop, errUnknownBackend(cfg.StorageBackend)
	}
}

type errUnknownBackend config.StorageBackend

func (e errUnknownBackend) Error() string {
	return "unknown storage backend: " + string(e)
}
