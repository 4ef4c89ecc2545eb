package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/alert"
	"github.com/itskum47/mailforge/internal/collaborators/blobstore"
	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/collaborators/mailtransport"
	"github.com/itskum47/mailforge/internal/collaborators/notify"
	"github.com/itskum47/mailforge/internal/config"
	"github.com/itskum47/mailforge/internal/handlers"
	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/optimizer"
	"github.com/itskum47/mailforge/internal/query"
	"github.com/itskum47/mailforge/internal/scheduler"
	"github.com/itskum47/mailforge/internal/task"
	"github.com/itskum47/mailforge/internal/worker"
)

// app is the composition root: every long-lived component wired against
// its collaborators, built once per process invocation.
type app struct {
	cfg config.Config

	store kv.Store
	locks *lock.Manager
	log   *zap.Logger

	docs  docstore.Store
	blobs blobstore.Store
	mail  mailtransport.Transport

	sched    *scheduler.Scheduler
	reaper   *scheduler.Reaper
	index    *index.Indexer
	trigrams *query.TrigramIndex
	queryEng *query.Engine
	opt      *optimizer.Optimizer
	registry *handlers.Registry
	pool     *worker.Pool
	hub      *alert.Hub
	monitor  *alert.Monitor
}

func buildApp(cfg config.Config) (*app, error) {
	log, err := observability.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	store, err := kv.NewRedisStore(cfg.KVAddr, cfg.KVPassword, cfg.KVDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to KV substrate at %s: %w", cfg.KVAddr, err)
	}
	locks := lock.NewManager(store)

	var docs docstore.Store
	if cfg.DocStoreURL != "" {
		pg, err := docstore.NewPostgresStore(context.Background(), cfg.DocStoreURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to document store: %w", err)
		}
		docs = pg
	} else {
		log.Warn("no docstore_url configured, using in-memory document store (data will not survive restart)")
		docs = docstore.NewMemoryStore()
	}

	blobs := blobstore.NewMemoryStore()
	mail := mailtransport.NewSMTPTransport(cfg.MailSMTPAddr, "", "", cfg.MailDomain)

	sched := scheduler.New(store, locks, log, cfg.LeaseTimeout, cfg.BackoffInitial, cfg.BackoffCap)
	reaper := scheduler.NewReaper(sched, cfg.LeaseTimeout/2, log)

	ix := index.New(store, locks, log)
	trigrams := query.NewTrigramIndex()
	queryEng := query.New(store, trigrams, log)
	opt := optimizer.New(store, locks, trigrams, log)

	registry := handlers.NewRegistry()
	registry.Register("process_email", &handlers.ProcessEmailHandler{Docs: docs, Index: ix, Log: log})
	registry.Register("send_email", &handlers.SendEmailHandler{Transport: mail, Log: log})
	registry.Register("process_attachments", &handlers.ProcessAttachmentsHandler{Blobs: blobs, Log: log})
	registry.Register("generate_analytics", &handlers.GenerateAnalyticsHandler{Docs: docs, Log: log})
	registry.Register("cleanup_storage", &handlers.CleanupStorageHandler{Docs: docs, Blobs: blobs, Log: log})
	registry.Register("index_search", &handlers.IndexSearchHandler{Index: ix, Log: log})
	registry.Register("update_thread", &handlers.UpdateThreadHandler{Docs: docs, Locks: locks, Scheduler: sched, Index: ix, Log: log})

	notifier := &notify.MailNotifier{
		Transport: mail,
		FromAddr:  cfg.MailFromAddress,
		// No user-directory collaborator is in scope for this module; the
		// user id is taken to be its own email address, matching how the
		// worker's other handlers treat ids as opaque pass-through keys.
		UserEmails: func(ctx context.Context, userID string) (string, error) { return userID, nil },
		Log:        log,
	}
	registry.Register("send_notification", &handlers.SendNotificationHandler{
		Prefs:    notify.StaticPreferenceStore{},
		Notifier: notifier,
		Log:      log,
	})

	pool := worker.New(sched, registry, int64(cfg.WorkerConcurrency), cfg.PollInterval, log)

	hub := alert.NewHub(log)
	monitor := alert.New(store, hub, log)
	wireHealthChecks(monitor, sched, opt, store, docs)
	sched.OnDeadLetter(func(t *task.Task) {
		if t.Priority != task.PriorityHigh {
			return
		}
		if _, err := monitor.Raise(context.Background(), "dead_letter", alert.SeverityHigh,
			fmt.Sprintf("high-priority task %s (%s) exhausted its attempts budget", t.ID, t.Kind)); err != nil {
			log.Warn("failed to raise dead-letter alert", zap.Error(err))
		}
	})

	return &app{
		cfg: cfg, store: store, locks: locks, log: log,
		docs: docs, blobs: blobs, mail: mail,
		sched: sched, reaper: reaper, index: ix, trigrams: trigrams, queryEng: queryEng, opt: opt,
		registry: registry, pool: pool, hub: hub, monitor: monitor,
	}, nil
}

// Close releases any collaborator holding external resources.
func (a *app) Close() {
	if pg, ok := a.docs.(*docstore.PostgresStore); ok {
		pg.Close()
	}
}
