// Package app wires the automation and engagement runtime's services
// together: storage collections, the event bus, the automation build/run
// engine, the policy engines that gate every automated action, the chat
// intent router and fast-answer engine, the engagement scorer, and the
// lifecycle manager that starts and stops them as a unit.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	core "github.com/oddside/automation-runtime/internal/app/core/service"
	"github.com/oddside/automation-runtime/internal/app/domain/event"
	"github.com/oddside/automation-runtime/internal/app/services/automationengine"
	"github.com/oddside/automation-runtime/internal/app/services/delivery"
	"github.com/oddside/automation-runtime/internal/app/services/engagementjobs"
	"github.com/oddside/automation-runtime/internal/app/services/engagementscorer"
	"github.com/oddside/automation-runtime/internal/app/services/chatwatcher"
	"github.com/oddside/automation-runtime/internal/app/services/eventbus"
	"github.com/oddside/automation-runtime/internal/app/services/fastanswer"
	"github.com/oddside/automation-runtime/internal/app/services/feedbackpipeline"
	"github.com/oddside/automation-runtime/internal/app/services/hostdecision"
	"github.com/oddside/automation-runtime/internal/app/services/hostupdate"
	"github.com/oddside/automation-runtime/internal/app/services/intent"
	"github.com/oddside/automation-runtime/internal/app/services/jobqueue"
	"github.com/oddside/automation-runtime/internal/app/services/paymentrecon"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/services/proactivescheduler"
	"github.com/oddside/automation-runtime/internal/app/services/rsvptracker"
	"github.com/oddside/automation-runtime/internal/app/services/scheduler"
	"github.com/oddside/automation-runtime/internal/app/services/smartconfig"
	"github.com/oddside/automation-runtime/internal/app/services/smartscheduler"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
	"github.com/oddside/automation-runtime/internal/app/system"
	"github.com/oddside/automation-runtime/internal/config"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Stores holds every document collection the runtime persists through. Each
// field is a storage.Store so either the in-memory or Postgres/JSONB
// adapter can back it interchangeably (the generic document-store
// contract).
type Stores struct {
	Automations           storage.Store
	AutomationRuns        storage.Store
	Events                storage.Store
	EngagementLog         storage.Store
	EngagementPreferences storage.Store
	LedgerEntries         storage.Store
	Feedback              storage.Store
	Jobs                  storage.Store
	Plans                 storage.Store
	HostDecisions         storage.Store
	HostUpdates           storage.Store
	Notifications         storage.Store
	EmailLogs             storage.Store
	GroupMessages         storage.Store

	// ReconciliationLog and RemindersLog back the payment reconciler's
	// webhook-dedup/match-audit trail and reminder-conversion log
	// respectively; Polls backs the stale-poll scan.
	ReconciliationLog storage.Store
	RemindersLog      storage.Store
	Polls             storage.Store

	// Groups, GroupMembers, GameNights, and Profiles are read-only through
	// this runtime: they're owned by the wider product and reached through
	// the same Persistence Adapter contract so the Fast Answer Engine can
	// query them without a bespoke client.
	Groups       storage.Store
	GroupMembers storage.Store
	GameNights   storage.Store
	Profiles     storage.Store
}

// allEventTypes lists every event.Type the automation runner fans out
// against; kept alongside the event package's own const block so a new
// event type added there is a one-line addition here too.
var allEventTypes = []event.Type{
	event.TypeGameEnded, event.TypeGameCreated, event.TypeSettlementGenerated,
	event.TypePaymentDue, event.TypePaymentOverdue, event.TypePaymentReceived,
	event.TypePlayerConfirmed, event.TypeAllPlayersConfirmed, event.TypeGroupMessage,
	event.TypeChipDiscrepancy, event.TypeGameStale, event.TypeRSVPResponse,
	event.TypeStripePaymentReceived, event.TypeFeedbackSubmitted,
}

// applyDefaults fills any nil field with a fresh in-memory store, so callers
// (tests, or a development boot with no DATABASE_URL) only need to supply
// the collections they care about.
func (s *Stores) applyDefaults() {
	fields := []*storage.Store{
		&s.Automations, &s.AutomationRuns, &s.Events, &s.EngagementLog, &s.EngagementPreferences,
		&s.LedgerEntries, &s.Feedback, &s.Jobs, &s.Plans,
		&s.HostDecisions, &s.HostUpdates,
		&s.Notifications, &s.EmailLogs, &s.GroupMessages,
		&s.ReconciliationLog, &s.RemindersLog, &s.Polls,
		&s.Groups, &s.GroupMembers, &s.GameNights, &s.Profiles,
	}
	for _, f := range fields {
		if *f == nil {
			*f = memory.New()
		}
	}
}

// Membership answers the automation policy's group-membership questions.
// The application wires this to whatever store backs group membership in
// the deployment; a nil Membership makes the automation policy skip those
// checks, which is acceptable for a single-tenant/dev boot.
type Membership = policy.Membership

// Option customizes Application construction.
type Option func(*options)

type options struct {
	membership  Membership
	redisClient *redis.Client
	tracer      core.Tracer
	schedulers  *config.Config
}

// WithMembership supplies the group-membership lookup the automation policy
// consults for its group_membership and permission_matrix checks.
func WithMembership(m Membership) Option {
	return func(o *options) { o.membership = m }
}

// WithRedisCounter makes every policy engine share Redis-backed counters
// instead of in-process ones, required once the runtime scales past a
// single instance so daily caps are enforced consistently.
func WithRedisCounter(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithTracer attaches an observability tracer to the automation runner.
func WithTracer(t core.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithSchedulerConfig supplies the job queue and periodic scheduler cadences
// (spec §4.8). Without it, New falls back to the same defaults config.Load
// would produce, so a dev boot with no config.Config still runs the loops.
func WithSchedulerConfig(cfg *config.Config) Option {
	return func(o *options) { o.schedulers = cfg }
}

// Application owns every long-lived service the runtime needs and drives
// their lifecycle through a system.Manager.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Stores Stores

	Bus     *eventbus.Bus
	Builder *automationengine.Builder
	Runner  *automationengine.Runner

	AutomationPolicy *policy.AutomationPolicy
	EngagementPolicy *policy.EngagementPolicy
	PaymentPolicy    *policy.PaymentPolicy
	FeedbackPolicy   *policy.FeedbackPolicy

	PaymentReconciler *paymentrecon.Reconciler

	IntentRouter *intent.Router
	FastAnswers  *fastanswer.Engine

	EngagementScorer *engagementscorer.Scorer
	JobQueue         *jobqueue.Queue
	EngagementJobs   *engagementjobs.Orchestrator

	FeedbackPipeline *feedbackpipeline.Pipeline

	ChatWatcher    *chatwatcher.Watcher
	SmartScheduler *smartscheduler.Scheduler
	RSVPTracker    *rsvptracker.Tracker
	SmartConfig    *smartconfig.Advisor

	HostUpdates   *hostupdate.Channel
	HostDecisions *hostdecision.Queue

	Notifications *delivery.NotificationSender
	Emails        *delivery.EmailSender
	ChatPoster    *delivery.ChatPoster
}

// New builds an Application over stores, wiring the event bus, the
// automation build/run engine, and the four policy engines, then
// registering each as a lifecycle service with the manager. Policy engines
// have no Start/Stop of their own and are not registered; the runner is
// driven purely by bus dispatch, so it needs no lifecycle slot either.
func New(stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("automation-runtime")
	}
	stores.applyDefaults()

	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	var counter policy.Counter
	if cfg.redisClient != nil {
		counter = policy.NewRedisCounter(cfg.redisClient)
	} else {
		counter = policy.NewMemoryCounter()
	}

	busEntry := logrus.NewEntry(log.Logger).WithField("component", "eventbus")
	bus := eventbus.New(stores.Events, eventbus.NewMemorySeen(), busEntry)

	automationPolicy := policy.NewAutomationPolicy(counter, cfg.membership)
	engagementPolicy := policy.NewEngagementPolicy(counter)
	paymentPolicy := policy.NewPaymentPolicy(counter)
	feedbackPolicy := policy.NewFeedbackPolicy()

	builder := automationengine.NewBuilder(stores.Automations, automationPolicy)
	executor := delivery.NewLoggerExecutor(log)
	runner := automationengine.NewRunner(stores.Automations, stores.AutomationRuns, executor)
	if cfg.tracer != nil {
		runner = runner.WithTracer(cfg.tracer)
	}

	engagementScorer := engagementscorer.New(stores.Groups, stores.GroupMembers, stores.GameNights, stores.Profiles)
	jobQueue := jobqueue.New(stores.Jobs)
	nudgeExecutor := engagementjobs.NewLoggerNudgeExecutor(log)
	jobOrchestrator := engagementjobs.New(
		jobQueue, engagementScorer, engagementPolicy,
		stores.Groups, stores.GroupMembers, stores.EngagementPreferences, stores.EngagementLog,
		nudgeExecutor,
	)

	fixExecutor := feedbackpipeline.NewLoggerFixExecutor(log)
	feedbackPipeline := feedbackpipeline.New(stores.Feedback, feedbackPolicy, nil, fixExecutor)

	chatWatcher := chatwatcher.New()
	smartSchedulerSvc := smartscheduler.New(stores.GameNights)
	rsvpTracker := rsvptracker.New(stores.GameNights, stores.GroupMembers, stores.Profiles)
	smartConfigAdvisor := smartconfig.New(stores.GameNights, stores.Groups, stores.GroupMembers, stores.LedgerEntries, stores.Profiles)

	pushEscalator := hostupdate.NewLoggerPushEscalator(log)
	hostUpdateChannel := hostupdate.New(stores.HostUpdates, pushEscalator)
	decisionExecutor := hostdecision.NewLoggerActionExecutor(log)
	hostDecisionQueue := hostdecision.New(stores.HostDecisions, stores.Profiles, decisionExecutor, hostUpdateChannel)

	notificationSender := delivery.NewNotificationSender(stores.Notifications)
	emailSender := delivery.NewEmailSender(stores.EmailLogs, nil, log)
	chatPoster := delivery.NewChatPoster(stores.GroupMessages, nil, log)
	chatResponder := chatPoster

	application := &Application{
		manager:           system.NewManager(),
		log:               log,
		Stores:            stores,
		Bus:               bus,
		Builder:           builder,
		Runner:            runner,
		AutomationPolicy:  automationPolicy,
		EngagementPolicy:  engagementPolicy,
		PaymentPolicy:     paymentPolicy,
		FeedbackPolicy:    feedbackPolicy,
		PaymentReconciler: paymentrecon.NewReconciler(stores.LedgerEntries, stores.GameNights, stores.ReconciliationLog, stores.RemindersLog, paymentPolicy),
		IntentRouter:      intent.NewRouter(),
		FastAnswers:       fastanswer.New(stores.Groups, stores.GroupMembers, stores.GameNights, stores.Profiles, stores.LedgerEntries),
		EngagementScorer:  engagementScorer,
		JobQueue:          jobQueue,
		EngagementJobs:    jobOrchestrator,
		FeedbackPipeline:  feedbackPipeline,
		ChatWatcher:       chatWatcher,
		SmartScheduler:    smartSchedulerSvc,
		RSVPTracker:       rsvpTracker,
		SmartConfig:       smartConfigAdvisor,
		HostUpdates:       hostUpdateChannel,
		HostDecisions:     hostDecisionQueue,
		Notifications:     notificationSender,
		Emails:            emailSender,
		ChatPoster:        chatPoster,
	}

	schedulerCfg := cfg.schedulers
	if schedulerCfg == nil {
		schedulerCfg = defaultSchedulerConfig()
	}

	enqueueLoop := scheduler.New("engagement_enqueue", schedulerCfg.EnqueueLoopInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		jobOrchestrator.EnqueueNearThreshold, log)
	dispatchLoop := scheduler.New("engagement_dispatch", schedulerCfg.DispatchLoopInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		func(ctx context.Context) error {
			_, err := jobOrchestrator.Dispatch(ctx, schedulerCfg.DispatchBatchSize)
			return err
		}, log)
	digestLoop := scheduler.New("engagement_digest", schedulerCfg.DigestLoopInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		jobOrchestrator.EnqueueDigests, log)

	proactiveNotifier := proactivescheduler.NewLoggerNotifier(log)
	gameSuggestionScan := proactivescheduler.NewGameSuggestionScan(stores.Groups, stores.GameNights, smartSchedulerSvc, proactiveNotifier)
	rsvpReminderScan := proactivescheduler.NewRSVPReminderScan(stores.GameNights, proactiveNotifier)
	stalePollScan := proactivescheduler.NewStalePollScan(stores.Polls, smartSchedulerSvc, proactiveNotifier)
	settlementReminderScan := proactivescheduler.NewSettlementReminderScan(
		stores.GameNights, application.PaymentReconciler, proactiveNotifier, defaultPaymentScanOptions(),
	)
	gameSuggestionLoop := scheduler.New("game_suggestion", schedulerCfg.GameSuggestionInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		gameSuggestionScan.Tick, log)
	rsvpReminderLoop := scheduler.New("rsvp_reminder", schedulerCfg.RSVPReminderInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		rsvpReminderScan.Tick, log)
	stalePollLoop := scheduler.New("stale_poll", schedulerCfg.StalePollInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		stalePollScan.Tick, log)
	settlementReminderLoop := scheduler.New("settlement_reminder", schedulerCfg.SettlementReminderInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		settlementReminderScan.Tick, log)
	hostDecisionExpiryLoop := scheduler.New("host_decision_expiry", schedulerCfg.HostDecisionExpiryInterval,
		schedulerCfg.SchedulerJitterMin, schedulerCfg.SchedulerJitterMax,
		func(ctx context.Context) error {
			_, err := hostDecisionQueue.ExpireOld(ctx)
			return err
		}, log)

	application.manager.Register(enqueueLoop)
	application.manager.Register(dispatchLoop)
	application.manager.Register(digestLoop)
	application.manager.Register(gameSuggestionLoop)
	application.manager.Register(rsvpReminderLoop)
	application.manager.Register(stalePollLoop)
	application.manager.Register(settlementReminderLoop)
	application.manager.Register(hostDecisionExpiryLoop)

	// Every event type fans out through the runner; RunByTrigger itself
	// filters to enabled, eligible, relevant automations, so a single
	// handler registered per type covers the whole automation surface.
	for _, t := range allEventTypes {
		bus.Subscribe(t, "automation_runner", func(ctx context.Context, evt event.Event) error {
			_, err := runner.RunByTrigger(ctx, evt)
			return err
		})
	}

	bus.Subscribe(event.TypeFeedbackSubmitted, "feedback_pipeline", handleFeedbackSubmitted(feedbackPipeline))
	bus.Subscribe(event.TypeGroupMessage, "chat_watcher", handleGroupMessage(chatWatcher, stores.Groups, chatResponder))

	application.manager.Register(newEventBusService(bus))

	return application, nil
}

// Attach registers an additional lifecycle service (a periodic scheduler, a
// job dispatcher, a chat watcher poller) after construction but before Start.
func (a *Application) Attach(svc system.Service) {
	a.manager.Register(svc)
}

// Start starts every registered service in dependency order.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	a.log.Info("application started")
	return nil
}

// Stop stops every started service in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Descriptors returns the descriptors of every registered lifecycle
// service, for the ops /system/descriptors endpoint.
func (a *Application) Descriptors() []core.Descriptor {
	return a.manager.Descriptors()
}

// Manager exposes the underlying system.Manager for tests that need direct
// control over lifecycle ordering.
func (a *Application) Manager() *system.Manager {
	return a.manager
}

// defaultSchedulerConfig mirrors config.Config's own env-var defaults, so a
// caller that never supplies WithSchedulerConfig (tests, a bare dev boot)
// still runs the job queue loops on sane cadences.
func defaultSchedulerConfig() *config.Config {
	return &config.Config{
		EnqueueLoopInterval:        6 * time.Hour,
		DispatchLoopInterval:       30 * time.Minute,
		DigestLoopInterval:         168 * time.Hour,
		DispatchBatchSize:          20,
		GameSuggestionInterval:     6 * time.Hour,
		StalePollInterval:          2 * time.Hour,
		RSVPReminderInterval:       4 * time.Hour,
		SettlementReminderInterval: 24 * time.Hour,
		HostDecisionExpiryInterval: 10 * time.Minute,
		SchedulerJitterMin:         2 * time.Minute,
		SchedulerJitterMax:         5 * time.Minute,
	}
}

// defaultPaymentScanOptions is the payment-reminder policy context used
// until a payment_settings collection exists to drive it per group: every
// group gets reminders enabled, a UTC wall-clock hour and weekend check
// with no per-group timezone offset, and no per-group daily count (the
// entry-level cooldown and max-reminders checks still gate each entry on
// their own).
func defaultPaymentScanOptions() paymentrecon.ScanOptions {
	return paymentrecon.ScanOptions{
		RemindersEnabled: func(groupID string) bool { return true },
		LocalHour:        func(groupID string) int { return time.Now().UTC().Hour() },
		IsWeekend: func(groupID string) bool {
			day := time.Now().UTC().Weekday()
			return day == time.Saturday || day == time.Sunday
		},
		GroupDailyCount: func(ctx context.Context, groupID string) (int64, error) { return 0, nil },
	}
}

// eventBusService adapts *eventbus.Bus to system.Service. The bus itself has
// no background loop to start; giving it a lifecycle slot keeps it visible
// in the manager's descriptor listing alongside the schedulers that depend
// on it.
type eventBusService struct {
	bus *eventbus.Bus
}

func newEventBusService(bus *eventbus.Bus) *eventBusService {
	return &eventBusService{bus: bus}
}

func (s *eventBusService) Name() string { return "eventbus" }

func (s *eventBusService) Start(ctx context.Context) error { return nil }

func (s *eventBusService) Stop(ctx context.Context) error { return nil }

func (s *eventBusService) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "eventbus",
		Domain: "automation",
		Layer:  core.LayerEngine,
	}.WithCapabilities("emit", "subscribe", "idempotent-redelivery")
}
