// Command atrworker is the Task Executor's worker process entry point:
// a supervised loop that opens the Metadata Store, the Content Store, and
// the durable task queue, then repeatedly claims and dispatches QUEUED
// tasks until told to stop.
//
// Command Structure:
//
//	atrworker serve    run the claim loop until SIGINT/SIGTERM
//	atrworker migrate  connect and run schema migrations, then exit
//
// Grounded on the teacher's cli/root.go (cobra root command, persistent
// flags, graceful-shutdown-on-signal pattern), trimmed to the single
// ATR_-prefixed environment configuration surface of internal/config
// instead of the teacher's viper/echo HTTP stack -- see DESIGN.md "Dropped
// teacher dependencies".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/apache/atr/internal/atrerr"
	"github.com/apache/atr/internal/audit"
	"github.com/apache/atr/internal/authz"
	"github.com/apache/atr/internal/checkorchestrator"
	"github.com/apache/atr/internal/config"
	"github.com/apache/atr/internal/content"
	"github.com/apache/atr/internal/logging"
	"github.com/apache/atr/internal/metadata"
	"github.com/apache/atr/internal/releasestate"
	"github.com/apache/atr/internal/revision"
	"github.com/apache/atr/internal/taskexecutor"
	"github.com/apache/atr/internal/vote"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "atrworker",
	Short: "ATR release-lifecycle worker process",
	Long: `atrworker runs the Apache Trusted Releases task executor: a durable
queue of checker, announcement, vote, and distribution tasks claimed and
processed by a supervised worker loop.

Configuration is read entirely from the environment under the ATR_ prefix
(STATE_DIR, DATABASE_URL, REDIS_URL, and the rest of the surface in
SPEC_FULL.md §6); there is no configuration file.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the task claim loop until interrupted",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "connect to the metadata store and apply schema migrations, then exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components bundles every construction the worker needs, built once at
// startup and threaded by reference -- no package-level globals (Design
// Notes "Global state").
type components struct {
	cfg          *config.Config
	log          *logrus.Entry
	metaStore    *metadata.Store
	contentStore *content.Store
	redisClient  *redis.Client
	auditWriter  *audit.Writer
	checkReg     *checkorchestrator.Registry
	orchestrator *checkorchestrator.Orchestrator
	taskReg      *taskexecutor.Registry
	workerCfg    taskexecutor.Config
	machine      *releasestate.Machine
	revMgr       *revision.Manager
	voteC        *vote.Coordinator
	identity     *authz.Authorisation
}

func build(ctx context.Context) (*components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, atrerr.Wrap(atrerr.Fatal, "load configuration", err)
	}

	logger := logging.New(logLevel)
	entry := logrus.NewEntry(logger)

	metaStore, err := metadata.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, atrerr.Wrap(atrerr.Fatal, "open metadata store", err)
	}

	contentStore, err := content.Open(cfg.StateDir)
	if err != nil {
		return nil, atrerr.Wrap(atrerr.Fatal, "open content store", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.RedisURL)})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, atrerr.Wrap(atrerr.Fatal, "connect to redis wake-up channel", err)
	}

	auditWriter, err := audit.NewWriter(cfg.StateDir, entry)
	if err != nil {
		return nil, atrerr.Wrap(atrerr.Fatal, "open audit log", err)
	}
	auditWriter.Start()

	workerCfg := taskexecutor.DefaultConfig()

	checkReg := checkorchestrator.NewRegistry()
	// Checker plug-ins (license/signature/RAT/SBOM scanners) are consumed,
	// not implemented, here -- §1 Non-goals "implementing the individual
	// file-format checks themselves." Register concrete Checkers here when
	// wiring a specific deployment.
	orchestrator := checkorchestrator.NewOrchestrator(contentStore, checkReg, cfg.DisableCheckCache, redisClient, workerCfg.WakeChannel)

	machine := releasestate.NewMachine(metaStore, contentStore)
	revMgr := revision.NewManager(metaStore, contentStore)
	voteC := vote.NewCoordinator(metaStore, machine, revMgr)

	taskReg := taskexecutor.NewRegistry()
	registerCheckerHandlers(taskReg, orchestrator)

	identity := authz.NewAuthorisation(authz.StaticIdentityProvider{})

	return &components{
		cfg:          cfg,
		log:          entry,
		metaStore:    metaStore,
		contentStore: contentStore,
		redisClient:  redisClient,
		auditWriter:  auditWriter,
		checkReg:     checkReg,
		orchestrator: orchestrator,
		taskReg:      taskReg,
		workerCfg:    workerCfg,
		machine:      machine,
		revMgr:       revMgr,
		voteC:        voteC,
		identity:     identity,
	}, nil
}

// registerCheckerHandlers maps every suffix-table checker task type to the
// orchestrator's single cache-aware handler (§4.F). Non-checker task types
// (VOTE_INITIATE, MESSAGE_SEND, SVN_IMPORT_FILES, ...) are registered by
// their own deployment-specific handlers, not here.
func registerCheckerHandlers(reg *taskexecutor.Registry, orch *checkorchestrator.Orchestrator) {
	handler := orch.BuildHandler()
	for _, t := range []taskexecutor.Type{
		taskexecutor.TypeHashingCheck,
		taskexecutor.TypeLicenseFiles,
		taskexecutor.TypeLicenseHeaders,
		taskexecutor.TypePathsCheck,
		taskexecutor.TypeRATCheck,
		taskexecutor.TypeSignatureCheck,
		taskexecutor.TypeTarGzIntegrity,
		taskexecutor.TypeTarGzStructure,
		taskexecutor.TypeZipFormatIntegrity,
		taskexecutor.TypeZipFormatStructure,
		taskexecutor.TypeSBOMToolScore,
	} {
		reg.Register(t, handler)
	}
}

func (c *components) Close() {
	_ = c.auditWriter.Close()
	_ = c.redisClient.Close()
	_ = c.metaStore.Close()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	c.log.Info("metadata store migrations applied at startup; nothing further to do")
	return nil
}

// runServe implements the supervisor loop of §4.E step 5: run the worker
// until it exits after its task batch, then immediately start another,
// until the process receives SIGINT/SIGTERM -- at which point the context
// is cancelled, letting any in-flight handler finish before the engine is
// disposed (§5 "Worker shutdown cancels the claim loop but lets any
// in-flight handler finish").
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	worker := taskexecutor.NewWorker(c.workerCfg, c.metaStore, c.taskReg, c.redisClient, c.log)

	c.log.WithField("state_dir", c.cfg.StateDir).Info("atrworker: starting claim loop")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("atrworker: shutting down")
			return nil
		default:
		}
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Error("atrworker: worker run returned an error, restarting")
		}
	}
}

func redisAddr(url string) string {
	// cfg.RedisURL is a redis:// DSN; go-redis/v9's Options.Addr wants
	// host:port. Strip the scheme and any trailing path/db segment rather
	// than pull in a URL-parsing dependency for a single field.
	s := url
	if i := indexAfterScheme(s); i >= 0 {
		s = s[i:]
	}
	if i := lastSlash(s); i >= 0 {
		s = s[:i]
	}
	return s
}

func indexAfterScheme(s string) int {
	const scheme = "redis://"
	if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
		return len(scheme)
	}
	return -1
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
