package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spinwheel/spinwheel/internal/assign"
	"github.com/spinwheel/spinwheel/internal/config"
	"github.com/spinwheel/spinwheel/internal/console"
	"github.com/spinwheel/spinwheel/internal/cycler"
	"github.com/spinwheel/spinwheel/internal/group"
	"github.com/spinwheel/spinwheel/internal/hub"
	"github.com/spinwheel/spinwheel/internal/logging"
	"github.com/spinwheel/spinwheel/internal/metrics"
	"github.com/spinwheel/spinwheel/internal/solve"
	"github.com/spinwheel/spinwheel/internal/spoke"
	"github.com/spinwheel/spinwheel/internal/state"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

const version = "0.1.0"

var (
	configPath = flag.String("config", "spinwheel.yaml", "path to run configuration (YAML)")
	role       = flag.String("role", "hub", "process role: hub or spoke")
	kind       = flag.String("kind", "sampling", "spoke kind: sampling or fixedset")
	spokeID    = flag.String("id", "", "spoke ID (auto-generated if empty)")
	index      = flag.Int("index", 0, "partition index of this sampling spoke")
	hubAddr    = flag.String("hub", "", "hub address override (host:port)")
	logLevel   = flag.String("log-level", "", "log level override")
	logDir     = flag.String("log-dir", "", "log directory override")

	// CLI flags
	cliMode = flag.Bool("cli", false, "run in console CLI mode")
	cliHost = flag.String("h", "127.0.0.1", "console host (CLI mode)")
	cliPort = flag.Int("p", 7401, "console port (CLI mode)")
)

func main() {
	flag.Parse()

	if *cliMode {
		runCLI(*cliHost, *cliPort, flag.Args())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logDir != "" {
		cfg.Logging.Dir = *logDir
	}
	if *hubAddr != "" {
		cfg.Hub.Listen = *hubAddr
	}

	switch *role {
	case "hub":
		err = runHub(cfg)
	case "spoke":
		err = runSpoke(cfg)
	default:
		log.Fatalf("Unknown role %q (want hub or spoke)", *role)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *role, err)
	}
}

func runHub(cfg *config.Config) error {
	logger, closeLog, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Process: "hub",
	})
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("hub starting", "listen", cfg.Hub.Listen, "config", cfg.Describe())

	board := hub.NewBoard(hub.BoardConfig{
		Sense:       cfg.Sense(),
		Fingerprint: cfg.Fingerprint(),
		Logger:      logger,
	})

	listener := group.NewListener(cfg.Hub.Listen, board, logger)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("start group listener: %w", err)
	}
	defer listener.Stop()

	// The probability check runs after the listener is up so that a
	// violation still reaches already-started spokes as a kill, not as a
	// connection refused.
	if sum, err := cfg.CheckProbabilities(); err != nil {
		logger.Error("scenario probabilities do not sum to one",
			"sum", sum, "tolerance", cfg.Run.ProbabilityTolerance)
		board.Kill(fmt.Sprintf("aborted: scenario probabilities sum to %v", sum))
		time.Sleep(2 * cfg.Spoke.PollInterval.Std())
		return err
	}

	prob, err := solve.NewQuadratic(cfg.Scenarios(), cfg.Problem.Rho)
	if err != nil {
		return err
	}

	var ckpt *state.Manager
	if cfg.Hub.DataDir != "" {
		ckpt, err = state.NewManager(cfg.Hub.DataDir, board, logger)
		if err != nil {
			return err
		}
		defer ckpt.Close()
		if err := ckpt.Load(); err != nil {
			logger.Warn("checkpoint load failed, starting fresh", "err", err)
		}
	}

	start := cfg.StartValues()
	if snap := board.Snapshot(); snap.Version > 0 && len(snap.Values) > 0 {
		start = snap.Values
	}
	stepper := solve.NewGradientStepper(prob, start, cfg.Problem.Step)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var cons *console.Server
	if cfg.Hub.Console != "" {
		cons = console.NewServer(cfg.Hub.Console, board, logger)
		g.Go(func() error {
			if err := cons.Start(); err != nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("console: %w", err)
			}
			return nil
		})
	}

	var exporter *metrics.Exporter
	if cfg.Hub.Metrics != "" {
		metrics.InitInfo(version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		exporter = metrics.NewExporter(cfg.Hub.Metrics, board)
		g.Go(func() error {
			if err := exporter.Start(); err != nil {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
	}

	driver := hub.NewDriver(hub.DriverConfig{
		Board:   board,
		Stepper: stepper,
		Termination: hub.Termination{
			MaxIterations: cfg.Hub.Termination.MaxIterations,
			AbsGap:        cfg.Hub.Termination.AbsGap,
			RelGap:        cfg.Hub.Termination.RelGap,
			MaxWallclock:  cfg.Hub.Termination.MaxWallclock.Std(),
		},
		Interval:   cfg.Hub.StepInterval.Std(),
		Checkpoint: ckpt,
		Verbose:    cfg.Run.Verbose,
		Logger:     logger,
	})

	g.Go(func() error {
		defer func() {
			// Leave the listener up for two poll intervals so every spoke
			// fetches the kill before the hub goes away.
			time.Sleep(2 * cfg.Spoke.PollInterval.Std())
			if cons != nil {
				cons.Stop()
			}
			if exporter != nil {
				exporter.Stop()
			}
		}()
		return driver.Run(gctx)
	})

	err = g.Wait()

	inner, hasInner := board.BestInner()
	outer, hasOuter := board.BestOuter()
	attrs := []any{
		"reason", board.KillReason(),
		"iterations", board.Version(),
		"spokes", len(board.Spokes()),
	}
	if hasInner {
		attrs = append(attrs, "best_inner", inner)
	}
	if hasOuter {
		attrs = append(attrs, "best_outer", outer)
	}
	if gap, ok := board.Gap(); ok {
		attrs = append(attrs, "abs_gap", gap.Abs, "rel_gap", gap.Rel)
	}
	logger.Info("run finished", attrs...)

	return err
}

func runSpoke(cfg *config.Config) error {
	id := *spokeID
	if id == "" {
		id = fmt.Sprintf("%s-%s", *kind, uuid.NewString()[:8])
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Process: id,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	// Structural prerequisites are this process's problem alone.
	if err := cfg.CheckSpokePrereqs(); err != nil {
		return err
	}

	client := group.NewClient(group.ClientConfig{
		HubAddr: cfg.Hub.Listen,
		ID:      id,
		Kind:    *kind,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rank, runID, err := joinWithRetry(ctx, client, cfg.Fingerprint(), logger)
	if err != nil {
		return fmt.Errorf("join run: %w", err)
	}
	logger = logger.With("rank", rank)
	logger.Info("joined run", "run_id", runID, "hub", cfg.Hub.Listen)

	// The probability sum is a group invariant. A spoke that sees it
	// violated takes the whole run down, not just itself.
	if sum, err := cfg.CheckProbabilities(); err != nil {
		logger.Error("scenario probabilities do not sum to one",
			"sum", sum, "tolerance", cfg.Run.ProbabilityTolerance)
		if aerr := client.Abort(fmt.Sprintf("scenario probabilities sum to %v", sum)); aerr != nil {
			logger.Warn("abort delivery failed", "err", aerr)
		}
		return err
	}

	prob, err := solve.NewQuadratic(cfg.Scenarios(), cfg.Problem.Rho)
	if err != nil {
		return err
	}

	var variant spoke.Variant
	switch *kind {
	case "sampling":
		order := cycler.Shuffle(cfg.ScenarioNames(), cfg.Run.Seed)
		if cfg.Spoke.Sampling.Partition {
			order = assign.Slice(order, cfg.Spoke.Sampling.Workers, *index)
		}
		variant, err = spoke.NewSampling(spoke.SamplingConfig{
			ID:        id,
			Sense:     cfg.Sense(),
			Order:     order,
			Evaluator: prob,
			Reporter:  client,
			Verbose:   cfg.Run.Verbose,
			Logger:    logger,
		})
	case "fixedset":
		variant, err = spoke.NewFixedSet(spoke.FixedSetConfig{
			ID:         id,
			Sense:      cfg.Sense(),
			Candidates: cfg.Spoke.FixedSet.Candidates,
			Evaluator:  prob,
			Reporter:   client,
			Verbose:    cfg.Run.Verbose,
			Logger:     logger,
		})
	default:
		return fmt.Errorf("unknown spoke kind %q (want sampling or fixedset)", *kind)
	}
	if err != nil {
		return err
	}

	rt := spoke.NewRuntime(spoke.RuntimeConfig{
		Fetcher:    client,
		Variant:    variant,
		Poll:       cfg.Spoke.PollInterval.Std(),
		FailBudget: cfg.Spoke.FailBudget,
		Logger:     logger,
	})

	logger.Info("spoke running", "kind", variant.Kind(), "tag", variant.Tag())
	err = rt.Run(ctx)

	attrs := []any{"last_seen", rt.LastSeen()}
	if best, ok := variant.Best(); ok {
		attrs = append(attrs, "best", best)
	}
	if rt.Signal().Raised() {
		attrs = append(attrs, "reason", rt.Signal().Reason())
	}
	logger.Info("spoke finished", attrs...)

	return err
}

const (
	joinAttempts = 30
	joinBackoff  = time.Second
)

// joinWithRetry keeps dialing until the hub is up. Rejections are final;
// connectivity failures are retried so spokes can start before the hub.
func joinWithRetry(ctx context.Context, client *group.Client, fingerprint string, log *slog.Logger) (int, string, error) {
	var lastErr error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		rank, runID, err := client.Join(fingerprint)
		if err == nil {
			return rank, runID, nil
		}
		if errors.Is(err, pkgerrors.ErrJoinRejected) {
			return 0, "", err
		}
		lastErr = err
		log.Warn("join failed, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case <-time.After(joinBackoff):
		}
	}
	return 0, "", lastErr
}

func runCLI(host string, port int, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: spinwheel -cli -h <host> -p <port> <command> [args...]")
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		fmt.Printf("Error connecting to %s:%d: %v\n", host, port, err)
		os.Exit(1)
	}
	defer conn.Close()

	// Build RESP request
	var req strings.Builder
	req.WriteString(fmt.Sprintf("*%d\r\n", len(args)))
	for _, arg := range args {
		req.WriteString(fmt.Sprintf("$%d\r\n%s\r\n", len(arg), arg))
	}

	if _, err := conn.Write([]byte(req.String())); err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}

	// Read RESP response (simple implementation)
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		fmt.Printf("Error reading response: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(string(buf[:n]))
}
