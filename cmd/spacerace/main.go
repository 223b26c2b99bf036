// cmd/spacerace/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/health"
	"github.com/opd-ai/go-spacerace/pkg/input"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/race"
	"github.com/opd-ai/go-spacerace/pkg/render"
	"github.com/opd-ai/go-spacerace/pkg/replay"
	"github.com/opd-ai/go-spacerace/pkg/results"
	"github.com/opd-ai/go-spacerace/pkg/telemetry"
)

// Memory limit for the readiness probe
const maxMemoryMB = 512

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "spacerace:", err)
		os.Exit(1)
	}
}

// options holds the parsed command line
type options struct {
	configPath    string
	coursePath    string
	scriptPath    string
	replayDir     string
	createDefault bool
	renderer      string
	renderEvery   int
	pilot         string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("spacerace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.createDefault, "default", false, "Create default configuration file and exit")
	fs.StringVar(&opts.coursePath, "course", "", "Path to course file (JSON or YAML)")
	fs.StringVar(&opts.scriptPath, "script", "", "Path to an input script to fly")
	fs.StringVar(&opts.replayDir, "replay", "", "Replay bundle directory to play back")
	fs.StringVar(&opts.renderer, "render", "none", "Renderer: terminal or none")
	fs.IntVar(&opts.renderEvery, "render-every", 6, "Draw a frame every N ticks")
	fs.StringVar(&opts.pilot, "pilot", "", "Pilot name, overrides configuration")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.renderEvery < 1 {
		opts.renderEvery = 1
	}
	return opts, nil
}

// run is main without the process exit, so it can be driven from tests
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if opts.createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), opts.configPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created default configuration %s\n", opts.configPath)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	if opts.coursePath == "" {
		return errors.New("a course file is required (-course)")
	}
	c, err := course.Load(opts.coursePath)
	if err != nil {
		return err
	}

	source, playback, err := openSource(opts, cfg, c)
	if err != nil {
		return err
	}
	if playback != nil {
		// The recorded flight settings win over the local configuration
		if err := playback.Configure(cfg); err != nil {
			return err
		}
	}

	sessionID := uuid.NewString()
	sessionOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSessionID(sessionID),
	}

	var recorder *replay.Recorder
	if cfg.Replay.Enabled && playback == nil {
		recorder, err = replay.NewRecorder(cfg.Replay.Dir, replay.Manifest{
			SessionID:      sessionID,
			Pilot:          cfg.Pilot.Name,
			CourseName:     c.Name(),
			CourseChecksum: c.Checksum(),
			TickRate:       cfg.Simulation.TickRate,
			Flight:         replay.FlightOf(cfg),
		}, nil)
		if err != nil {
			return err
		}
		defer recorder.Close()
		sessionOpts = append(sessionOpts, engine.WithRecorder(recorder))
	}

	var hub atomic.Pointer[telemetry.Hub]
	sessionOpts = append(sessionOpts, engine.WithObserver(func(snap engine.Snapshot) {
		if h := hub.Load(); h != nil {
			h.Publish(snap)
		}
	}))

	renderer := newRenderer(opts.renderer, stdout, logger)
	if renderer != nil {
		sessionOpts = append(sessionOpts, engine.WithObserver(func(snap engine.Snapshot) {
			if snap.Tick%uint64(opts.renderEvery) == 0 {
				if err := render.DrawFrame(renderer, c, snap); err != nil {
					logger.Warn(ctx, "render failed", "error", err)
				}
			}
		}))
	}

	session, err := engine.NewSession(c, cfg, source, sessionOpts...)
	if err != nil {
		return err
	}
	if recorder != nil {
		detach := recorder.Attach(session.Events())
		defer detach()
	}

	if err := runSession(ctx, cfg, session, &hub, logger); err != nil {
		return err
	}

	final := session.Snapshot()
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error(ctx, "failed to close replay", err, "dir", recorder.Dir())
		}
	}
	if renderer != nil {
		if err := render.DrawFrame(renderer, c, final); err != nil {
			logger.Warn(ctx, "render failed", "error", err)
		}
	}

	fmt.Fprintln(stdout, render.FormatHUD(final))
	if final.Race.Status == race.Racing || playback != nil || !cfg.Results.Enabled {
		return nil
	}

	replayDir := ""
	if recorder != nil {
		replayDir = recorder.Dir()
	}
	return storeResult(ctx, cfg, c, final, replayDir, stdout, logger)
}

func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.pilot != "" {
		cfg.Pilot.Name = opts.pilot
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openSource picks the input source: a replay, a script, or idle input.
// The replay is returned as well when one is used.
func openSource(opts options, cfg *config.Config, c *course.Course) (input.Source, *replay.Replay, error) {
	switch {
	case opts.replayDir != "":
		playback, err := replay.Open(opts.replayDir)
		if err != nil {
			return nil, nil, err
		}
		if err := playback.VerifyCourse(c); err != nil {
			return nil, nil, err
		}
		return playback, playback, nil
	case opts.scriptPath != "":
		script, err := input.LoadScript(opts.scriptPath, cfg.Input.Mapper())
		if err != nil {
			return nil, nil, err
		}
		return script, nil, nil
	default:
		return input.Idle{}, nil, nil
	}
}

func newRenderer(name string, out io.Writer, logger *logging.Logger) render.Renderer {
	switch name {
	case "terminal":
		return render.NewTerminalRenderer(out, 0, 0, 0)
	case "null":
		return render.NewNullRenderer(logger)
	default:
		return nil
	}
}

// runSession runs the simulation loop and, when enabled, the telemetry
// server. The server stops once the session ends.
func runSession(ctx context.Context, cfg *config.Config, session *engine.Session, hub *atomic.Pointer[telemetry.Hub], logger *logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var running atomic.Bool
	if cfg.Telemetry.Enabled {
		timestep := time.Duration(session.Timestep() * float64(time.Second))
		srv := telemetry.NewServer(cfg.Telemetry, session.Course(), session.Snapshot, logger,
			health.NewSimulationCheck(health.SimulationProbe{
				Running: running.Load,
				Tick:    func() uint64 { return session.Snapshot().Tick },
				Stats:   session.Monitor().Stats,
			}, timestep),
			health.NewMemoryCheck(maxMemoryMB, nil),
		)
		if err := srv.Listen(); err != nil {
			return err
		}
		detach := srv.Hub().Attach(session.Events())
		defer detach()
		hub.Store(srv.Hub())
		g.Go(func() error { return srv.Run(serverCtx) })
	}

	g.Go(func() error {
		defer stopServer()
		running.Store(true)
		defer running.Store(false)

		err := session.Run(gctx)
		if errors.Is(err, context.Canceled) {
			logger.Info(ctx, "session interrupted", "tick", session.Tick())
			return nil
		}
		return err
	})

	return g.Wait()
}

func storeResult(ctx context.Context, cfg *config.Config, c *course.Course, final engine.Snapshot, replayDir string, out io.Writer, logger *logging.Logger) error {
	store, err := results.Open(cfg.Results.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	run := results.NewRun(final, c, cfg.Pilot.Name, cfg.Simulation.TickRate)
	run.ReplayDir = replayDir
	if err := store.Record(ctx, &run); err != nil {
		return err
	}
	if run.Status != race.Finished.String() {
		return nil
	}

	best, err := store.PersonalBest(ctx, c.Checksum(), run.Pilot)
	if err != nil {
		return err
	}
	if best.SessionID == run.SessionID {
		fmt.Fprintf(out, "new personal best: %.3fs\n", run.Seconds)
	} else {
		fmt.Fprintf(out, "finished in %.3fs (personal best %.3fs)\n", run.Seconds, best.Seconds)
	}
	return nil
}
