package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/audio"
	"github.com/satindergrewal/soundscape/internal/cli"
	"github.com/satindergrewal/soundscape/internal/config"
	"github.com/satindergrewal/soundscape/internal/coordinator"
	"github.com/satindergrewal/soundscape/internal/life"
	"github.com/satindergrewal/soundscape/internal/palette"
	"github.com/satindergrewal/soundscape/internal/render"
	"github.com/satindergrewal/soundscape/internal/rules"
	"github.com/satindergrewal/soundscape/internal/stream"
	"github.com/satindergrewal/soundscape/internal/tui"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Version    bool   `short:"v" help:"Show version information"`
	Config     string `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	TUI        bool   `name:"tui" help:"Show the terminal dashboard instead of a window"`
	Mute       bool   `help:"Analyze without playing audio"`
	Fullscreen bool   `help:"Start fullscreen"`
	Seed       uint64 `help:"Seed for the initial grid (0 picks one)"`
	Scheme     string `help:"Colour scheme: classic, heat, rainbow, pulse"`
	Edge       string `help:"Edge behaviour: wrap, dead, alive"`
	Log        string `type:"path" help:"Write logs to this file while the dashboard is shown"`
	File       string `arg:"" name:"file" help:"Audio file to play (WAV or Ogg Opus)" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("soundscape"),
		kong.Description("Game of Life driven by the music it plays"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.HelpPrinter),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	if cliArgs.File == "" {
		cli.PrintError("No audio file specified")
		ctx.PrintUsage(false)
		os.Exit(1)
	}

	if err := run(cliArgs); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over the file and environment.
func loadConfig(args *CLI) (config.Config, error) {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return cfg, err
	}
	if args.Fullscreen {
		cfg.Window.Fullscreen = true
	}
	if args.Seed != 0 {
		cfg.Simulation.Seed = args.Seed
	}
	if args.Scheme != "" {
		cfg.Visualization.ColorScheme = args.Scheme
	}
	if args.Edge != "" {
		cfg.Simulation.EdgeBehavior = args.Edge
	}
	return cfg, cfg.Validate()
}

func run(args *CLI) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	// Validate has already checked every name below.
	edge, _ := life.ParseEdgePolicy(cfg.Simulation.EdgeBehavior)
	endPolicy, _ := coordinator.ParseEndPolicy(cfg.Simulation.EndOfStream)
	scheme, _ := palette.ParseScheme(cfg.Visualization.ColorScheme)

	log.Printf("Soundscape %s starting up...", version)

	src, err := audio.Open(args.File, audio.DecodeOptions{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})
	if err != nil {
		return err
	}
	defer src.Close()
	log.Printf("Loaded %s: %d Hz, %d ch, %s", filepath.Base(args.File), src.SampleRate(), src.Channels(), src.Duration().Round(time.Second))

	var sink audio.Sink
	if !args.Mute {
		sink, err = audio.NewDeviceSink(src.SampleRate(), src.Channels())
		if err != nil {
			log.Printf("Audio output unavailable, continuing muted: %v", err)
			sink = nil
		}
	}
	if sink == nil {
		sink = audio.NewClockSink()
	}
	defer sink.Close()

	an, err := analyzer.New(analyzer.Config{
		WindowSize: cfg.Audio.FFTSize,
		Bass:       analyzer.Band(cfg.Audio.BassRange),
		Mid:        analyzer.Band(cfg.Audio.MidRange),
		Treble:     analyzer.Band(cfg.Audio.TrebleRange),
		PeakDecay:  cfg.Audio.PeakDecay,
	})
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	eng, err := life.New(life.Config{
		Width:   cfg.Simulation.Width,
		Height:  cfg.Simulation.Height,
		Density: cfg.Simulation.InitialDensity,
		Edge:    edge,
	}, rand.New(rand.NewPCG(seed, seed>>1|1)))
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	log.Printf("Grid %dx%d, edges %s, seed %d", eng.Width(), eng.Height(), eng.Edge(), seed)

	out := stream.NewBroadcaster()
	defer out.Close()

	pipeline := audio.NewPipeline(src, cfg.Audio.ChunkSize, cfg.Audio.QueueDepth, src.Duration())
	coord := coordinator.New(coordinator.Config{
		TickRate:   cfg.Simulation.UpdateRate,
		MaxCatchUp: cfg.Simulation.MaxCatchUp,
		Hop:        cfg.Audio.AnalysisHop(),
		Sensitivity: rules.Sensitivity{
			Bass:   cfg.Audio.Sensitivity.Bass,
			Mid:    cfg.Audio.Sensitivity.Mid,
			Treble: cfg.Audio.Sensitivity.Treble,
		},
		EndPolicy: endPolicy,
		Duration:  src.Duration(),
	}, pipeline, sink, an, eng, out)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go coord.Run(ctx)

	// The view outlives a frozen pipeline but not a failed one.
	uiCtx, uiCancel := context.WithCancel(ctx)
	defer uiCancel()
	go func() {
		<-coord.Done()
		if !coordinator.IsStopped(coord.Err()) {
			uiCancel()
		}
	}()

	// The UI returns only after it has stopped the pipeline and seen it finish,
	// except in the no-terminal path, which is stopped here.
	uiErr := runUI(uiCtx, args, cfg, scheme, coord, out, eng.Width(), eng.Height())

	log.Println("Shutting down...")
	coord.Stop()
	<-coord.Done()

	if uiErr != nil {
		return uiErr
	}
	if err := coord.Err(); !coordinator.IsStopped(err) {
		return err
	}
	st := coord.Status()
	log.Printf("Played %s, %d ticks, %d skipped, %d frames published", st.Position.Round(time.Second), st.Ticks, st.Dropped, out.Published())
	return nil
}

// runUI shows the window, or the terminal dashboard when there is no
// display, or nothing when there is no terminal either.
func runUI(ctx context.Context, args *CLI, cfg config.Config, scheme palette.Scheme, coord *coordinator.Coordinator, out *stream.Broadcaster, gridW, gridH int) error {
	title := fmt.Sprintf("%s - %s", cfg.Window.Title, filepath.Base(args.File))

	if !args.TUI {
		err := render.ErrNoDisplay
		if hasDisplay() {
			err = render.Run(ctx, out, coord, coord.Done(), gridW, gridH, render.Options{
				Title:      title,
				Width:      cfg.Window.Width,
				Height:     cfg.Window.Height,
				CellSize:   cfg.Visualization.CellSize,
				Fullscreen: cfg.Window.Fullscreen,
				Scheme:     scheme,
				FadeRate:   cfg.Visualization.FadeRate,
				ShowHUD:    true,
			})
		}
		if !errors.Is(err, render.ErrNoDisplay) {
			return err
		}
		log.Println("No display available, using the terminal dashboard")
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Println("No terminal either, running until the audio ends")
		select {
		case <-coord.Done():
		case <-ctx.Done():
		}
		return nil
	}
	return runTUI(ctx, args, title, coord, out)
}

func runTUI(ctx context.Context, args *CLI, title string, coord *coordinator.Coordinator, out *stream.Broadcaster) error {
	// Log lines would tear the dashboard.
	if args.Log != "" {
		f, err := tea.LogToFile(args.Log, "soundscape")
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}

	// Signals reach the dashboard as a stop request so it outlives the pipeline.
	p := tea.NewProgram(tui.NewModel(title, out, coord, coord.Done()), tea.WithAltScreen(), tea.WithoutSignalHandler())
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			p.Send(tui.StopMsg{})
		case <-exited:
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// hasDisplay reports whether a window can be opened. Only X11 and Wayland
// systems can be checked up front.
func hasDisplay() bool {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	}
	return true
}
