package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/taflmagic/internal/board"
	"github.com/hailam/taflmagic/internal/config"
	"github.com/hailam/taflmagic/internal/magic"
	"github.com/hailam/taflmagic/internal/storage"
	"github.com/hailam/taflmagic/internal/tablefile"
)

// maskBytes is the in-memory size of one attack slot.
const maskBytes = 16

func main() {
	configPath := flag.String("config", "", "Path to config file")
	width := flag.Int("width", 0, "Board width (0 to use config default)")
	height := flag.Int("height", 0, "Board height (0 to use config default)")
	workers := flag.Int("workers", -1, "Squares searched in parallel (-1 to use config default, 0 for GOMAXPROCS)")
	seed := flag.Uint64("seed", 0, "Random seed for reproducible tables (0 to use config default)")
	policy := flag.String("policy", "", "Collision policy: relaxed or strict (empty to use config default)")
	out := flag.String("out", "", "Output file; a .zst suffix compresses (empty to use config default)")
	store := flag.Bool("store", false, "Also save the table in the local table store")
	name := flag.String("name", "", "Table name in the store (empty to use config default)")
	verify := flag.Bool("verify", false, "Check every blocker pattern against the oracle before saving")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	check := flag.String("check", "", "Load an existing table file, verify it and exit")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Flags override config
	if *width > 0 {
		cfg.Board.Width = *width
	}
	if *height > 0 {
		cfg.Board.Height = *height
	}
	if *workers >= 0 {
		cfg.Build.Workers = *workers
	}
	if *seed != 0 {
		cfg.Build.Seed = *seed
	}
	if *policy != "" {
		cfg.Build.Policy = *policy
	}
	if *out != "" {
		cfg.Output.Path = *out
	}
	if *store {
		cfg.Output.Store = true
	}
	if *name != "" {
		cfg.Output.Name = *name
	}
	if *verify {
		cfg.Build.Verify = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setupLogging(cfg.Log.Level, cfg.Log.Format)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", *cpuprofile).Msg("CPU profiling enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runFn := run
	if *check != "" {
		runFn = func(context.Context, *config.Config) error { return checkFile(*check) }
	}

	if err := runFn(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Build failed")
		stop()
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	g := cfg.Geometry()

	restricted := board.Empty
	if cfg.Board.Restricted {
		restricted = board.TaflRestricted(g)
	}
	oracle, err := board.NewOrthogonal(g, restricted)
	if err != nil {
		return err
	}

	policy, err := magic.ParsePolicy(cfg.Build.Policy)
	if err != nil {
		return err
	}

	size := magic.TableSize(oracle)
	log.Info().
		Str("board", g.String()).
		Str("entries", humanize.Comma(int64(size))).
		Str("memory", humanize.Bytes(uint64(size)*maskBytes)).
		Msg("Generating magic bitboard lookup table")

	builder := magic.NewBuilder(oracle)
	builder.Workers = cfg.Build.Workers
	builder.Seed = cfg.Build.Seed
	builder.Policy = policy
	builder.Logger = log.Logger
	builder.Progress = func(p magic.Progress) {
		log.Info().
			Str("progress", fmt.Sprintf("%5.1f%%", float64(p.Done)/float64(p.Total)*100)).
			Str("square", g.Name(p.Square)).
			Int("relevant_bits", p.RelevantBits).
			Int("trials", p.Trials).
			Str("elapsed", p.Elapsed.Round(10*time.Millisecond).String()).
			Msgf("Square %d/%d", p.Done, p.Total)
	}

	table, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build table: %w", err)
	}

	if cfg.Build.Verify {
		start := time.Now()
		if err := table.Verify(oracle); err != nil {
			return err
		}
		log.Info().Dur("elapsed", time.Since(start)).Msg("Table verified against oracle")
	}

	path, err := outputPath(cfg)
	if err != nil {
		return err
	}
	if err := tablefile.Save(path, table); err != nil {
		return err
	}
	fields := log.Info().Str("path", path).Str("build_id", table.BuildID())
	if fi, err := os.Stat(path); err == nil {
		fields = fields.Str("size", humanize.Bytes(uint64(fi.Size())))
	}
	fields.Msg("Table written")

	if cfg.Output.Store {
		s, err := storage.NewStorage()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveTable(cfg.Output.Name, table); err != nil {
			return err
		}
		log.Info().Str("name", cfg.Output.Name).Msg("Table stored")
	}

	return nil
}

// outputPath returns the configured output file, or the named file in the
// local table directory when none is configured.
func outputPath(cfg *config.Config) (string, error) {
	if cfg.Output.Path != "" {
		return cfg.Output.Path, nil
	}
	return storage.TableFile(cfg.Output.Name)
}

// checkFile loads a table the way a consumer would and verifies it against
// the oracle for the board and restricted squares it declares.
func checkFile(path string) error {
	start := time.Now()
	table, err := tablefile.Load(path)
	if err != nil {
		return err
	}
	g := table.Geometry()
	log.Info().
		Str("path", path).
		Str("board", g.String()).
		Str("build_id", table.BuildID()).
		Int("restricted", table.Restricted().OnesCount()).
		Str("entries", humanize.Comma(int64(table.Len()))).
		Dur("elapsed", time.Since(start)).
		Msg("Table loaded")

	oracle, err := board.NewOrthogonal(g, table.Restricted())
	if err != nil {
		return err
	}
	if err := table.Verify(oracle); err != nil {
		return err
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Table verified against oracle")
	return nil
}

func setupLogging(level, format string) {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if format == "json" || os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
}
