package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/melprint/pkg/logger"
	"github.com/himanishpuri/melprint/pkg/melprint"
	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
	"github.com/himanishpuri/melprint/pkg/models"
	"github.com/himanishpuri/melprint/pkg/utils"
)

// Global flags
var (
	dbPath   string
	backend  string
	tempDir  string
	logLevel string
	pipeline melprint.PipelineFlags
)

func registerGlobalFlags(fs *flag.FlagSet) {
	fs.StringVar(&dbPath, "db", getEnvOrDefault(melprint.EnvDBPath, storage.DefaultDBFile), "Path to the SQLite file or Badger directory")
	fs.StringVar(&backend, "backend", getEnvOrDefault(melprint.EnvBackend, melprint.BackendSQLite), "Index backend: sqlite, badger or memory")
	fs.StringVar(&tempDir, "temp", getEnvOrDefault(melprint.EnvTempDir, os.TempDir()), "Directory for temporary audio conversion files")
	pipeline.Register(fs)
	fs.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new melprint service with configured options
func createService(extra ...melprint.Option) (melprint.Service, error) {
	opts, err := pipeline.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		melprint.WithTempDir(tempDir),
		melprint.WithLogger(logger.GetLogger()),
		melprint.WithDBPath(dbPath),
		melprint.WithBackend(backend),
	)
	return melprint.NewService(append(opts, extra...)...)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	flag.CommandLine.Usage = printUsage
	registerGlobalFlags(flag.CommandLine)
	flag.Parse()

	log := logger.GetLogger()
	if lvl, err := logger.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("%v, keeping %s", err, log.Level())
	}

	args := flag.Args()
	if len(args) < 1 {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	log.Debugf("Executing command: %s", command)

	var err error
	switch command {
	case "enroll", "add":
		err = handleEnroll(rest)
	case "identify", "match":
		err = handleIdentify(rest)
	case "fingerprint":
		err = handleFingerprint(rest)
	case "list":
		err = handleList()
	case "remove", "delete":
		err = handleRemove(rest)
	case "help", "-h", "--help":
		printBanner()
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("\n❌ %v\n", err)
		log.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
                 _            _       _   
  _ __ ___   ___| |_ __  _ __(_)_ __ | |_ 
 | '_ ` + "`" + ` _ \ / _ \ | '_ \| '__| | '_ \| __|
 | | | | | |  __/ | |_) | |  | | | | | |_ 
 |_| |_| |_|\___|_| .__/|_|  |_|_| |_|\__|
                  |_|                     
        Mel-spectrogram Audio Fingerprinting
`
	fmt.Println(banner)
}

// splitArgs separates positional arguments from trailing subcommand flags.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleEnroll(args []string) error {
	log := logger.GetLogger()

	paths, flagArgs := splitArgs(args)
	enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
	id := enrollCmd.String("id", "", "Track id (single file only; default: \"Artist - Title\" from tags, else the file name)")
	workers := enrollCmd.Int("workers", 2, "Files fingerprinted in parallel")
	enrollCmd.Parse(flagArgs)
	paths = append(paths, enrollCmd.Args()...)

	if len(paths) == 0 {
		fmt.Println("Usage: melprint enroll <audio_file|dir>... [--id <track id>] [--workers <n>]")
		os.Exit(1)
	}

	files, err := utils.ExpandAudioPaths(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no audio files found")
	}
	if *id != "" && len(files) > 1 {
		return fmt.Errorf("--id applies to a single file, got %d", len(files))
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	if len(files) == 1 {
		start := time.Now()
		trackID, n, err := svc.EnrollFile(context.Background(), files[0], *id)
		if err != nil {
			return fmt.Errorf("failed to enroll %s: %w", files[0], err)
		}
		fmt.Println("\n✅ Successfully enrolled track!")
		fmt.Printf("   ID:     %s\n", trackID)
		fmt.Printf("   Tokens: %s\n", humanize.Comma(int64(n)))
		fmt.Printf("   Took:   %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	}

	// keep log lines from tearing the progress bar
	log.SetLevel(max(log.Level(), logger.WARN))

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Enrolling: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	var tokens, failed atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(1, *workers))
	for _, path := range files {
		g.Go(func() error {
			start := time.Now()
			defer func() { bar.EwmaIncrement(time.Since(start)) }()
			_, n, err := svc.EnrollFile(ctx, path, "")
			if err != nil {
				if errors.Is(err, fingerprint.ErrIndexUnavailable) {
					return err
				}
				failed.Add(1)
				log.Warnf("Skipping %s: %v", path, err)
				return nil
			}
			tokens.Add(int64(n))
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		bar.Abort(false)
	}
	p.Wait()
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Enrolled %d of %d files, %s tokens\n",
		len(files)-int(failed.Load()), len(files), humanize.Comma(tokens.Load()))
	return nil
}

func handleIdentify(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: melprint identify <audio_file>")
		os.Exit(1)
	}
	audioPath := args[0]

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := svc.IdentifyFile(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("failed to identify: %w", err)
	}
	if res == nil {
		fmt.Println("\n📭 No match found")
		return nil
	}

	fmt.Printf("\n✅ Match: %q\n", res.TrackID)
	fmt.Printf("   %s of %s query tokens also appear in this track\n",
		humanize.Comma(int64(res.Confidence)), humanize.Comma(int64(res.QueryTokens)))

	const maxDisplay = 5
	if len(res.Candidates) > 1 {
		fmt.Println("\n🎵 Candidates:")
		for i, c := range res.Candidates {
			if i == maxDisplay {
				fmt.Printf("   ... and %d more\n", len(res.Candidates)-maxDisplay)
				break
			}
			fmt.Printf("   %d. %s (%s votes)\n", i+1, c.TrackID, humanize.Comma(int64(c.Votes)))
		}
	}
	return nil
}

func handleFingerprint(args []string) error {
	paths, flagArgs := splitArgs(args)
	fpCmd := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	asJSON := fpCmd.Bool("json", false, "Print tokens as JSON for the HTTP API")
	fpCmd.Parse(flagArgs)

	if len(paths) != 1 {
		fmt.Println("Usage: melprint fingerprint <audio_file> [--json]")
		os.Exit(1)
	}

	// no index is touched, so never open the configured one
	svc, err := createService(melprint.WithIndex(storage.NewMemory()))
	if err != nil {
		return err
	}
	defer svc.Close()

	buf, err := loadBuffer(paths[0])
	if err != nil {
		return err
	}
	fps, stats, err := svc.Fingerprint(buf)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(models.NewTokenFile(fps))
	}

	fmt.Printf("%s: %s of audio at %d Hz\n", paths[0], buf.Duration().Round(time.Millisecond), buf.SampleRate)
	fmt.Printf("   Frames: %s x %d bins\n", humanize.Comma(int64(stats.Frames)), stats.Bins)
	fmt.Printf("   Peaks:  %s\n", humanize.Comma(int64(stats.Peaks)))
	fmt.Printf("   Tokens: %s\n", humanize.Comma(int64(stats.Tokens)))
	return nil
}

func handleList() error {
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	tracks, err := svc.ListTracks(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}

	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks enrolled")
		return nil
	}

	fmt.Printf("\n📚 Found %d track(s):\n\n", len(tracks))
	for i, t := range tracks {
		fmt.Printf("%d. %s\n", i+1, t.ID)
		fmt.Printf("   Tokens: %s | Enrolled %s\n", humanize.Comma(int64(t.TokenCount)), humanize.Time(t.CreatedAt))
	}
	return nil
}

func handleRemove(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: melprint remove <track_id>")
		os.Exit(1)
	}
	trackID := args[0]

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	ctx := context.Background()
	track, err := svc.Track(ctx, trackID)
	if err != nil {
		return fmt.Errorf("track %q: %w", trackID, err)
	}
	if err := svc.RemoveTrack(ctx, trackID); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	fmt.Printf("\n✅ Removed %q (%s tokens)\n", track.ID, humanize.Comma(int64(track.TokenCount)))
	return nil
}

func printUsage() {
	fmt.Println("melprint - Audio Fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path>         SQLite file or Badger directory (env: MELPRINT_DB_PATH, default: melprint.sqlite3)")
	fmt.Println("  -backend <name>    sqlite, badger or memory (env: MELPRINT_BACKEND, default: sqlite)")
	fmt.Println("  -temp <dir>        Temporary directory for ffmpeg output (env: MELPRINT_TEMP_DIR)")
	fmt.Println("  -rate <hz>         ffmpeg target sample rate (default: 44100)")
	fmt.Println("  -threshold <db>    Peak threshold (default: -40)")
	fmt.Println("  -peaks <name>      flat, local or adaptive (default: flat)")
	fmt.Println("  -hash <name>       sha256 or xxhash (default: sha256)")
	fmt.Println("  -token-len <n>     Hex characters per token (default: 10)")
	fmt.Println("  -tie <rule>        first-seen, first-to-reach or lexical")
	fmt.Println("  -log-level <lvl>   debug, info, warn, error (env: LOG_LEVEL)")
	fmt.Println("\nUsage:")
	fmt.Println("  melprint [global-options] enroll <audio_file|dir>... [--id <track id>] [--workers <n>]")
	fmt.Println("  melprint [global-options] identify <audio_file>")
	fmt.Println("  melprint [global-options] fingerprint <audio_file> [--json]")
	fmt.Println("  melprint [global-options] list")
	fmt.Println("  melprint [global-options] remove <track_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  melprint enroll song.wav --id \"Artist - Song\"")
	fmt.Println("  melprint -backend badger -db ./index enroll ~/Music")
	fmt.Println("  melprint identify clip.mp3")
}
