package main

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/melprint/pkg/logger"
	"github.com/himanishpuri/melprint/pkg/melprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
)

var (
	port           int
	dbPath         string
	backend        string
	tempDir        string
	allowedOrigins string
	pipeline       melprint.PipelineFlags
)

func registerFlags(fs *flag.FlagSet) {
	fs.IntVar(&port, "port", 8080, "HTTP server port")
	fs.StringVar(&dbPath, "db", getEnvOrDefault(melprint.EnvDBPath, storage.DefaultDBFile), "Path to the SQLite file or Badger directory")
	fs.StringVar(&backend, "backend", getEnvOrDefault(melprint.EnvBackend, melprint.BackendSQLite), "Index backend: sqlite, badger or memory")
	fs.StringVar(&tempDir, "temp", getEnvOrDefault(melprint.EnvTempDir, os.TempDir()), "Temporary directory for uploads")
	fs.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	pipeline.Register(fs)
}

// serviceOptions must produce the same pipeline the CLI used to build the index.
func serviceOptions(log melprint.Logger) ([]melprint.Option, error) {
	opts, err := pipeline.Options()
	if err != nil {
		return nil, err
	}
	return append(opts,
		melprint.WithDBPath(dbPath),
		melprint.WithBackend(backend),
		melprint.WithTempDir(tempDir),
		melprint.WithLogger(log),
	), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	origins := strings.Split(s, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	_ = godotenv.Load()
	registerFlags(flag.CommandLine)
	flag.Parse()

	log := logger.GetLogger().With("[server]")

	opts, err := serviceOptions(log)
	if err != nil {
		log.Fatalf("Invalid pipeline flags: %v", err)
	}
	service, err := melprint.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		Backend:        backend,
		DBPath:         dbPath,
		TempDir:        tempDir,
		AllowedOrigins: parseOrigins(allowedOrigins),
	}

	server := NewServer(service, config, log)
	if err := server.Start(); err != nil {
		log.Errorf("Server failed: %v", err)
		service.Close()
		os.Exit(1)
	}
}
