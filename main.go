package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raine/landadmin/config"
	"github.com/raine/landadmin/internal/api"
	"github.com/raine/landadmin/internal/credentials"
	"github.com/raine/landadmin/internal/records"
	"github.com/raine/landadmin/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText()) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadEnvFile()

	// The sqlite store can't be opened without a key. Offer to create one.
	if needsSetup() {
		if isInteractiveTerminal() {
			if !runSetupWizard() {
				waitOnWindows()
				os.Exit(1)
			}
		} else {
			fatalWithWait("LANDADMIN_TOKEN_KEY is not set")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalWithWait("%v", err)
	}
	setLogLevel(cfg.LogLevel, *verbose)

	store, closeStore, err := openStorage(cfg)
	if err != nil {
		fatalWithWait("failed to open credential storage: %v", err)
	}
	defer closeStore()
	log.Debug().Str("storage", cfg.Storage).Msg("credential storage opened")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancelTimeout()

	nav := api.NewMemoryNavigator("/" + args[0])
	creds := credentials.NewStore(store)
	client := api.NewClient(api.ClientOpts{
		BaseURL:     cfg.BaseURL,
		Credentials: creds,
		Navigator:   nav,
	})
	a := &app{
		cfg:     cfg,
		client:  client,
		records: records.NewService(client),
		creds:   creds,
		out:     os.Stdout,
		in:      os.Stdin,
	}

	err = a.run(ctx, args)
	if nav.Location() == api.LoginLocation {
		fmt.Fprintln(os.Stderr, "Session expired. Run `landadmin login` to sign in again.")
	}
	if err != nil {
		cancelTimeout()
		cancel()
		closeStore()
		fatalWithWait("%s", describeError(err))
	}
}

func needsSetup() bool {
	storageKind := strings.ToLower(strings.TrimSpace(os.Getenv("LANDADMIN_STORAGE")))
	if storageKind != "" && storageKind != config.StorageSQLite {
		return false
	}
	return os.Getenv("LANDADMIN_TOKEN_KEY") == ""
}

func setLogLevel(level string, verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openStorage returns the configured credential storage and a function that
// releases it.
func openStorage(cfg config.Config) (credentials.Storage, func(), error) {
	var key []byte
	if cfg.TokenKey != "" {
		derived, err := storage.DeriveKey(cfg.TokenKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		key = derived
	}

	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory credential storage, the session ends with this process")
		return storage.NewMemoryStore(), func() {}, nil
	case config.StorageRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := storage.NewRedisStore(client, cfg.RedisPrefix, key)
		return store, func() { store.Close() }, nil
	default:
		store, err := storage.NewSQLiteStore(cfg.DBPath, key)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

func describeError(err error) string {
	var httpErr *api.HTTPError
	switch {
	case errors.Is(err, api.ErrOperatorReadOnly):
		return "Your role (Operator) can view records but not change or delete them."
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, api.ErrNoAccessToken):
		return fmt.Sprintf("Not signed in: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Check LANDADMIN_API_BASE_URL and try again."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("The server rejected the request (%d %s): %s", httpErr.StatusCode, httpErr.Status, httpErr.Body)
	}
	return err.Error()
}
