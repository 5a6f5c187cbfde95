package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kalapa/internal/agenda"
	"kalapa/internal/config"
	"kalapa/internal/ics"
	appLog "kalapa/internal/log"
	"kalapa/internal/model"
	"kalapa/internal/recurrence"
	"kalapa/internal/reminder"
	"kalapa/internal/store"
	"kalapa/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	configureLogging(conf, flags.debug)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("kalapa starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"storage_driver", conf.Storage.Driver,
		"storage_path", conf.Storage.Path,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("kalapa exited with error", err)
		os.Exit(1)
	}
	appLog.Info("kalapa exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := conf.Location()

	backend, err := store.OpenBackend(ctx, conf.Storage.Driver, conf.Storage.Path)
	if err != nil {
		return err
	}
	st, err := store.New(ctx, backend, loc)
	if err != nil {
		backend.Close()
		return err
	}
	defer st.Close()

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL, Name: c.Name})
	}
	syncer := ics.NewSyncer(ics.NewFetcher(conf.CacheDir, nil), sources, loc)
	if err := syncer.Refresh(ctx); err != nil {
		appLog.Error("initial ics sync incomplete", err)
	}

	srv := web.NewServer(conf, st, syncer)

	if flags.once {
		return printExpanded(conf, srv, loc)
	}

	sched := reminder.NewScheduler(srv.Upcoming, reminder.LogNotifier{}, conf.Reminders.Settings, loc, nil)
	if err := sched.Start(conf.Reminders.Dispatch); err != nil {
		return err
	}
	defer sched.Stop()

	if len(sources) > 0 {
		if err := syncer.Start(conf.RefreshCron); err != nil {
			return err
		}
		defer syncer.Stop()
	}

	appLog.Info("signal handling ready; serving until interrupted")
	return srv.Run(ctx)
}

// printExpanded writes the expanded default window as JSON to stdout.
func printExpanded(conf *config.Config, srv *web.Server, loc *time.Location) error {
	win := recurrence.WindowAround(time.Now().In(loc), conf.Window.PastYears, conf.Window.FutureYears)
	res := srv.Expand(win.Start, model.EndOfDay(win.End))
	res.Events = agenda.SortChronological(res.Events)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func configureLogging(conf *config.Config, debug bool) {
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
		return
	}
	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/kalapa/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Sync subscriptions, print the expanded default window as JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
