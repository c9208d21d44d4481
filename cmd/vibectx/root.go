package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mgomes/vibectx/config"
	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/services"
	"github.com/mgomes/vibectx/store"
	"github.com/mgomes/vibectx/vibectx"
	"github.com/mgomes/vibectx/vibes"
)

// app carries what every command shares once the configuration is loaded.
type app struct {
	cfgFile   string
	envFiles  []string
	storeKind string
	storeDir  string
	logLevel  string

	cfg     *config.Config
	logger  *log.Logger
	engine  *vibes.Engine
	backend store.Backend
	units   *store.Units
	origins *store.OriginCache
	caps    *registry.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "vibectx",
		Short: "Compile, prompt and run capability-context units",
		Long: headerStyle.Render("vibectx") + mutedStyle.Render(" - capability contexts for generated code") + `

A unit is a VibeScript program whose Capabilities class declares the
services generated code may use. vibectx compiles units against a
descriptor, renders them as prompts and executes generated code inside
them, persisting capability state between turns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./vibectx.{yaml,toml,json})")
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	flags.StringVar(&a.storeKind, "store", "", "unit store backend: memory, file, s3 or postgres")
	flags.StringVar(&a.storeDir, "store-dir", "", "directory for the file store")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newRunCmd(a),
		newPromptCmd(a),
		newTestCmd(a),
		newLintCmd(a),
		newReplCmd(a),
		newUnitCmd(a),
	)
	a.closeAfter(root)
	return root
}

// closeAfter wraps every runnable command so the app is released whether
// or not the command succeeds.
func (a *app) closeAfter(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		a.closeAfter(sub)
	}
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		return errors.Join(err, a.close())
	}
}

func (a *app) setup(ctx context.Context, stderr io.Writer) (err error) {
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()
	cfg, _, err := config.Load(ctx, config.LoadOptions{ConfigFile: a.cfgFile, EnvFiles: a.envFiles})
	if err != nil {
		return err
	}
	if a.storeKind != "" {
		cfg.Store.Backend = a.storeKind
	}
	if a.storeDir != "" {
		cfg.Store.Dir = a.storeDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger, err = config.NewLogger(cfg.Log, stderr); err != nil {
		return err
	}
	if a.engine, err = vibes.NewEngine(cfg.VibesConfig()); err != nil {
		return err
	}
	if a.backend, err = store.Open(ctx, cfg.StoreConfig()); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.units = store.NewUnits(a.backend)
	if a.origins, err = store.NewOriginCache(cfg.OriginCacheSize); err != nil {
		return err
	}
	if a.caps, err = a.capabilities(); err != nil {
		return err
	}
	a.logger.Debug("configured", "store", cfg.Store.Backend, "cache", cfg.OriginCacheSize)
	return nil
}

// capabilities registers the built-in services by the type names units
// declare them under.
func (a *app) capabilities() (*registry.Registry, error) {
	r := registry.New()
	errs := []error{r.RegisterFactory("KV", func(context.Context, *registry.Registry) (any, error) {
		return services.NewKV(a.backend, "kv"), nil
	}, true)}
	errs = append(errs, r.RegisterFactory("Events", func(context.Context, *registry.Registry) (any, error) {
		return services.NewEvents(func(ev services.Event) {
			a.logger.Info("event published", "topic", ev.Topic, "source", ev.Source, "id", ev.ID)
		}), nil
	}, false))
	errs = append(errs, r.RegisterFactory("Shell", func(context.Context, *registry.Registry) (any, error) {
		dir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return services.NewShell(dir), nil
	}, true))
	errs = append(errs, r.RegisterFactory("Jobs", func(context.Context, *registry.Registry) (any, error) {
		return services.NewJobs(a.jobHandlers(), a.cfg.HarnessConcurrency, a.logger), nil
	}, true))
	if dsn := a.cfg.Store.DSN; dsn != "" {
		errs = append(errs, r.RegisterFactory("SQL", func(ctx context.Context, _ *registry.Registry) (any, error) {
			return services.OpenSQL(ctx, dsn)
		}, true))
	}
	return r, errors.Join(errs...)
}

// jobHandlers are the jobs units may enqueue. "shell" runs payload["script"]
// in the working directory; "log" records the payload.
func (a *app) jobHandlers() map[string]services.JobHandler {
	return map[string]services.JobHandler{
		"log": func(_ context.Context, payload map[string]any) error {
			a.logger.Info("job", "payload", payload)
			return nil
		},
		"shell": func(ctx context.Context, payload map[string]any) error {
			script, _ := payload["script"].(string)
			if script == "" {
				return errors.New("shell job: script is required")
			}
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			res, err := services.NewShell(dir).Run(ctx, script)
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("shell job: exit status %d: %s", res.ExitCode, res.Stderr)
			}
			a.logger.Debug("shell job finished", "stdout", res.Stdout)
			return nil
		},
	}
}

func (a *app) close() error {
	var errs []error
	if a.caps != nil {
		errs = append(errs, a.caps.Shutdown())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}

// compilerOptions are the options every compile shares, apart from the
// descriptor and capability registry.
func (a *app) compilerOptions() []vibectx.Option {
	return []vibectx.Option{
		vibectx.WithUnits(a.units),
		vibectx.WithOriginCache(a.origins),
		vibectx.WithIgnoredOriginPrefixes(a.cfg.IgnoredOrigins...),
	}
}

func (a *app) compile(ctx context.Context, d *descriptor.Descriptor) (*vibectx.Runtime, error) {
	opts := append([]vibectx.Option{
		vibectx.WithCapabilityRegistry(a.caps),
		vibectx.WithDescriptor(d),
		vibectx.WithLogger(a.logger),
	}, a.compilerOptions()...)
	return vibectx.NewCompiler(a.engine, opts...).Compile(ctx, "")
}

var errNoSource = errors.New("nothing to compile: pass --unit, --file, --descriptor or --context")

// sourceFlags select what a command compiles: a stored unit, a local
// script, a descriptor file or a combination.
type sourceFlags struct {
	unit       string
	file       string
	descriptor string
	context    string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.unit, "unit", "u", "", "stored unit to use as origin")
	cmd.Flags().StringVarP(&s.file, "file", "f", "", "script file used as inline source")
	cmd.Flags().StringVarP(&s.descriptor, "descriptor", "d", "", "descriptor file (.json or .toml)")
	cmd.Flags().StringVar(&s.context, "context", "", "descriptor stored in the unit store under this id")
	cmd.MarkFlagsMutuallyExclusive("descriptor", "context")
}

func (s *sourceFlags) load(ctx context.Context, units *store.Units) (*descriptor.Descriptor, error) {
	d := descriptor.New()
	switch {
	case s.context != "":
		loaded, err := units.LoadDescriptor(ctx, s.context)
		switch {
		case err == nil:
			d = loaded
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	case s.descriptor != "":
		// A missing descriptor file starts a fresh context.
		loaded, err := descriptor.Load(s.descriptor)
		switch {
		case err == nil:
			d = loaded
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	if s.unit != "" {
		d.OriginRef = s.unit
	}
	if s.file != "" {
		src, err := os.ReadFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		d.InlineSource = string(src)
	}
	if !d.HasSource() {
		return nil, errNoSource
	}
	return d, nil
}
