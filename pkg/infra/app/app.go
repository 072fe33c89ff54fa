// Package app builds a Cobra command tree whose subcommands share one options
// struct, loaded from a YAML file, prefixed environment variables and flags.
// Explicitly set flags always win over the file.
//
// Usage:
//
//	app := app.NewApp(
//	    app.WithName("qgpt"),
//	    app.WithDescription("Table retrieval evaluation"),
//	    app.WithOptions(opts),
//	    app.WithCommands(newBuildCommand(opts), newSearchCommand(opts)),
//	)
//	app.Run()
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	options "github.com/kart-io/qgpt/pkg/app"
	"github.com/kart-io/qgpt/pkg/app/cliflag"
)

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     options.CliOptions
	runFunc     RunFunc
	initFunc    InitFunc
	commands    []*cobra.Command
	cmd         *cobra.Command
	v           *viper.Viper
	silence     bool
	noVersion   bool
	noConfig    bool
}

// RunFunc is the application's run function.
type RunFunc func(ctx context.Context, args []string) error

// InitFunc runs after options are loaded and validated, before any command.
type InitFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) {
		a.shortDesc = desc
	}
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the CLI options.
func WithOptions(opts options.CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the root run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithInitFunc sets a hook run once options are ready, e.g. logger setup.
func WithInitFunc(fn InitFunc) Option {
	return func(a *App) {
		a.initFunc = fn
	}
}

// WithCommands registers subcommands. They share the root's options.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) {
		a.commands = append(a.commands, cmds...)
	}
}

// WithSilence disables usage and error printing.
func WithSilence() Option {
	return func(a *App) {
		a.silence = true
	}
}

// WithNoVersion disables version flag.
func WithNoVersion() Option {
	return func(a *App) {
		a.noVersion = true
	}
}

// WithNoConfig disables config file loading.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{
		name: filepath.Base(os.Args[0]),
		v:    viper.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.buildCommand()
	return a
}

// buildCommand creates the cobra command tree.
func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:               a.name,
		Short:             a.shortDesc,
		Long:              a.description,
		PersistentPreRunE: a.prepare,
		// Always silence usage on errors - users can use --help to see usage
		SilenceUsage: true,
	}
	if a.runFunc != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			return a.runFunc(c.Context(), args)
		}
	}

	if a.silence {
		cmd.SilenceErrors = true
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	a.addGlobalFlags(cmd)

	// 选项标志挂在 persistent flags 上，子命令共享同一份配置
	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			cmd.PersistentFlags().AddFlagSet(fss.FlagSets[name])
		}
		cmd.SetUsageFunc(func(c *cobra.Command) error {
			fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s\n", c.UseLine())
			if c.HasAvailableSubCommands() {
				fmt.Fprintln(c.OutOrStderr(), "\nAvailable Commands:")
				for _, sub := range c.Commands() {
					if sub.IsAvailableCommand() {
						fmt.Fprintf(c.OutOrStderr(), "  %-12s %s\n", sub.Name(), sub.Short)
					}
				}
			}
			if c.HasAvailableLocalFlags() {
				fmt.Fprintf(c.OutOrStderr(), "\nFlags:\n%s", c.LocalFlags().FlagUsages())
			}
			cliflag.PrintSections(c.OutOrStderr(), fss, 0)
			return nil
		})
	}

	cmd.AddCommand(a.commands...)
	a.cmd = cmd
}

// addGlobalFlags adds global flags to the command.
func (a *App) addGlobalFlags(cmd *cobra.Command) {
	if !a.noConfig {
		cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	}

	if !a.noVersion {
		version.AddFlags(cmd.PersistentFlags())
	}

	cmd.PersistentFlags().BoolP("help", "h", false, "Help for "+a.name)
}

// prepare loads configuration and completes options before any command runs.
func (a *App) prepare(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.initFunc != nil {
		return a.initFunc()
	}
	return nil
}

// loadConfig reads the config file, then overlays QGPT_ style environment
// variables, then re-applies flags the user set explicitly.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.v
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+a.name), "/etc/" + a.name} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	prefix := EnvPrefix(a.name)
	keyReplacer := strings.NewReplacer(".", "_", "-", "_")
	expandEnvVars(v, func(key string) bool {
		_, ok := os.LookupEnv(prefix + "_" + strings.ToUpper(keyReplacer.Replace(key)))
		return ok
	})

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(keyReplacer)
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}
	// Keys known only as flags are otherwise invisible to Unmarshal.
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindEnv(f.Name)
	})

	var restore []func() error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			vals := sv.GetSlice()
			restore = append(restore, func() error { return sv.Replace(vals) })
			return
		}
		val := f.Value.String()
		restore = append(restore, func() error { return f.Value.Set(val) })
	})
	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, fn := range restore {
		if err := fn(); err != nil {
			return fmt.Errorf("failed to re-apply flag: %w", err)
		}
	}
	return nil
}

// EnvPrefix returns the environment variable prefix for an application name.
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// GetVersion returns the git version stamped into the binary.
func GetVersion() string {
	return version.Get().GitVersion
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR} and $VAR in string config values. Unset
// variables are left as written. Keys for which overridden reports true are
// skipped so their environment override still applies.
func expandEnvVars(v *viper.Viper, overridden func(key string) bool) {
	for _, key := range v.AllKeys() {
		if overridden(key) {
			continue
		}
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(raw, func(match string) string {
			name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(match, "$"), "{"), "}")
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return match
		})
		if expanded != raw {
			v.Set(key, expanded)
		}
	}
}

// Run executes the application and exits non-zero on failure.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := a.cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
