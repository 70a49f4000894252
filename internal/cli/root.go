// Package cli implements the gmshgen command line client.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/cli/output"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultServer  = "http://localhost:8000"
	defaultTimeout = 10 * time.Minute
	envPrefix      = "GMSHGEN"
)

// app carries the state shared by every command.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// Execute runs the CLI with os.Args.
func Execute(version, commit, date string) error {
	root := NewRootCmd()
	root.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)
	return root.Execute()
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "gmshgen",
		Short: "gmshgen CLI - generate Gmsh meshes from natural-language prompts",
		Long: `gmshgen is a command-line client for the gmshgen server.

The server turns a prompt into a Gmsh script, with a language model or the
built-in templates, runs gmsh on it and keeps the resulting mesh files.`,
		Version:       "dev",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file path (default: ~/.config/gmshgen/config.yaml)")
	flags.StringP("server", "s", defaultServer, "Server address")
	flags.Duration("timeout", defaultTimeout, "Request timeout")
	flags.StringP("output", "o", "table", "Output format (table, json, yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.String("token", "", "API key for servers started with API_KEYS")
	for _, name := range []string{"server", "timeout", "output", "verbose", "token"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.healthCmd(),
		a.modelCmd(),
		a.generateCmd(),
		a.runCmd(),
		a.execCmd(),
		a.filesCmd(),
		a.downloadCmd(),
		a.cleanupCmd(),
		a.runsCmd(),
		a.tokenCmd(),
	)
	return root
}

// initConfig reads the config file and GMSHGEN_* environment variables.
func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "gmshgen"))
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && a.cfgFile != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else if a.v.GetBool("verbose") {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", a.v.ConfigFileUsed())
	}

	if _, err := output.ParseFormat(a.v.GetString("output")); err != nil {
		return err
	}
	return nil
}

func (a *app) client() *client.Client {
	server := a.v.GetString("server")
	if server == "" {
		server = defaultServer
	}
	opts := []client.Option{client.WithTimeout(a.timeout())}
	if token := a.v.GetString("token"); token != "" {
		opts = append(opts, client.WithAuthToken(token))
	}
	return client.NewClient(server, opts...)
}

func (a *app) timeout() time.Duration {
	if d := a.v.GetDuration("timeout"); d > 0 {
		return d
	}
	return defaultTimeout
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout())
}

// formatter returns the output formatter; columns apply to table output.
func (a *app) formatter(columns ...output.Column) output.Formatter {
	format, _ := output.ParseFormat(a.v.GetString("output"))
	return output.New(format, columns...)
}

func (a *app) tableOutput() bool {
	format, _ := output.ParseFormat(a.v.GetString("output"))
	return format == output.FormatTable
}
