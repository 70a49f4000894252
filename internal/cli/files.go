package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Sannainmf/GmshApp-Hexera/internal/cli/output"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/client"
	"github.com/spf13/cobra"
)

var fileColumns = []output.Column{{Field: "name"}, {Field: "size"}, {Field: "created_at", Label: "CREATED"}}

func (a *app) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the current output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			files, err := a.client().Files(ctx)
			if err != nil {
				return err
			}
			return a.formatter(fileColumns...).Write(cmd.OutOrStdout(), files)
		},
	}
}

func (a *app) downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <name> [local-path]",
		Short: "Download an output file",
		Args:  cobra.RangeArgs(1, 2),
		Example: `  # Download to stdout
  gmshgen download generated_mesh.geo

  # Download to a file
  gmshgen download generated_mesh.msh ./square.msh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			return a.fetch(cmd, args, func(w io.Writer) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				_, err := c.Download(ctx, args[0], w)
				return err
			})
		},
	}
}

// fetch writes a download to args[1] when given, otherwise to stdout.
func (a *app) fetch(cmd *cobra.Command, args []string, fill func(io.Writer) error) error {
	if len(args) < 2 {
		return fill(cmd.OutOrStdout())
	}
	if err := writeFile(args[1], fill); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Downloaded: %s -> %s\n", args[0], args[1])
	return nil
}

func (a *app) cleanupCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every stored output file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Fprint(cmd.OutOrStdout(), "Delete all output files? [y/N]: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if reply := strings.TrimSpace(answer); reply != "y" && reply != "Y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := a.client().Cleanup(ctx)
			if err != nil {
				return err
			}
			if a.tableOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			}
			return a.formatter().Write(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}

	var opts client.RunListOptions
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		Example: `  gmshgen runs list --status error
  gmshgen runs list --source model -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			runs, err := a.client().ListRuns(ctx, opts)
			if err != nil {
				return err
			}
			if !a.tableOutput() {
				return a.formatter().Write(cmd.OutOrStdout(), runs)
			}
			return a.formatter(
				output.Column{Field: "id"},
				output.Column{Field: "kind"},
				output.Column{Field: "status"},
				output.Column{Field: "output_filename", Label: "OUTPUT"},
				output.Column{Field: "synthesis_source", Label: "SOURCE"},
				output.Column{Field: "error_kind", Label: "ERROR"},
				output.Column{Field: "duration_ms", Label: "MS"},
				output.Column{Field: "created_at", Label: "CREATED"},
			).Write(cmd.OutOrStdout(), runs.Items)
		},
	}
	listCmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (success, error)")
	listCmd.Flags().StringVar(&opts.Source, "source", "", "Filter by synthesis source (model, fallback)")
	listCmd.Flags().StringVar(&opts.OutputFilename, "name", "", "Filter by output base name")
	listCmd.Flags().IntVar(&opts.Page, "page", 0, "Page number")
	listCmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "Page size")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a run, including its script and gmsh log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			run, err := a.client().GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if !a.tableOutput() {
				return a.formatter().Write(cmd.OutOrStdout(), run)
			}
			w := cmd.OutOrStdout()
			if err := a.formatter(output.Cols("id", "status", "template", "message")...).Write(w, run); err != nil {
				return err
			}
			if run.Script != "" {
				fmt.Fprintf(w, "\n--- Script ---\n%s\n", run.Script)
			}
			if run.Log != "" {
				fmt.Fprintf(w, "\n--- Gmsh output ---\n%s\n", run.Log)
			}
			return nil
		},
	}

	filesCmd := &cobra.Command{
		Use:   "files <id>",
		Short: "List a run's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			files, err := a.client().RunFiles(ctx, args[0])
			if err != nil {
				return err
			}
			return a.formatter(fileColumns...).Write(cmd.OutOrStdout(), files)
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download <id> <name> [local-path]",
		Short: "Download one file of a run",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			return a.fetch(cmd, args[1:], func(w io.Writer) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				_, err := c.DownloadRunFile(ctx, args[0], args[1], w)
				return err
			})
		},
	}

	runsCmd.AddCommand(listCmd, getCmd, filesCmd, downloadCmd)
	return runsCmd
}
