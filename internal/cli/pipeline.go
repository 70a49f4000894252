package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Sannainmf/GmshApp-Hexera/pkg/client"
	"github.com/Sannainmf/GmshApp-Hexera/pkg/model"
	"github.com/spf13/cobra"
)

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			health, err := a.client().Health(ctx)
			if err != nil {
				return err
			}
			return a.formatter().Write(cmd.OutOrStdout(), health)
		},
	}
}

func (a *app) modelCmd() *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or load the generation model",
	}
	modelCmd.AddCommand(
		&cobra.Command{
			Use:   "load",
			Short: "Load (or reload) the model backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				resp, err := a.client().LoadModel(ctx)
				if err != nil {
					return err
				}
				if a.tableOutput() {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					return nil
				}
				return a.formatter().Write(cmd.OutOrStdout(), resp)
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show the loaded model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				info, err := a.client().ModelInfo(ctx)
				if err != nil {
					return err
				}
				return a.formatter().Write(cmd.OutOrStdout(), info)
			},
		},
	)
	return modelCmd
}

type generationFlags struct {
	maxTokens   int
	temperature float64
	name        string
	elementSize float64
}

func (f *generationFlags) register(cmd *cobra.Command, withLimits bool) {
	if withLimits {
		cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Token budget (server default when 0)")
		cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "Sampling temperature (server default when unset)")
	}
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Output base name (server default generated_mesh)")
	cmd.Flags().Float64Var(&f.elementSize, "element-size", 0, "Target element size")
}

func (f *generationFlags) request(cmd *cobra.Command, prompt string) *model.GenerationRequest {
	req := &model.GenerationRequest{
		Prompt:         prompt,
		MaxTokens:      f.maxTokens,
		OutputFilename: f.name,
	}
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		req.Temperature = &t
	}
	req.ElementSize = f.size(cmd)
	return req
}

func (f *generationFlags) size(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("element-size") {
		return nil
	}
	s := f.elementSize
	return &s
}

func (a *app) generateCmd() *cobra.Command {
	var flags generationFlags
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a Gmsh script with the model without running it",
		Args:  cobra.ExactArgs(1),
		Example: `  gmshgen generate "a plate with a circular hole" > plate.geo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			resp, err := a.client().Generate(ctx, flags.request(cmd, args[0]))
			if err != nil {
				if client.IsUnavailable(err) {
					return fmt.Errorf("%w (run 'gmshgen model load' first)", err)
				}
				return err
			}
			if a.tableOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Script)
				return nil
			}
			return a.formatter().Write(cmd.OutOrStdout(), resp)
		},
	}
	flags.register(cmd, true)
	return cmd
}

type executionFlags struct {
	stream      bool
	downloadDir string
}

func (f *executionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Stream gmsh output while it runs")
	cmd.Flags().StringVarP(&f.downloadDir, "download", "d", "", "Download the run's files into this directory")
}

func (a *app) runCmd() *cobra.Command {
	var (
		gen          generationFlags
		exec         executionFlags
		requireModel bool
	)
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Generate a script and mesh it",
		Args:  cobra.ExactArgs(1),
		Example: `  # Mesh a square, falling back to templates when no model is loaded
  gmshgen run "Create a simple 2D square mesh"

  # Stream gmsh output and fetch the results
  gmshgen run "a circle" --name disk --stream -d ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := gen.request(cmd, args[0])
			req.RequireModel = requireModel
			return a.execute(cmd, exec, &model.StreamRequest{GenerationRequest: *req})
		},
	}
	gen.register(cmd, true)
	exec.register(cmd)
	cmd.Flags().BoolVar(&requireModel, "require-model", false, "Fail instead of using templates when the model is unavailable")
	return cmd
}

func (a *app) execCmd() *cobra.Command {
	var (
		gen  generationFlags
		exec executionFlags
	)
	cmd := &cobra.Command{
		Use:   "exec <script.geo|->",
		Short: "Mesh an existing Gmsh script",
		Args:  cobra.ExactArgs(1),
		Example: `  gmshgen exec plate.geo --name plate
  cat plate.geo | gmshgen exec - --stream`,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			req := &model.StreamRequest{ScriptContent: script}
			req.OutputFilename = gen.name
			req.ElementSize = gen.size(cmd)
			return a.execute(cmd, exec, req)
		},
	}
	gen.register(cmd, false)
	exec.register(cmd)
	return cmd
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// execute runs req through the REST endpoints or, with --stream, over the
// websocket, then prints the result and optionally downloads the files.
func (a *app) execute(cmd *cobra.Command, flags executionFlags, req *model.StreamRequest) error {
	ctx, cancel := a.context(cmd)
	defer cancel()
	c := a.client()

	var (
		resp *model.ExecutionResponse
		err  error
	)
	switch {
	case flags.stream:
		resp, err = c.Stream(ctx, req, cmd.ErrOrStderr())
	case req.ScriptContent != "":
		resp, err = c.ExecuteScript(ctx, &model.ExecuteScriptRequest{
			ScriptContent:  req.ScriptContent,
			OutputFilename: req.OutputFilename,
			ElementSize:    req.ElementSize,
		})
	default:
		resp, err = c.Execute(ctx, &req.GenerationRequest)
	}
	if resp == nil {
		resp, _ = client.ExecutionOf(err)
	}
	if resp == nil {
		return err
	}

	if perr := a.printExecution(cmd, resp); perr != nil {
		return perr
	}
	if err != nil {
		if !flags.stream && resp.GmshOutput != "" && a.tableOutput() {
			fmt.Fprintln(cmd.ErrOrStderr(), resp.GmshOutput)
		}
		return err
	}
	if flags.downloadDir != "" {
		return a.downloadRun(cmd, c, resp.RunID, flags.downloadDir)
	}
	return nil
}

func (a *app) printExecution(cmd *cobra.Command, resp *model.ExecutionResponse) error {
	if !a.tableOutput() {
		return a.formatter().Write(cmd.OutOrStdout(), resp)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run:     %s\n", resp.RunID)
	fmt.Fprintf(w, "Status:  %s\n", resp.Status)
	if resp.SynthesisSource != "" {
		source := resp.SynthesisSource
		if resp.Template != "" {
			source += " (" + resp.Template + ")"
		}
		fmt.Fprintf(w, "Source:  %s\n", source)
	}
	fmt.Fprintf(w, "Message: %s\n", resp.Message)
	kinds := make([]string, 0, len(resp.OutputFiles))
	for kind := range resp.OutputFiles {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-13s %s\n", kind, resp.OutputFiles[kind])
	}
	return nil
}

func (a *app) downloadRun(cmd *cobra.Command, c *client.Client, runID, dir string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()
	files, err := c.RunFiles(ctx, runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	for _, f := range files {
		dst := filepath.Join(dir, f.Name)
		if err := writeFile(dst, func(w io.Writer) error {
			_, err := c.DownloadRunFile(ctx, runID, f.Name, w)
			return err
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded: %s\n", dst)
	}
	return nil
}

// writeFile creates path and fills it with fill, removing it on failure.
func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
