package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/KaramelBytes/autodq-cli/internal/ai"
	"github.com/KaramelBytes/autodq-cli/internal/checks"
	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/prompt"
	"github.com/KaramelBytes/autodq-cli/internal/sqlgen"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Artifact names written by run into --out-dir.
const (
	profileArtifact  = "profile.json"
	responseArtifact = "llm_response.txt"
	checksArtifact   = "checks.json"
	summaryArtifact  = "dq_summary.csv"
	yamlArtifact     = "checks.yaml"
)

var (
	runInput      string
	runDialect    string
	runProvider   string
	runModel      string
	runAPIKey     string
	runSampleRows int
	runOut        string
	runOutDir     string
	runTable      string
	runOllamaHost string
	runYAML       bool
	runMaxTokens  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Profile a CSV, ask a model for checks, and render SQL plus a summary",
	Example: `  autodq run --in data.csv
  autodq run --in data.csv --dialect postgres --provider remote --model gpt-4o-mini
  autodq run --in data.csv --provider gemini --out-dir ./dq --yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		dialectName := runDialect
		if !flags.Changed("dialect") && cfg != nil && cfg.Dialect != "" {
			dialectName = cfg.Dialect
		}
		dialect, err := sqlgen.ParseDialect(dialectName)
		if err != nil {
			return err
		}
		sampleRows := runSampleRows
		if !flags.Changed("sample-rows") && cfg != nil && cfg.SampleRows > 0 {
			sampleRows = cfg.SampleRows
		}
		maxTokens := runMaxTokens
		if !flags.Changed("max-tokens") && cfg != nil && cfg.MaxTokens > 0 {
			maxTokens = cfg.MaxTokens
		}
		out := cmd.OutOrStdout()
		log := logger.With(zap.String("input", runInput), zap.String("dialect", dialect.String()))

		// 1. profile
		ds, err := profile.ProfileCSV(runInput, profile.Options{SampleRows: sampleRows})
		if err != nil {
			return err
		}
		profilePath, err := writeJSON(runOutDir, profileArtifact, ds)
		if err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		log.Info("profiled dataset", zap.Int("rows", ds.TotalRows), zap.Int("columns", ds.TotalColumns))
		fmt.Fprintf(out, "✓ Profiled %d rows x %d columns -> %s\n", ds.TotalRows, ds.TotalColumns, profilePath)

		// 2. prompt
		dirs := templateDirs(cfg)
		pr := prompt.Builder{Dirs: dirs, Logger: log}.Build(ds)

		// 3. model call
		rt, providerName, err := newRuntime(cfg, runtimeOptions{
			ProviderFlag: runProvider,
			APIKeyFlag:   runAPIKey,
			OllamaHost:   runOllamaHost,
		})
		if err != nil {
			return err
		}
		model := resolveModel(runModel, providerName, cfg, flags.Changed("model"))
		if limit, over := ai.ExceedsContext(model, pr.Tokens+maxTokens); over {
			fmt.Fprintf(out, "⚠ Prompt (≈%d tokens) + max-tokens (%d) exceeds %s context window (~%d tokens).\n", pr.Tokens, maxTokens, model, limit)
		}
		timeout := ai.DefaultHTTPTimeout
		if cfg != nil && cfg.HTTPTimeoutSec > 0 {
			timeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		log = log.With(zap.String("provider", providerName), zap.String("model", model))
		log.Info("generating checks", zap.Int("prompt_tokens", pr.Tokens), zap.String("prompt_source", pr.Source.String()))
		fmt.Fprintf(out, "⚙ Generating with provider=%s model=%s (prompt tokens≈%d) ...\n", providerName, model, pr.Tokens)
		resp, err := rt.Generate(ctx, ai.NewPromptRequest(model, pr.Text, maxTokens))
		if err != nil {
			return explainAIError(err, providerName, model)
		}
		if resp.RequestID != "" {
			log.Debug("model responded", zap.String("request_id", resp.RequestID), zap.Int("completion_tokens", resp.Usage.CompletionTokens))
		}
		raw := resp.Text()
		if _, err := utils.WriteArtifact(runOutDir, responseArtifact, []byte(raw)); err != nil {
			return fmt.Errorf("write model response: %w", err)
		}

		// 4. parse and normalize
		cs, err := checks.Parser{Logger: log}.Parse(raw)
		if err != nil {
			return err
		}
		checksPath, err := writeJSON(runOutDir, checksArtifact, cs)
		if err != nil {
			return fmt.Errorf("write checks: %w", err)
		}
		fmt.Fprintf(out, "✓ Parsed %d checks -> %s\n", len(cs), checksPath)

		// 5. render
		sqlName := runOut
		if sqlName == "" {
			sqlName = fmt.Sprintf("checks_%s.sql", dialect)
		}
		ro := renderOptions{
			Dialect:      dialect,
			OutDir:       runOutDir,
			SQLPath:      sqlName,
			SummaryPath:  summaryArtifact,
			ScriptTable:  runTable,
			SummaryTable: runTable,
			Dataset:      datasetName(runInput),
			TemplateDirs: dirs,
		}
		if ro.SummaryTable == "" {
			ro.SummaryTable = ro.Dataset
		}
		if runYAML {
			ro.YAMLPath = yamlArtifact
		}
		res, err := renderOutputs(cs, ds, ro)
		if err != nil {
			return err
		}
		printRendered(cmd, res)
		return nil
	},
}

func printRendered(cmd *cobra.Command, res *renderResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Wrote SQL (%s) -> %s\n", res.Script.Source, res.SQLPath)
	fmt.Fprintf(out, "✓ Wrote summary (%d rows) -> %s\n", len(res.Rows), res.SummaryPath)
	if res.YAMLPath != "" {
		fmt.Fprintf(out, "✓ Wrote checks file -> %s\n", res.YAMLPath)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runInput, "in", "", "input CSV file (required)")
	runCmd.Flags().StringVar(&runDialect, "dialect", string(sqlgen.BigQuery), "SQL dialect: postgres|bigquery|spark")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "model provider: local|remote|gemini (default from config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model name (default depends on provider)")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "API key for the remote or gemini provider")
	runCmd.Flags().IntVar(&runSampleRows, "sample-rows", profile.DefaultSampleRows, "maximum rows to profile")
	runCmd.Flags().IntVar(&runMaxTokens, "max-tokens", ai.DefaultMaxTokens, "maximum completion tokens")
	runCmd.Flags().StringVar(&runOut, "out", "", "SQL output file (default checks_<dialect>.sql)")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", ".", "directory for all artifacts")
	runCmd.Flags().StringVar(&runTable, "table", "", "table name used in generated SQL")
	runCmd.Flags().StringVar(&runOllamaHost, "ollama-host", "", "Ollama host (default from config)")
	runCmd.Flags().BoolVar(&runYAML, "yaml", false, "also write checks.yaml")
	_ = runCmd.MarkFlagRequired("in")
}
