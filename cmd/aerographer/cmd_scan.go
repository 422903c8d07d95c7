package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/aerographer/config"
	"github.com/yairfalse/aerographer/evaluation"
	"github.com/yairfalse/aerographer/orchestrator"
	"github.com/yairfalse/aerographer/providers/aws"
	"github.com/yairfalse/aerographer/schema"
	"github.com/yairfalse/aerographer/survey"
	"github.com/yairfalse/aerographer/telemetry"
	"github.com/yairfalse/aerographer/whiteboard"
)

var (
	scanConfigPath string
	scanKinds      []string
	scanSkip       []string
	scanJSON       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan accounts and evaluate compliance checks",
	Long: `Scan every configured account, region and resource kind, then run
all registered checks against the surveyed resources.

Kinds given on the command line override the config; a bare service
name expands to every kind under it. Evaluation dependencies are
scanned automatically.`,
	Example: `  aerographer scan
  aerographer scan --kinds ec2,iam.managed_policy
  aerographer scan --kinds ec2 --skip ec2.instance --json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "c", "aerographer.yaml", "Config file path")
	scanCmd.Flags().StringSliceVar(&scanKinds, "kinds", nil, "Resource kinds to scan (overrides config)")
	scanCmd.Flags().StringSliceVar(&scanSkip, "skip", nil, "Resource kinds to skip (overrides config)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Emit every surveyed resource as a JSON line")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(scanConfigPath)
	if err != nil {
		return err
	}
	telemetry.SetGlobalLevel(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.Scan.Deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Scan.Deadline)
		defer cancel()
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	sv, report, board, err := runPipeline(ctx, cfg, tp, scanKinds, scanSkip)
	if err != nil {
		return err
	}

	if scanJSON {
		if err := emitJSON(sv); err != nil {
			return err
		}
	} else {
		printSummary(sv, report, board)
	}
	if report.Failed() {
		os.Exit(2)
	}
	return nil
}

// runPipeline wires one full run: registries, scan, publish, evaluate.
func runPipeline(ctx context.Context, cfg *config.Config, tp *telemetry.Provider, kinds, skip []string) (*survey.Survey, *orchestrator.Report, *whiteboard.Whiteboard, error) {
	registry, err := schema.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	checks := evaluation.NewRegistry()
	if cfg.PolicyDir != "" {
		if err := evaluation.LoadRegoDir(ctx, checks, cfg.PolicyDir); err != nil {
			return nil, nil, nil, err
		}
	}

	if len(kinds) == 0 {
		kinds = cfg.ResourceTypes
	}
	if len(kinds) == 0 {
		kinds = registry.Services()
	}
	if len(skip) == 0 {
		skip = cfg.SkipTypes
	}

	board := whiteboard.New()
	orch := orchestrator.New(aws.New(), registry, checks).
		WithMaxInFlight(cfg.Scan.MaxInFlight).
		WithBoard(board).
		WithProvider(tp).
		WithScanParams(cfg.ScanParameters)

	sv, report, err := orch.Scan(ctx, cfg.Accounts, kinds, skip)
	if err != nil {
		return nil, nil, nil, err
	}

	evaluation.NewEngine(checks, sv).
		WithBoard(board).
		WithProvider(tp).
		Run(ctx)

	return sv, report, board, nil
}

func emitJSON(sv *survey.Survey) error {
	out := os.Stdout
	for _, r := range sv.Resources() {
		line, err := r.AsJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func printSummary(sv *survey.Survey, report *orchestrator.Report, board *whiteboard.Whiteboard) {
	fmt.Printf("Surveyed %d resources across %d services in %s\n",
		sv.Len(), len(sv.Services()), report.Duration().Round(1e6))

	failing := 0
	for _, r := range sv.Resources() {
		if r.Passed() {
			continue
		}
		failing++
		for _, res := range r.Results() {
			if !res.Passed {
				fmt.Printf("  FAIL %-40s %s: %s\n", r.String(), res.Check, res.Message)
			}
		}
	}
	if failing == 0 {
		fmt.Println("All evaluated resources passed")
	} else {
		fmt.Printf("%d resources failed checks\n", failing)
	}

	for _, section := range []string{"scan_failures", "auth_failures"} {
		notes := board.Section(section)
		if len(notes) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n", section)
		for title, value := range notes {
			fmt.Printf("  %s: %v\n", title, value)
		}
	}
	if report.TimedOut {
		fmt.Println("\nRun hit its deadline; results are partial")
	}
}
