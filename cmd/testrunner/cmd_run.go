package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"testrunner/internal/engine"
	"testrunner/internal/model"
)

var (
	cliSets  []string
	reqIDArg string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "run a plan file against its target URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <req-id>",
	Short: "resume a checkpointed run by request ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resumePlan(args[0])
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&cliSets, "set", nil, "override a template variable, key=value (repeatable)")
	runCmd.Flags().StringVar(&reqIDArg, "req-id", "", "request ID prefix for this invocation (default: a generated UUID)")
}

func parseOverrides(sets []string) map[string]string {
	overrides := make(map[string]string, len(sets))
	for _, kv := range sets {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		overrides[parts[0]] = parts[1]
	}
	return overrides
}

func runPlan(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Verbose = verbose

	pf, err := engine.LoadPlan(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rt, err := engine.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	reqIDPrefix := reqIDArg
	if reqIDPrefix == "" {
		reqIDPrefix = uuid.New().String()
	}

	results, err := rt.Run(ctx, pf, parseOverrides(cliSets), reqIDPrefix)
	worstCode := 0
	for _, rec := range results {
		if rec.ReqID == "" {
			continue // row never completed (sibling row's error cancelled it)
		}
		printVerdict(rec)
		if code := engine.ExitCode(rec.Verdict); code > worstCode {
			worstCode = code
		}
	}
	if err != nil {
		return err
	}
	if worstCode != 0 {
		return &exitCodeError{code: worstCode}
	}
	return nil
}

func resumePlan(reqID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Verbose = verbose

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rt, err := engine.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	rec, err := rt.Resume(ctx, reqID)
	if err != nil {
		return err
	}
	printVerdict(rec)
	return exitWith(rec.Verdict)
}

func printVerdict(rec model.RunRecord) {
	fmt.Printf("[RESULT] req=%s verdict=%s steps=%d/%d heals=%d rca=%s\n",
		rec.ReqID, rec.Verdict, rec.StepsExecuted, rec.StepsTotal, rec.HealRounds, rec.RCAClass)
	for _, a := range rec.Artifacts {
		fmt.Printf("[RESULT] artifact=%s\n", a)
	}
}

type exitCodeError struct{ code int }

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func exitWith(v model.Verdict) error {
	if code := engine.ExitCode(v); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}
