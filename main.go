package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"upwork_sheet_sync/internal/app"
	"upwork_sheet_sync/internal/config"
	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/mock"
	"upwork_sheet_sync/internal/reconcile"
	"upwork_sheet_sync/internal/records"
	"upwork_sheet_sync/internal/selftest"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	app.SetupEnvironment(os.Stderr)
	log.Debug().Msg("Starting application")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "upwork-sheet-sync",
		Short:         "Reconcile Upwork jobs, proposals and connects into a job sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.bind(root)

	root.AddCommand(
		jobsCmd(g, "add-jobs", "Append jobs that are not in the sheet yet", (*reconcile.Reconciler).AddJobs),
		jobsCmd(g, "refresh-jobs", "Update the refreshable columns of jobs already in the sheet", (*reconcile.Reconciler).RefreshJobs),
		jobsCmd(g, "sync-jobs", "Update existing jobs and append new ones", (*reconcile.Reconciler).SyncJobs),
		sendJobCmd(g),
		markViewedCmd(g),
		syncConnectsCmd(g),
		prepareCmd(g),
		mockCmd(),
		selftestCmd(g),
	)
	return root
}

type jobsOperation func(*reconcile.Reconciler, context.Context, destination.SheetContext, []records.Job) (*reconcile.Result, error)

func payloadCmd(g *globalFlags, use, short string, tweak func(*config.Settings), run func(context.Context, *app.Runtime, *records.Payload) (*reconcile.Result, error)) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), g, tweak, func(rt *app.Runtime) error {
				res, err := run(cmd.Context(), rt, p)
				return report(cmd.OutOrStdout(), res, err)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "payload file (JSON or YAML), - for stdin")
	return cmd
}

func jobsCmd(g *globalFlags, use, short string, op jobsOperation) *cobra.Command {
	return payloadCmd(g, use, short, nil, func(ctx context.Context, rt *app.Runtime, p *records.Payload) (*reconcile.Result, error) {
		return op(rt.Reconciler, ctx, rt.Context(), p.Jobs)
	})
}

func sendJobCmd(g *globalFlags) *cobra.Command {
	return payloadCmd(g, "send-job", "Upsert one job, keeping its Date and Job Created Since when already filled", nil,
		func(ctx context.Context, rt *app.Runtime, p *records.Payload) (*reconcile.Result, error) {
			if len(p.Jobs) != 1 {
				return nil, fmt.Errorf("send-job expects exactly one job, got %d", len(p.Jobs))
			}
			return rt.Reconciler.SendJob(ctx, rt.Context(), p.Jobs[0])
		})
}

func markViewedCmd(g *globalFlags) *cobra.Command {
	return payloadCmd(g, "mark-viewed", "Highlight the Read cell of viewed proposals", nil,
		func(ctx context.Context, rt *app.Runtime, p *records.Payload) (*reconcile.Result, error) {
			return rt.Reconciler.MarkViewed(ctx, rt.Context(), p.Proposals)
		})
}

func syncConnectsCmd(g *globalFlags) *cobra.Command {
	var accumulate bool
	cmd := payloadCmd(g, "sync-connects", "Write connects totals per job",
		func(s *config.Settings) {
			if accumulate {
				s.ConnectsMode = config.ConnectsAccumulate
			}
		},
		func(ctx context.Context, rt *app.Runtime, p *records.Payload) (*reconcile.Result, error) {
			return rt.Reconciler.SyncConnects(ctx, rt.Context(), p.Connects)
		})
	cmd.Flags().BoolVar(&accumulate, "accumulate", false, "add to the amounts already in the sheet")
	return cmd
}

func prepareCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Write the default header row and install the row template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), g, nil, func(rt *app.Runtime) error {
				res, err := rt.Reconciler.PrepareSheet(cmd.Context(), rt.Context())
				return report(cmd.OutOrStdout(), res, err)
			})
		},
	}
}

func mockCmd() *cobra.Command {
	opts := mock.DefaultOptions()
	var output string
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Write a deterministic mock payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := mock.Generate(opts)
			if err := records.WritePayload(output, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d jobs, %d proposals, %d connects entries to %s\n",
				len(p.Jobs), len(p.Proposals), len(p.Connects), output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Seed, "seed", opts.Seed, "generator seed")
	f.IntVar(&opts.Jobs, "jobs", opts.Jobs, "number of jobs")
	f.IntVar(&opts.Proposals, "proposals", opts.Proposals, "number of proposal events")
	f.IntVar(&opts.Connects, "connects", opts.Connects, "number of connects entries")
	f.StringVarP(&output, "output", "o", "mock-payload.yaml", "payload file; .json writes JSON")
	return cmd
}

var errSelftestFailed = errors.New("self-test failed")

func selftestCmd(g *globalFlags) *cobra.Command {
	var (
		seed       string
		viewedRate float64
	)
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run every operation against the sheet with mock data and verify the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), g, nil, func(rt *app.Runtime) error {
				h := &selftest.Harness{
					Reconciler:   rt.Reconciler,
					Sheet:        rt.Sheet,
					Context:      rt.Context(),
					Seed:         seed,
					ViewedRate:   viewedRate,
					ConnectsMode: rt.Settings.ConnectsMode,
					Out:          cmd.OutOrStdout(),
				}
				if report := h.Run(cmd.Context()); report.Failed() {
					return errSelftestFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", mock.DefaultOptions().Seed, "mock data seed")
	cmd.Flags().Float64Var(&viewedRate, "viewed-rate", 0.6, "share of proposals marked as viewed")
	return cmd
}
