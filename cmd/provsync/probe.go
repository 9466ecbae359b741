package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/probe"
	"github.com/memohai/provsync/internal/providers"
)

var probeFlags struct {
	trials    int
	urls      []string
	apiKey    string
	modelType string
	dryRun    bool
	all       bool
}

var probeCmd = &cobra.Command{
	Use:   "probe [name]",
	Short: "Measure endpoint latency and switch to the fastest URL",
	Long: `Probe a registered provider's candidate URLs and make the fastest one active.

Examples:
  provsync probe relay                        # measure and switch
  provsync probe relay --dry-run              # measure only
  provsync probe --all                        # every enabled provider with two or more URLs
  provsync probe --urls https://a,https://b --api-key sk-... --model-type claude`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	f := probeCmd.Flags()
	f.IntVarP(&probeFlags.trials, "trials", "n", 0, "Trials per URL (default from config)")
	f.StringSliceVar(&probeFlags.urls, "urls", nil, "Probe these URLs instead of a registered provider")
	f.StringVar(&probeFlags.apiKey, "api-key", "", "API key for --urls")
	f.StringVar(&probeFlags.modelType, "model-type", "", "Model type for --urls (claude, codex, gemini)")
	f.BoolVar(&probeFlags.dryRun, "dry-run", false, "Measure without changing the registry")
	f.BoolVar(&probeFlags.all, "all", false, "Re-probe every enabled provider with two or more URLs")
}

func runProbe(cmd *cobra.Command, args []string) error {
	return withApp(func(app *boot.App) error {
		ctx := cmd.Context()
		switch {
		case probeFlags.all:
			run, err := app.Schedule.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(run)
		case len(probeFlags.urls) > 0:
			res, err := app.Probe.TestURLs(ctx, probe.TestRequest{
				URLs:       probeFlags.urls,
				APIKey:     probeFlags.apiKey,
				ModelType:  providers.ModelType(strings.ToLower(probeFlags.modelType)),
				TrialCount: probeFlags.trials,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		case len(args) == 0:
			return cmd.Usage()
		}

		if probeFlags.dryRun {
			p, err := app.Providers.Get(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := app.Probe.TestURLs(ctx, probe.TestRequest{
				ProviderName: p.Name,
				URLs:         p.URLs(),
				APIKey:       p.APIKey,
				ModelType:    p.ModelType,
				TrialCount:   probeFlags.trials,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		}

		res, err := app.Probe.TestAndAutoSelectFastest(ctx, args[0], probeFlags.trials)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}
