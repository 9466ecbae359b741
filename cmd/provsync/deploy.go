package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/deploy"
)

type deployFlags struct {
	providers []string
	targets   []string
	global    bool
	project   bool
}

var (
	applyFlags  deployFlags
	removeFlags deployFlags
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write registry providers into tool configurations",
	Long: `Write the named providers into every target tool for the chosen scopes.
Rows are reported individually; succeeded rows stay applied when others fail.

Example:
  provsync apply -p relay -t opencode,claude --global --project`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			targets, err := parseTargets(app, applyFlags.targets)
			if err != nil {
				return err
			}
			resp, err := app.Deploy.Apply(cmd.Context(), deploy.ApplyRequest{
				ProviderNames: applyFlags.providers,
				Targets:       targets,
				Scopes:        deploy.Scopes{Global: applyFlags.global, Project: applyFlags.project},
			})
			if err != nil {
				return err
			}
			return reportBatch(resp)
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove providers from tool configurations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			targets, err := parseTargets(app, removeFlags.targets)
			if err != nil {
				return err
			}
			resp, err := app.Deploy.Remove(cmd.Context(), deploy.RemoveRequest{
				ProviderNames: removeFlags.providers,
				Targets:       targets,
				Scopes:        deploy.Scopes{Global: removeFlags.global, Project: removeFlags.project},
			})
			if err != nil {
				return err
			}
			return reportBatch(resp)
		})
	},
}

func init() {
	for _, item := range []struct {
		cmd   *cobra.Command
		flags *deployFlags
	}{
		{applyCmd, &applyFlags},
		{removeCmd, &removeFlags},
	} {
		f := item.cmd.Flags()
		f.StringSliceVarP(&item.flags.providers, "providers", "p", nil, "Provider names")
		f.StringSliceVarP(&item.flags.targets, "targets", "t", nil, "Target tools (opencode, claude, codex, gemini, ccswitch)")
		f.BoolVar(&item.flags.global, "global", true, "Write the user-level configuration")
		f.BoolVar(&item.flags.project, "project", false, "Write the project-level configuration")
	}
}

// reportBatch prints the batch and turns failed rows into a non-zero exit.
func reportBatch(resp deploy.Response) error {
	if err := printJSON(resp); err != nil {
		return err
	}
	if n := resp.Failed(); n > 0 {
		return fmt.Errorf("%d of %d rows failed", n, len(resp.Results))
	}
	return nil
}
