package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/discovery"
	"github.com/memohai/provsync/internal/providers"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List providers configured in the tools but not in the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			res, err := app.Discovery.Discover(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var importFlags struct {
	tool      string
	name      string
	source    string
	rename    string
	apiKey    string
	modelType string
	protocol  string
	all       bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import discovered providers into the registry",
	Long: `Import one discovered provider (--tool and --name) or every unmanaged one (--all).

Examples:
  provsync import --tool codex --name "Codex CLI" --rename openai
  provsync import --all`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.tool, "tool", "", "Tool the provider was discovered in")
	f.StringVar(&importFlags.name, "name", "", "Discovered provider name")
	f.StringVar(&importFlags.source, "source", "", "Source file, when the name appears in both scopes")
	f.StringVar(&importFlags.rename, "rename", "", "Registry name to import under")
	f.StringVar(&importFlags.apiKey, "api-key", "", "API key to use instead of the discovered one")
	f.StringVar(&importFlags.modelType, "model-type", "", "Model type override (claude, codex, gemini)")
	f.StringVar(&importFlags.protocol, "protocol", "", "Protocol override")
	f.BoolVar(&importFlags.all, "all", false, "Import every unmanaged provider")
}

func runImport(cmd *cobra.Command, args []string) error {
	return withApp(func(app *boot.App) error {
		reqs, err := importRequests(cmd.Context(), app)
		if err != nil {
			return err
		}
		resp, err := app.Discovery.Import(cmd.Context(), reqs)
		if err != nil {
			return err
		}
		return printJSON(resp)
	})
}

func importRequests(ctx context.Context, app *boot.App) ([]discovery.ImportRequest, error) {
	if importFlags.all {
		res, err := app.Discovery.Discover(ctx)
		if err != nil {
			return nil, err
		}
		reqs := make([]discovery.ImportRequest, 0, len(res.Items))
		for _, item := range res.Items {
			reqs = append(reqs, discovery.ImportRequest{Tool: item.Tool, Name: item.Name, Source: item.Source})
		}
		if len(reqs) == 0 {
			return nil, fmt.Errorf("nothing to import")
		}
		return reqs, nil
	}

	if strings.TrimSpace(importFlags.tool) == "" || strings.TrimSpace(importFlags.name) == "" {
		return nil, fmt.Errorf("--tool and --name are required unless --all is set")
	}
	tool, err := app.Adapters.ParseTool(importFlags.tool)
	if err != nil {
		return nil, err
	}
	return []discovery.ImportRequest{{
		Tool:   tool,
		Name:   importFlags.name,
		Source: importFlags.source,
		Overrides: discovery.ImportOverrides{
			Name:      importFlags.rename,
			APIKey:    importFlags.apiKey,
			ModelType: providers.ModelType(strings.ToLower(importFlags.modelType)),
			Protocol:  providers.Protocol(strings.ToLower(importFlags.protocol)),
		},
	}}, nil
}

func parseTargets(app *boot.App, raw []string) ([]adapters.Tool, error) {
	out := make([]adapters.Tool, 0, len(raw))
	for _, r := range raw {
		tool, err := app.Adapters.ParseTool(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tool)
	}
	return out, nil
}
