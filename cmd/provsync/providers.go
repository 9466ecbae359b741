package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:     "providers",
	Aliases: []string{"provider", "p"},
	Short:   "Manage the provider registry",
}

var providerFile string

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersGetCmd)
	providersCmd.AddCommand(providersAddCmd)
	providersCmd.AddCommand(providersSaveCmd)
	providersCmd.AddCommand(providersDeleteCmd)
	providersCmd.AddCommand(providersEnableCmd)
	providersCmd.AddCommand(providersDisableCmd)
	providersCmd.AddCommand(providersUseURLCmd)

	for _, c := range []*cobra.Command{providersAddCmd, providersSaveCmd} {
		c.Flags().StringVarP(&providerFile, "file", "f", "-", "Provider record as JSON (- reads stdin)")
	}
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers with masked keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			items, err := app.Providers.List(cmd.Context())
			if err != nil {
				return err
			}
			resp := providers.ListResponse{Providers: make([]providers.Provider, 0, len(items)), Total: len(items)}
			for _, p := range items {
				resp.Providers = append(resp.Providers, providers.Masked(p))
			}
			return printJSON(resp)
		})
	},
}

var providersGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			p, err := app.Providers.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(providers.Masked(p))
		})
	},
}

var providersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a provider; the name must be new",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			p, err := readProviderFile(cmd.InOrStdin())
			if err != nil {
				return err
			}
			created, err := app.Providers.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(providers.Masked(created))
		})
	},
}

var providersSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or update a provider; an empty or masked api_key keeps the stored key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			p, err := readProviderFile(cmd.InOrStdin())
			if err != nil {
				return err
			}
			saved, err := app.Providers.Save(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(providers.Masked(saved))
		})
	},
}

var providersDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a provider from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			if err := app.Providers.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(map[string]string{"deleted": args[0]})
		})
	},
}

var providersEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Include a provider in apply operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var providersDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Exclude a provider from apply operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}

var providersUseURLCmd = &cobra.Command{
	Use:   "use-url <name> <url>",
	Short: "Switch the active base URL to one of the candidates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *boot.App) error {
			p, err := app.Providers.SetActiveURL(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(providers.Masked(p))
		})
	},
}

func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	return withApp(func(app *boot.App) error {
		p, err := app.Providers.SetEnabled(cmd.Context(), name, enabled)
		if err != nil {
			return err
		}
		return printJSON(providers.Masked(p))
	})
}

func readProviderFile(stdin io.Reader) (providers.Provider, error) {
	var (
		raw []byte
		err error
	)
	if providerFile == "" || providerFile == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(providerFile)
	}
	if err != nil {
		return providers.Provider{}, fmt.Errorf("read provider record: %w", err)
	}
	return providers.DecodeRecord(raw)
}
