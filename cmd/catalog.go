package cmd

import (
	"mcpgate/internal/api"

	"github.com/spf13/cobra"
)

// catalogCmd lists or searches the server catalog.
var catalogCmd = &cobra.Command{
	Use:   "catalog [query]",
	Short: "List or search the server catalog",
	Long: `Lists the entries of the catalog file referenced by catalogFile in
config.yaml. With a query, only entries whose name, description or tags
contain it are shown.

A target file refers to an entry with 'catalog: <name>'.

Examples:
  mcpgate catalog
  mcpgate catalog scm -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	if services.Catalog == nil {
		return api.New(api.KindNotFound, "no catalog is configured; set catalogFile in config.yaml")
	}
	if len(args) == 1 {
		return formatter.CatalogEntries(services.Catalog.Search(args[0]))
	}
	return formatter.CatalogEntries(services.Catalog.List())
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	addOutputFlags(catalogCmd)
}
