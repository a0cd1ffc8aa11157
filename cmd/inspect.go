package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/config"
	"github.com/scholarsync/crawler/internal/mirror"
)

// newInspectCmd creates the 'inspect' subcommand for checking the
// mirror database schema before wiring up a sync.
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Prints the mirror database schema",
		Long: `Fetches the document database schema and prints every property with
its type and, where applicable, its options or targets. Useful for
verifying the database is shaped the way the sync expects.`,
		RunE: runInspectCommand,
	}
	return cmd
}

func runInspectCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Mirror.Token == "" || cfg.Mirror.DatabaseID == "" {
		return errors.New("mirror token and database id must be set")
	}

	client := mirror.NewClient(mirror.Config{
		Token:             cfg.Mirror.Token,
		DatabaseID:        cfg.Mirror.DatabaseID,
		BaseURL:           cfg.Mirror.BaseURL,
		Timeout:           cfg.MirrorTimeout(),
		RequestsPerSecond: cfg.Mirror.RequestsPerSecond,
	}, zap.NewNop())

	db, err := client.Database(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch schema: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s (%s)\n", db.TitleText(), db.ID)

	names := make([]string, 0, len(db.Properties))
	for name := range db.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(out, "  %s: %s\n", name, summarizeProperty(db.Properties[name]))
	}
	return nil
}

// summarizeProperty renders one schema property as "type (detail)".
func summarizeProperty(p mirror.Property) string {
	switch p.Type {
	case "select", "multi_select", "status":
		var opts *mirror.SelectOptions
		switch p.Type {
		case "select":
			opts = p.Select
		case "multi_select":
			opts = p.MultiSelect
		case "status":
			opts = p.Status
		}
		if opts == nil || len(opts.Options) == 0 {
			return p.Type + " (no options)"
		}
		names := make([]string, len(opts.Options))
		for i, o := range opts.Options {
			names[i] = o.Name
		}
		return fmt.Sprintf("%s (%s)", p.Type, strings.Join(names, ", "))
	case "relation":
		if p.Relation != nil {
			return fmt.Sprintf("relation (database %s)", p.Relation.DatabaseID)
		}
	case "rollup":
		if p.Rollup != nil {
			return fmt.Sprintf("rollup (%s of %s)", p.Rollup.RollupPropertyName, p.Rollup.RelationPropertyName)
		}
	case "formula":
		if p.Formula != nil {
			return fmt.Sprintf("formula (%s)", p.Formula.Expression)
		}
	}
	return p.Type
}
