package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dedupCmd)
	dedupCmd.Flags().Bool("reset", false, "Delete all transactions and merchants instead (categories are kept)")

	rootCmd.AddCommand(merchantCmd)
	merchantCmd.AddCommand(merchantRecategorizeCmd, merchantExcludeCmd, merchantSimilarCmd, merchantAliasCmd)
	merchantExcludeCmd.Flags().Bool("undo", false, "Include the merchant in spending totals again")
	merchantSimilarCmd.Flags().Float64("min", 0.8, "Minimum similarity in [0,1]")

	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd, categoryAddCmd, categoryDeleteCmd)
	categoryAddCmd.Flags().String("color", "", "Hex color, e.g. #795548")
	categoryAddCmd.Flags().String("emoji", "", "Emoji shown next to the name")
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))).
		Headers(headers...)
}

// ─── dedup ──────────────────────────────────────────────────────────────────

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove duplicate transactions that slipped past real-time checks",
	Long: `Group stored transactions by merchant, amount, local day and bank and keep
the best record of each group: highest confidence, then earliest stored.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reset, _ := cmd.Flags().GetBool("reset")
		return withApp(cmd, func(a *app) error {
			if reset {
				if err := a.maintenance().Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ledger cleared")
				return nil
			}
			report, err := a.reconciler().CleanupDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, %d duplicate groups, removed %d\n", report.Scanned, report.Groups, report.Removed)
			return nil
		})
	},
}

// ─── merchant ───────────────────────────────────────────────────────────────

var merchantCmd = &cobra.Command{
	Use:   "merchant",
	Short: "Adjust merchants",
}

var merchantRecategorizeCmd = &cobra.Command{
	Use:   "recategorize MERCHANT CATEGORY",
	Short: "Move a merchant and all its transactions to a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			moved, err := a.merchants().Recategorize(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d transactions updated)\n", args[0], args[1], moved)
			return nil
		})
	},
}

var merchantExcludeCmd = &cobra.Command{
	Use:   "exclude MERCHANT",
	Short: "Leave a merchant out of spending totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withApp(cmd, func(a *app) error {
			if err := a.merchants().SetExcluded(cmd.Context(), args[0], !undo); err != nil {
				return err
			}
			state := "excluded"
			if undo {
				state = "included"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
			return nil
		})
	},
}

var merchantSimilarCmd = &cobra.Command{
	Use:   "similar MERCHANT",
	Short: "List merchants with similar names, as alias candidates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minSim, _ := cmd.Flags().GetFloat64("min")
		return withApp(cmd, func(a *app) error {
			similar, err := a.merchants().SimilarMerchants(cmd.Context(), args[0], minSim)
			if err != nil {
				return err
			}
			if len(similar) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no similar merchants")
				return nil
			}
			t := newTable("MERCHANT", "DISPLAY NAME", "SIMILARITY")
			for _, s := range similar {
				t.Row(s.NormalizedName, s.DisplayName, strconv.FormatFloat(s.Similarity, 'f', 2, 64))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		})
	},
}

var merchantAliasCmd = &cobra.Command{
	Use:   "alias ALIAS MERCHANT",
	Short: "Treat ALIAS as another spelling of MERCHANT, merging its history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if err := a.merchants().AddAlias(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an alias of %s\n", args[0], args[1])
			return nil
		})
	},
}

// ─── category ───────────────────────────────────────────────────────────────

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app) error {
			cats, err := a.merchants().Categories(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("ID", "NAME", "", "SYSTEM")
			for _, c := range cats {
				system := ""
				if c.IsSystem {
					system = "yes"
				}
				t.Row(c.ID, c.Name, c.Emoji, system)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		})
	},
}

var categoryAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a user category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		emoji, _ := cmd.Flags().GetString("emoji")
		return withApp(cmd, func(a *app) error {
			c, err := a.merchants().CreateCategory(cmd.Context(), args[0], color, emoji)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", c.Name, c.ID)
			return nil
		})
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a user category; its merchants move to the default category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if err := a.merchants().DeleteCategory(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}
