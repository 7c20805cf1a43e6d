package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAnimeCmd() *cobra.Command {
	var ignored, assumeYes bool
	cmd := &cobra.Command{
		Use:   "anime <year> <quarter>",
		Short: "Insert the season's anime (id, title, url) into the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, err := parseSeason(args)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.RequireStore(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserting anime for %s...\n", season.Label(ignored))
			n, err := appInstance.Batch().InsertAnime(cmd.Context(), season, ignored, assumeYes)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("Anime batch finished", zap.Stringer("season", season), zap.Int("rows", n))
			fmt.Fprintln(cmd.OutOrStdout(), "Done.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignored, "ignored", false, "read the ignored list")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "omit the confirmation dialog")
	return cmd
}

func newURLsCmd() *cobra.Command {
	var ignored bool
	cmd := &cobra.Command{
		Use:   "urls <year> <quarter>",
		Short: "Resolve the season's titles to anime urls through the search API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, err := parseSeason(args)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Config().RequireCredentials(); err != nil {
				return err
			}
			path, err := appInstance.Batch().WriteURLs(cmd.Context(), season, ignored)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignored, "ignored", false, "read the ignored list")
	return cmd
}

func newTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "team <file>",
		Short: "Insert users and their team picks from a team list file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.RequireStore(); err != nil {
				return err
			}
			n, err := appInstance.Batch().InsertTeams(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d teams.\n", n)
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create missing tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}
