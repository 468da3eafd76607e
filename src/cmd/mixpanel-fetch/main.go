// mixpanel-fetch is a thin wiring demo over the workspace facade: enough
// cobra/viper flags to invoke one fetch or one live query end-to-end for
// manual verification. It is not the caller-facing front end.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/discohead/mixpanel-data/src/internal/streaming"
	"github.com/discohead/mixpanel-data/src/internal/workspace"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mixpanel-fetch",
		Short: "mixpanel-fetch - demo wiring over the analytics workspace facade",
		Long: `mixpanel-fetch authenticates against the Provider, runs one
fetch or live query, and prints the outcome. It exists to exercise the
workspace facade end to end, not as a substitute for a real caller.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().String("account", "", "Provider service account username")
	rootCmd.PersistentFlags().String("secret", "", "Provider service account secret")
	rootCmd.PersistentFlags().String("project", "", "Provider project id")
	rootCmd.PersistentFlags().String("region", "US", "Provider region (US, EU, or IN)")
	rootCmd.PersistentFlags().String("store", "", "Sqlite store path (empty selects in-memory)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newFetchEventsCmd())
	rootCmd.AddCommand(newFetchProfilesCmd())
	rootCmd.AddCommand(newSegmentationCmd())

	viper.SetEnvPrefix("MP")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newFetchEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-events",
		Short: "Materialize events for [from, to] into a local table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			table, _ := cmd.Flags().GetString("table")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			replace, _ := cmd.Flags().GetBool("replace")
			parallel, _ := cmd.Flags().GetBool("parallel")
			workers, _ := cmd.Flags().GetInt("workers")

			result, parallelResult, err := ws.FetchEvents(cmd.Context(), table, workspace.FetchEventsOptions{
				From:      from,
				To:        to,
				Filter:    streaming.EventFilter{},
				Replace:   replace,
				Parallel:  parallel,
				Workers:   workers,
				BatchSize: 1000,
				OnProgress: func(p types.ParallelFetchProgress) {
					log.Info().Str("slice", p.SliceKey).Int64("rows", p.Rows).Bool("success", p.Success).Msg("progress")
				},
			})
			if err != nil {
				return fmt.Errorf("fetching events: %w", err)
			}
			if parallel {
				printJSON(parallelResult)
			} else {
				printJSON(result)
			}
			return nil
		},
	}
	cmd.Flags().String("table", "events", "Destination table name")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().Bool("replace", false, "Drop and recreate the table first")
	cmd.Flags().Bool("parallel", false, "Shard by day across workers")
	cmd.Flags().Int("workers", 0, "Worker count (0 selects the default)")
	return cmd
}

func newFetchProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-profiles",
		Short: "Materialize every profile matching a filter into a local table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			table, _ := cmd.Flags().GetString("table")
			where, _ := cmd.Flags().GetString("where")
			replace, _ := cmd.Flags().GetBool("replace")
			parallel, _ := cmd.Flags().GetBool("parallel")
			workers, _ := cmd.Flags().GetInt("workers")

			result, parallelResult, err := ws.FetchProfiles(cmd.Context(), table, workspace.FetchProfilesOptions{
				Where:     where,
				Replace:   replace,
				Parallel:  parallel,
				Workers:   workers,
				BatchSize: 1000,
			})
			if err != nil {
				return fmt.Errorf("fetching profiles: %w", err)
			}
			if parallel {
				printJSON(parallelResult)
			} else {
				printJSON(result)
			}
			return nil
		},
	}
	cmd.Flags().String("table", "profiles", "Destination table name")
	cmd.Flags().String("where", "", "Provider profile filter expression")
	cmd.Flags().Bool("replace", false, "Drop and recreate the table first")
	cmd.Flags().Bool("parallel", false, "Shard by page across workers")
	cmd.Flags().Int("workers", 0, "Worker count (0 selects the default)")
	return cmd
}

func newSegmentationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segmentation",
		Short: "Run a live segmentation query and print the shaped result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			event, _ := cmd.Flags().GetString("event")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			unit, _ := cmd.Flags().GetString("unit")
			segmentProp, _ := cmd.Flags().GetString("on")

			result, err := ws.Segmentation(cmd.Context(), event, from, to, types.SegmentationUnit(unit), segmentProp)
			if err != nil {
				return fmt.Errorf("running segmentation: %w", err)
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().String("event", "", "Event name")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().String("unit", "day", "Bucket unit (minute, hour, day, week, month)")
	cmd.Flags().String("on", "", "Segmentation property expression")
	return cmd
}

func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return workspace.Open(workspace.Config{
		Account:   viper.GetString("account"),
		Secret:    viper.GetString("secret"),
		Project:   viper.GetString("project"),
		Region:    types.Region(viper.GetString("region")),
		StorePath: viper.GetString("store"),
		Logger:    log.Logger,
	})
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
