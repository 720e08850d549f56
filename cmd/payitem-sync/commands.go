package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/payitemsync"
	"github.com/spf13/cobra"
)

const unknownBusinessMessage = "The business External ID that you provided does not exist"

var errReported = errors.New("reported")

func newRootCommand(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "payitem-sync",
		Short:         "Reconcile partner pay items into the local database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSyncCommand(d), newSyncAllCommand(d), newExportCommand(d), newMigrateCommand(d))
	return root
}

func newSyncCommand(d deps) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "sync <business-external-id>",
		Short: "Sync the partner pay items of one business",
		Example: `  payitem-sync sync abcd-efg-hijk          # run now
  payitem-sync sync abcd-efg-hijk --queue  # hand the run to the sync service`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			db, err := d.openDB()
			if err != nil {
				return err
			}
			business, err := models.GetBusinessByExternalId(ctx, db, args[0])
			if err != nil {
				if errors.Is(err, models.ErrBusinessNotFound) {
					fmt.Fprintln(cmd.ErrOrStderr(), unknownBusinessMessage)
					return errReported
				}
				return err
			}

			if queue {
				messageId, err := payitemsync.PublishSyncRun(ctx, d.publish, business.ExternalId, models.SyncTriggeredCli)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "An unexpected error occurred: %s\n", err)
					return errReported
				}
				fmt.Fprintf(out, "Sync run queued for %s (message %s)\n", business.ExternalId, messageId)
				return nil
			}

			if _, err := d.dispatcher(ctx, db).Dispatch(ctx, business, models.SyncTriggeredCli); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "An unexpected error occurred: %s\n", err)
				return errReported
			}
			fmt.Fprintf(out, "Sync run successfully for %s\n", business.ExternalId)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "publish the run to Pub/Sub instead of running it here")
	return cmd
}

func newSyncAllCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-all",
		Short: "Sync every enabled business, one after another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := d.openDB()
			if err != nil {
				return err
			}
			businesses, err := models.ListEnabledBusinesses(ctx, db)
			if err != nil {
				return err
			}

			failures := d.dispatcher(ctx, db).DispatchAll(ctx, businesses, models.SyncTriggeredCli)
			for _, b := range businesses {
				if _, failed := failures[b.ExternalId]; !failed {
					fmt.Fprintf(cmd.OutOrStdout(), "Sync run successfully for %s\n", b.ExternalId)
				}
			}
			if len(failures) == 0 {
				return nil
			}
			ids := make([]string, 0, len(failures))
			for id := range failures {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.ErrOrStderr(), "An unexpected error occurred: %s\n", failures[id])
			}
			return errReported
		},
	}
}

func newExportCommand(d deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <business-external-id>",
		Short: "Write a business's current pay items to an xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := d.openDB()
			if err != nil {
				return err
			}
			business, err := models.GetBusinessByExternalId(cmd.Context(), db, args[0])
			if err != nil {
				if errors.Is(err, models.ErrBusinessNotFound) {
					fmt.Fprintln(cmd.ErrOrStderr(), unknownBusinessMessage)
					return errReported
				}
				return err
			}

			if output == "" {
				output = business.ExternalId + "-pay-items.xlsx"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := payitemsync.ExportBusinessPayItems(db.WithContext(cmd.Context()), business, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pay items to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "xlsx file to write (default <business>-pay-items.xlsx)")
	return cmd
}

func newMigrateCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the pay item tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := d.openDB()
			if err != nil {
				return err
			}
			if err := models.MigrateTable(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}
