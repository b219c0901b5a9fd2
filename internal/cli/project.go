package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"caseledger/internal/oplog"
	"caseledger/internal/projector"
	"caseledger/internal/roomstore"
)

// NewProjectCommand creates the project command, which replays a room's
// operation log and prints the resulting field state for one frame.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		room   string
		frame  string
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project a room's field state",
		Long:  "Replay all operation records from a room and print the projected field state for the given frame type.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			store, err := roomstore.OpenSQLite(dbPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer store.Close()

			records, err := oplog.ReadRecords(cmd.Context(), store, room)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read records", err)
			}

			state := projector.Project(records, frame)
			if rootOpts.Format == "json" {
				return formatter.Success(state)
			}
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode state", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database")
	cmd.Flags().StringVar(&room, "room", "", "room identifier")
	cmd.Flags().StringVar(&frame, "frame", "observed", "frame type to project")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagRequired("room")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return cmd
}
