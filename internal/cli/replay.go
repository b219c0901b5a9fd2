package cli

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"caseledger/internal/oplog"
	"caseledger/internal/projector"
	"caseledger/internal/roomstore"
)

// NewReplayCommand creates the replay command, which reads the
// operation log of a room and optionally verifies it.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		room   string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a room's operation log",
		Long:  "Read all operation records from a room in database order, optionally verifying each record and checking that projection is deterministic.",
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

			if verify {
				var problems []string
				for i, rec := range records {
					for _, verr := range rec.Validate() {
						problems = append(problems, fmt.Sprintf("record %d (%s): %v", i, rec.ID, verr))
					}
				}
				frames := map[string]bool{}
				for _, rec := range records {
					frames[rec.Frame.Type] = true
				}
				for frame := range frames {
					first := projector.Project(records, frame)
					second := projector.Project(records, frame)
					if !reflect.DeepEqual(first, second) {
						problems = append(problems, fmt.Sprintf("projection not deterministic for frame %q", frame))
					}
				}
				if len(problems) > 0 {
					formatter.Error("verification failed", problems)
					return NewExitError(ExitFailure, fmt.Sprintf("%d verification problem(s)", len(problems)))
				}
			}

			if rootOpts.Format == "json" {
				return formatter.Success(replaySummary{Room: room, RecordCount: len(records), Verified: verify})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d record(s) from %s\n", len(records), room)
			if rootOpts.Verbose {
				for _, rec := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %s ts=%d\n", rec.ID, rec.Op, rec.Target, rec.TS)
				}
			}
			if verify {
				fmt.Fprintln(cmd.OutOrStdout(), "Verification passed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database")
	cmd.Flags().StringVar(&room, "room", "", "room identifier")
	cmd.Flags().BoolVar(&verify, "verify", false, "validate records and check projection determinism")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagRequired("room")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return cmd
}

type replaySummary struct {
	Room        string `json:"room"`
	RecordCount int    `json:"record_count"`
	Verified    bool   `json:"verified"`
}
