package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"caseledger/internal/allocation"
	"caseledger/internal/catalog"
	"caseledger/internal/oplog"
	"caseledger/internal/roomstore"
)

// NewAllocateCommand creates the allocate command, which runs one
// allocation against a SQLite room store.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath         string
		orgRoom        string
		bridgeRoom     string
		vaultRoom      string
		relationID     string
		resourceTypeID string
		quantity       int64
		allocatedTo    string
		role           string
		actor          string
		origin         string
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate a resource",
		Long:  "Validate and, when valid, record one allocation: ledger mutation, bridge record, vault shadow, and grant operation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			store, err := roomstore.OpenSQLite(dbPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer store.Close()

			cat := catalog.New(store)
			rt, err := cat.GetResourceType(cmd.Context(), orgRoom, resourceTypeID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read resource type", err)
			}
			if rt == nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("resource type %s not found in %s", resourceTypeID, orgRoom))
			}

			log := oplog.NewLog(store, oplog.NewChain(), actor, origin)
			svc := allocation.NewService(store, log)

			req := allocation.Request{
				ResourceTypeID: resourceTypeID,
				RelationID:     relationID,
				Quantity:       quantity,
				AllocatedTo:    allocatedTo,
			}
			result, err := svc.AllocateResource(cmd.Context(), bridgeRoom, req, orgRoom, vaultRoom, *rt, nil, role)
			if err != nil {
				return WrapExitError(ExitCommandError, "allocation failed", err)
			}

			if rootOpts.Format == "json" {
				if err := formatter.Success(result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "Allocated %d to %s (allocation %s)\n", quantity, allocatedTo, result.Allocation.ID)
				for _, advisory := range result.Advisories {
					fmt.Fprintf(cmd.OutOrStdout(), "  advisory: %s\n", advisory)
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Allocation rejected:")
				for _, v := range result.Violations {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", v.Check, v.Message)
				}
			}

			if !result.Valid {
				return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s)", len(result.Violations)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database")
	cmd.Flags().StringVar(&orgRoom, "org-room", "", "organization room holding the relation")
	cmd.Flags().StringVar(&bridgeRoom, "bridge-room", "", "bridge room for the allocation record")
	cmd.Flags().StringVar(&vaultRoom, "vault-room", "", "individual's vault room for the shadow record")
	cmd.Flags().StringVar(&relationID, "relation", "", "relation id to allocate from")
	cmd.Flags().StringVar(&resourceTypeID, "resource-type", "", "resource type id")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "quantity to allocate")
	cmd.Flags().StringVar(&allocatedTo, "to", "", "individual receiving the allocation")
	cmd.Flags().StringVar(&role, "role", "", "caller's role")
	cmd.Flags().StringVar(&actor, "actor", "@caseledger:local", "actor id recorded on the grant operation")
	cmd.Flags().StringVar(&origin, "origin", "local", "origin server recorded on the grant operation")
	for _, name := range []string{"db", "org-room", "bridge-room", "vault-room", "relation", "resource-type", "quantity", "to", "role"} {
		cmd.MarkFlagRequired(name)
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return cmd
}
