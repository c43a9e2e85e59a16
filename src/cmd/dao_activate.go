package cmd

import (
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/spf13/cobra"
)

var (
	activateOrganizationId uint64
	activateSlug           string
	activateEnable         bool
)

func init() {
	daoActivateCmd.Flags().Uint64Var(&activateOrganizationId, "id", 0, "organization id")
	daoActivateCmd.Flags().StringVar(&activateSlug, "slug", "", "slug to assign, at most 10 characters")
	daoActivateCmd.Flags().BoolVar(&activateEnable, "activate", true, "include the organization in periodic sweeps")
	_ = daoActivateCmd.MarkFlagRequired("id")
	_ = daoActivateCmd.MarkFlagRequired("slug")
	RootCmd.AddCommand(daoActivateCmd)
}

var daoActivateCmd = &cobra.Command{
	Use:   "dao_activate",
	Short: "Assign a slug to a stored organization and enable its synchronization",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		service, cleanup, err := newService(applicationCtx, "dao_activate")
		if err != nil {
			return
		}
		defer cleanup()

		err = service.AssignSlug(applicationCtx, activateOrganizationId, activateSlug, activateEnable)
		if err != nil {
			return
		}

		logger.NewSublogger("dao-activate").
			WithField("id", activateOrganizationId).
			WithField("slug", activateSlug).
			WithField("active", activateEnable).
			Info("Organization updated")
		return
	},
}
