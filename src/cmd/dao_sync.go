package cmd

import (
	"github.com/dao-forum/reconciler/src/dao_sync"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(daoSyncCmd)
}

var daoSyncCmd = &cobra.Command{
	Use:   "dao_sync",
	Short: "Periodically reconcile organizations and proposals with the chain and serve sync triggers",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		controller, err := dao_sync.NewController(conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		select {
		case <-controller.CtxRunning.Done():
		case <-applicationCtx.Done():
		}

		controller.StopWait()

		return
	},
	PostRunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("root-cmd")
		log.Debug("Finished dao_sync command")
		return
	},
}
