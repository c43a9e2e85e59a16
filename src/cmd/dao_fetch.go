package cmd

import (
	"fmt"

	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	fetchNetwork int64
	fetchAddress string
)

func init() {
	daoFetchCmd.Flags().Int64Var(&fetchNetwork, "network", 0, "chain id of the network the organization lives on")
	daoFetchCmd.Flags().StringVar(&fetchAddress, "address", "", "address of the organization's core contract")
	_ = daoFetchCmd.MarkFlagRequired("network")
	_ = daoFetchCmd.MarkFlagRequired("address")
	RootCmd.AddCommand(daoFetchCmd)
}

var daoFetchCmd = &cobra.Command{
	Use:   "dao_fetch",
	Short: "Read an organization's initial state from the chain and store it",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("dao-fetch")

		if !common.IsHexAddress(fetchAddress) {
			return fmt.Errorf("%w: invalid address %q", eth.ErrConfiguration, fetchAddress)
		}

		service, cleanup, err := newService(applicationCtx, "dao_fetch")
		if err != nil {
			return
		}
		defer cleanup()

		organization, created, err := service.FetchAndCreate(applicationCtx, fetchNetwork, common.HexToAddress(fetchAddress))
		if err != nil {
			return
		}

		log.WithField("id", organization.Id).
			WithField("name", organization.Name).
			WithField("created", created).
			Info("Organization stored")
		return
	},
}
