package group

import (
	"github.com/finnhorsman/ensemble/cmd/util"
	"github.com/finnhorsman/ensemble/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcGroup client.IGroupClient

	// GroupCommands represents the group command group
	GroupCommands = &cobra.Command{
		Use:               "group",
		Short:             "Perform group membership and messaging operations",
		PersistentPreRunE: setupGroupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the group command
	util.SetupRPCClientFlags(GroupCommands)

	// Set default shard ID for group operations
	GroupCommands.PersistentFlags().Int("shard", 400, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	GroupCommands.AddCommand(joinCmd)
	GroupCommands.AddCommand(leaveCmd)
	GroupCommands.AddCommand(listenCmd)
	GroupCommands.AddCommand(submitCmd)
	GroupCommands.AddCommand(ackCmd)
	GroupCommands.AddCommand(drainCmd)
}

// setupGroupClient initializes the RPC group client. Every CLI invocation
// gets its own session, closed again once the requested operation completes.
func setupGroupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the group client
	rpcGroup, err = client.NewRPCGroup(
		shardId,
		*config,
		t,
		s,
	)

	return err
}
