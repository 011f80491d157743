package ttlmap

import (
	"github.com/finnhorsman/ensemble/cmd/util"
	"github.com/finnhorsman/ensemble/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcTTLMap client.ITTLMapClient

	// TTLMapCommands represents the ttlmap command group
	TTLMapCommands = &cobra.Command{
		Use:               "ttlmap",
		Short:             "Perform TTL map operations",
		PersistentPreRunE: setupTTLMapClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the ttlmap command
	util.SetupRPCClientFlags(TTLMapCommands)

	// Set default shard ID for ttlmap operations
	TTLMapCommands.PersistentFlags().Int("shard", 300, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	TTLMapCommands.AddCommand(putCmd)
	TTLMapCommands.AddCommand(getCmd)
	TTLMapCommands.AddCommand(getOrDefaultCmd)
	TTLMapCommands.AddCommand(containsKeyCmd)
	TTLMapCommands.AddCommand(removeCmd)
	TTLMapCommands.AddCommand(sizeCmd)
	TTLMapCommands.AddCommand(isEmptyCmd)
	TTLMapCommands.AddCommand(clearCmd)
}

// setupTTLMapClient initializes the RPC TTL map client
func setupTTLMapClient(cmd *cobra.Command, _ []string) error {
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

	// Create the TTL map client
	rpcTTLMap, err = client.NewRPCTTLMap(
		shardId,
		*config,
		t,
		s,
	)

	return err
}
