package group

import (
	"fmt"
	"strconv"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	"github.com/spf13/cobra"
)

var (
	joinEphemeral bool

	joinCmd = &cobra.Command{
		Use:   "join [memberID]",
		Short: "Joins the group as memberID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			mode := rsm.Persistent
			if joinEphemeral {
				mode = rsm.Ephemeral
			}
			member, err := rpcGroup.Join(args[0], mode)
			if err != nil {
				return err
			}
			fmt.Printf("joined: memberId=%s, index=%d\n", member.MemberID, member.Index)
			return nil
		},
	}

	leaveCmd = &cobra.Command{
		Use:   "leave [memberID]",
		Short: "Leaves the group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			if err := rpcGroup.Leave(args[0]); err != nil {
				return err
			}
			fmt.Println("left successfully")
			return nil
		},
	}

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Registers as a listener and prints the current member list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			members, err := rpcGroup.Listen()
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Printf("memberId=%s, index=%d\n", m.MemberID, m.Index)
			}
			return nil
		},
	}

	submitDispatch string
	submitDelivery string

	submitCmd = &cobra.Command{
		Use:   "submit [memberID] [type] [body]",
		Short: "Sends a message to a member, or dispatches it across the group if memberID is empty",
		Long:  "Sends a message to memberID, or - if memberID is \"\" - dispatches it across the group per --dispatch (random, broadcast) with --delivery (once, retry) semantics",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			memberID := args[0]
			msgType := args[1]
			body := args[2]

			dispatch, err := parseDispatchPolicy(submitDispatch)
			if err != nil {
				return err
			}
			delivery, err := parseDeliveryPolicy(submitDelivery)
			if err != nil {
				return err
			}

			messageID, err := rpcGroup.Submit(memberID, msgType, []byte(body), dispatch, delivery)
			if err != nil {
				return err
			}
			fmt.Printf("submitted: messageId=%d\n", messageID)
			return nil
		},
	}

	ackSucceeded bool

	ackCmd = &cobra.Command{
		Use:   "ack [messageID]",
		Short: "Acknowledges a delivered message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			messageID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("messageID must be a number: %w", err)
			}
			if err := rpcGroup.Ack(messageID, ackSucceeded); err != nil {
				return err
			}
			fmt.Println("acked successfully")
			return nil
		},
	}

	drainCmd = &cobra.Command{
		Use:   "drain",
		Short: "Drains and prints queued events for this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcGroup.Close()
			events, err := rpcGroup.Drain()
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("kind=%s, memberId=%s, term=%d, messageId=%d, payloadType=%s, succeeded=%v, payload=%s\n",
					e.Kind, e.MemberID, e.Term, e.MessageID, e.PayloadType, e.Succeeded, e.Payload)
			}
			return nil
		},
	}
)

func init() {
	joinCmd.Flags().BoolVar(&joinEphemeral, "ephemeral", false, "Membership does not survive this session closing")
	submitCmd.Flags().StringVar(&submitDispatch, "dispatch", "random", "How a non-direct submit (empty memberID) picks its target: random, broadcast")
	submitCmd.Flags().StringVar(&submitDelivery, "delivery", "once", "What happens if the target leaves before acknowledging: once, retry")
	ackCmd.Flags().BoolVar(&ackSucceeded, "succeeded", true, "Whether the message was handled successfully")
}

func parseDispatchPolicy(s string) (wire.DispatchPolicy, error) {
	switch s {
	case "random":
		return wire.DispatchRandom, nil
	case "broadcast":
		return wire.DispatchBroadcast, nil
	default:
		return 0, fmt.Errorf("invalid dispatch policy: %s (expected random or broadcast)", s)
	}
}

func parseDeliveryPolicy(s string) (wire.DeliveryPolicy, error) {
	switch s {
	case "once":
		return wire.DeliveryOnce, nil
	case "retry":
		return wire.DeliveryRetry, nil
	default:
		return 0, fmt.Errorf("invalid delivery policy: %s (expected once or retry)", s)
	}
}
