package ttlmap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	putIfAbsent bool

	putCmd = &cobra.Command{
		Use:   "put [key] [value] [ttlMs]",
		Short: "Stores a value for a key with an optional TTL in milliseconds (0 = no expiry)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			ttlMs, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("ttlMs must be a number: %w", err)
			}
			previous, replaced, err := rpcTTLMap.Put(key, []byte(value), time.Duration(ttlMs)*time.Millisecond, putIfAbsent)
			if err != nil {
				return err
			}
			fmt.Printf("replaced=%v, previous=%s\n", replaced, previous)
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, found, err := rpcTTLMap.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", key, found, value)
			return nil
		},
	}

	getOrDefaultCmd = &cobra.Command{
		Use:   "get-or-default [key] [default]",
		Short: "Reads the value for a key, or returns the given default if absent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			def := args[1]
			value, err := rpcTTLMap.GetOrDefault(key, []byte(def))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s\n", key, value)
			return nil
		},
	}

	containsKeyCmd = &cobra.Command{
		Use:   "contains [key]",
		Short: "Checks whether a key is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			found, err := rpcTTLMap.ContainsKey(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v\n", key, found)
			return nil
		},
	}

	removeCompareValue string

	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key, optionally only if its current value matches --compare",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			var compareValue []byte
			if removeCompareValue != "" {
				compareValue = []byte(removeCompareValue)
			}
			previous, removed, err := rpcTTLMap.Remove(key, compareValue)
			if err != nil {
				return err
			}
			fmt.Printf("removed=%v, previous=%s\n", removed, previous)
			return nil
		},
	}

	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Reports the number of stored entries, including expired ones not yet evicted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := rpcTTLMap.Size()
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}

	isEmptyCmd = &cobra.Command{
		Use:   "is-empty",
		Short: "Reports whether the map stores no entries, counting expired ones not yet evicted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			empty, err := rpcTTLMap.IsEmpty()
			if err != nil {
				return err
			}
			fmt.Printf("isEmpty=%v\n", empty)
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcTTLMap.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
)

func init() {
	putCmd.Flags().BoolVar(&putIfAbsent, "if-absent", false, "Only store the value if the key is not already present")
	removeCmd.Flags().StringVar(&removeCompareValue, "compare", "", "Only remove if the current value equals this (unconditional if omitted)")
}
