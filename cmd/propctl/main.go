// propctl is the command-line client for the shared-memory property store:
// read, set, list, and watch properties against a mapped area and the propd
// socket.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/syspropkit/sysprop"
)

var (
	areaPath   string
	socketPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "propctl",
	Short: "Client for the shared-memory property store",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&areaPath, "area", "/run/propd/properties", "Property area file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/propd/propd.sock", "propd request socket")

	getCmd.Flags().String("default", "", "Value to print when the property is unset")
	getCmd.Flags().Bool("bool", false, "Interpret the value as a boolean")
	getCmd.Flags().Bool("int", false, "Interpret the value as an integer")
	watchCmd.Flags().Duration("timeout", 0, "Give up after this long (0 waits forever)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
}

func openStore() (*sysprop.Store, error) {
	return sysprop.Open(areaPath)
}

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print a property's value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		def, _ := cmd.Flags().GetString("default")
		if asBool, _ := cmd.Flags().GetBool("bool"); asBool {
			d, _ := sysprop.ParseBool(def)
			fmt.Println(sysprop.FormatBool(store.GetBool(args[0], d)))
			return nil
		}
		if asInt, _ := cmd.Flags().GetBool("int"); asInt {
			d, _ := strconv.ParseInt(def, 10, 64)
			fmt.Println(store.GetInt(args[0], d))
			return nil
		}
		fmt.Println(store.Get(args[0], def))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Set a property via the property service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.WithService(socketPath).Set(ctx, args[0], args[1])
	},
}

var listCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "Print all properties, optionally filtered by a name prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		store.Foreach(func(name, value string) bool {
			if strings.HasPrefix(name, prefix) {
				fmt.Printf("[%s]: [%s]\n", name, value)
			}
			return true
		})
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch NAME",
	Short: "Print the property's value each time it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		watcher, err := store.Watcher(args[0])
		if err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if value, err := watcher.Read(); err == nil {
			fmt.Println(value)
		}
		for {
			if err := watcher.Wait(ctx); err != nil {
				return err
			}
			value, err := watcher.Read()
			if err != nil {
				return err
			}
			fmt.Println(value)
		}
	},
}
