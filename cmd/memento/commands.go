package main

import (
	"fmt"
	"sort"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/env"
	"github.com/Matozap/DistributedCache/memento"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("key not found")

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		c, err := openCache(cmd, log, nil)
		if err != nil {
			return err
		}
		defer c.Close()
		val, ok := c.GetString(cmd.Context(), args[0])
		reportHealth(log, c)
		if !ok {
			return errors.Wrap(errNotFound, args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a string value under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := parseExpiration(cmd)
		if err != nil {
			return err
		}
		log := env.NewLogger(cmd)
		c, err := openCache(cmd, log, nil)
		if err != nil {
			return err
		}
		defer c.Close()
		var opts []memento.SetOption
		if !exp.IsZero() {
			opts = append(opts, memento.WithExpiration(exp))
		}
		c.SetString(cmd.Context(), args[0], args[1], opts...)
		c.Wait()
		reportHealth(log, c)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove key from the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		c, err := openCache(cmd, log, nil)
		if err != nil {
			return err
		}
		defer c.Close()
		c.Remove(cmd.Context(), args[0])
		reportHealth(log, c)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every key recorded in the key index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("key-prefix")
		reset, _ := cmd.Flags().GetBool("reset-index")
		log := env.NewLogger(cmd)
		c, err := openCache(cmd, log, func(o *memento.Options) {
			o.SetResetIndexOnClear(reset)
		})
		if err != nil {
			return err
		}
		defer c.Close()
		var removed int
		if prefix != "" {
			removed = c.ClearWithPrefix(cmd.Context(), prefix)
		} else {
			removed = c.Clear(cmd.Context())
		}
		reportHealth(log, c)
		fmt.Fprintf(cmd.OutOrStdout(), "%d keys removed\n", removed)
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys recorded in the key index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := env.NewLogger(cmd)
		c, err := openCache(cmd, log, nil)
		if err != nil {
			return err
		}
		defer c.Close()
		keys := c.Keys(cmd.Context())
		reportHealth(log, c)
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

var initTableCmd = &cobra.Command{
	Use:   "init-table",
	Short: "Create the cache table of a sqlite or postgres store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		if o.Type != memento.TypeSQLite && o.Type != memento.TypePostgres {
			return errors.Newf("init-table needs a sqlite or postgres cache type, got %s", o.Type)
		}
		store, err := memento.NewStore(cmd.Context(), o)
		if err != nil {
			return err
		}
		if err := store.Close(); err != nil {
			return err
		}
		env.NewLogger(cmd).Info("table %s is ready", o.InstanceName)
		return nil
	},
}

func parseExpiration(cmd *cobra.Command) (cache.Expiration, error) {
	var exp cache.Expiration
	if val, _ := cmd.Flags().GetString("ttl"); val != "" {
		d, err := env.ParseDuration(val)
		if err != nil {
			return exp, errors.Wrap(err, "invalid --ttl")
		}
		exp.Absolute = d
	}
	if val, _ := cmd.Flags().GetString("sliding"); val != "" {
		d, err := env.ParseDuration(val)
		if err != nil {
			return exp, errors.Wrap(err, "invalid --sliding")
		}
		exp.Sliding = d
	}
	return exp, nil
}

func init() {
	setCmd.Flags().String("ttl", "", "absolute expiration, e.g. 90s, 2h or 1d")
	setCmd.Flags().String("sliding", "", "sliding expiration, e.g. 10m")
	clearCmd.Flags().String("key-prefix", "", "only remove keys starting with this logical prefix")
	clearCmd.Flags().Bool("reset-index", false, "remove the key index after clearing")
}
