package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/node"
	"github.com/tandem-ha/tandem/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Tandem - two-node active/passive failover controller",
	Long: `Tandem keeps a set of containers running on exactly one of two
peer servers. The primary runs the workloads and sends heartbeats;
the backup stands by and takes over when the heartbeats stop or the
primary confirms a workload failure.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Tandem version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workloadCmd)
	rootCmd.AddCommand(journalCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the failover controller for one node",
	Long: `Run the controller process for one member of the pair.

Both nodes share a single configuration file; --node selects which
section this process is. Example:

  tandem run --node node-a --config /etc/tandem/tandem.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeName, _ := cmd.Flags().GetString("node")
		configPath, _ := cmd.Flags().GetString("config")
		roleFlag, _ := cmd.Flags().GetString("role")
		jsonLog, _ := cmd.Flags().GetBool("json-log")

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: jsonLog,
		})

		var override types.Role
		if roleFlag != "" {
			override = types.Role(roleFlag)
			if !override.Valid() {
				return fmt.Errorf("invalid role %q (want primary or backup)", roleFlag)
			}
		}

		n, err := node.New(node.Options{
			Config:       cfg,
			Name:         nodeName,
			RoleOverride: override,
		})
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := n.Start(ctx); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-waitErr(n):
			if err != nil {
				log.Errorf("control plane exited", err)
			}
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n.Stop(stopCtx)
		return nil
	},
}

func waitErr(n *node.Node) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- n.Wait() }()
	return ch
}

func init() {
	runCmd.Flags().String("node", "", "Node name from the configuration (required)")
	runCmd.Flags().String("config", "", "Path to the cluster configuration file")
	runCmd.Flags().String("role", "", "Force the initial role (primary or backup)")
	runCmd.Flags().Bool("json-log", false, "Emit JSON logs instead of console output")
	_ = runCmd.MarkFlagRequired("node")
}
