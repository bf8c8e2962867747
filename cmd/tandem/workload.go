package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tandem-ha/tandem/pkg/runtime"
)

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Manage the containers the controller watches",
}

var workloadCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a named container on this host",
	Long: `Create a container from an image so the controller can manage it.

Both nodes must be seeded with the same container names before the
controller runs. Example:

  tandem workload create --name container-1 --image docker.io/library/nginx:alpine`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		image, _ := cmd.Flags().GetString("image")
		env, _ := cmd.Flags().GetStringArray("env")
		socket, _ := cmd.Flags().GetString("containerd-socket")

		driver, err := runtime.NewContainerdDriver(socket)
		if err != nil {
			return err
		}
		defer func() { _ = driver.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := driver.Create(ctx, name, image, env, nil); err != nil {
			return err
		}

		fmt.Printf("Created workload %s from %s\n", name, image)
		return nil
	},
}

func init() {
	workloadCreateCmd.Flags().String("name", "", "Container name (required)")
	workloadCreateCmd.Flags().String("image", "", "Image reference (required)")
	workloadCreateCmd.Flags().StringArray("env", nil, "Environment variables (KEY=VALUE, repeatable)")
	workloadCreateCmd.Flags().String("containerd-socket", "", "Path to the containerd socket")
	_ = workloadCreateCmd.MarkFlagRequired("name")
	_ = workloadCreateCmd.MarkFlagRequired("image")

	workloadCmd.AddCommand(workloadCreateCmd)
}
