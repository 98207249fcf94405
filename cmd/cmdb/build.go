package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var refreshBuild bool

var cmdBuild = &cobra.Command{
	Use:   "build",
	Short: "Build the CMDB once, write the dump and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context())
	},
}

func init() {
	cmdBuild.Flags().BoolVar(&refreshBuild, "refresh", false, "Ignore the persisted document cache and fetch everything again")
	rootCmd.AddCommand(cmdBuild)
}

type buildSummary struct {
	Inventory string `yaml:"inventory"`
	Hosts     int    `yaml:"hosts"`
	Groups    int    `yaml:"groups"`
	Error     string `yaml:"error,omitempty"`
}

func runBuild(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	if refreshBuild {
		err = store.Refresh(ctx)
	} else {
		err = store.Build(ctx)
	}
	if err != nil {
		logger.Error("CMDB build failed", "error", err)
		return fmt.Errorf("build failed: %w", err)
	}

	var out []buildSummary
	for _, s := range store.Inventories() {
		out = append(out, buildSummary{
			Inventory: s.Name,
			Hosts:     s.HostCount,
			Groups:    s.GroupCount,
			Error:     s.Error,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Inventory < out[j].Inventory
	})

	logger.Info("CMDB dump written", "path", cfg.DumpPath())

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}
