package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fishdata/catchgrid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "catchgrid",
	Short: "Grid-based retrieval of geolocated fishing catches",
	Long:  "Tiles an area of interest with square grid cells, queries the catch API per cell bounding box, deduplicates across cells, and writes CSV/XLSX/shapefile artifacts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
