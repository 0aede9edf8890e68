package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fishdata/catchgrid/internal/collector"
	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
	"github.com/fishdata/catchgrid/internal/output"
)

var (
	collectAOI       string
	collectSRS       string
	collectCellsize  float64
	collectWorkspace string
	collectStore     string
	collectWorkers   int
	collectKeepRaw   bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect catches for an AOI on a square grid",
	Long:  "Tiles the AOI polygon with square cells, queries each intersecting cell's WGS84 bounding box, deduplicates records across cells, and writes run artifacts to the workspace.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if collectStore != "" {
			cfg.Store.Driver = collectStore
		}
		if err := cfg.Validate("collect"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "collect"))

		workspace := collectWorkspace
		if workspace == "" {
			workspace = cfg.Output.Workspace
		}
		if err := os.MkdirAll(workspace, 0o755); err != nil {
			return eris.Wrap(err, "collect: create workspace")
		}

		aoi, err := grid.LoadAOI(collectAOI, collectSRS)
		if err != nil {
			return err
		}

		workers := collectWorkers
		if workers == 0 {
			workers = cfg.Collect.Workers
		}
		keepRaw := collectKeepRaw || cfg.Collect.KeepRaw

		result, runErr := newCollector(workers, keepRaw).Run(ctx, aoi, collectCellsize)
		if result == nil {
			return runErr
		}

		status := model.RunStatusComplete
		if runErr != nil || len(result.Failures) > 0 {
			status = model.RunStatusPartial
		}

		run, err := persistRun(ctx, result, status)
		if err != nil {
			return err
		}

		if err := writeArtifacts(workspace, result, run, keepRaw); err != nil {
			return err
		}

		log.Info("collection finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Int("catches", len(result.Records)),
			zap.Int("cells_queried", result.CellsQueried),
			zap.Int("duplicates", result.Duplicates),
			zap.Int("dropped", result.Dropped),
			zap.Int("failed_cells", len(result.Failures)),
		)

		return runErr
	},
}

// persistRun records the run and its contents in the configured store. With
// the "none" driver it only materializes the run record for the summary.
// Persistence ignores cancellation so an interrupted run still lands.
func persistRun(ctx context.Context, result *collector.Result, status model.RunStatus) (*model.Run, error) {
	now := time.Now().UTC()
	if cfg.Store.Driver == "none" {
		return &model.Run{
			ID:        uuid.New().String(),
			AOIPath:   collectAOI,
			CRS:       collectSRS,
			CellSize:  collectCellsize,
			Status:    status,
			Catches:   len(result.Records),
			Cells:     len(result.Grid),
			Failures:  result.Failures,
			Dropped:   result.Dropped,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	pctx := context.WithoutCancel(ctx)
	st, err := initStore(pctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	run, err := st.CreateRun(pctx, collectAOI, collectSRS, collectCellsize)
	if err != nil {
		return nil, err
	}
	if err := st.SaveCells(pctx, run.ID, result.Grid); err != nil {
		return nil, err
	}
	if err := st.SaveCatches(pctx, run.ID, result.Records); err != nil {
		return nil, err
	}

	run.Status = status
	run.Catches = len(result.Records)
	run.Cells = len(result.Grid)
	run.Failures = result.Failures
	run.Dropped = result.Dropped
	if err := st.FinishRun(pctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func writeArtifacts(workspace string, result *collector.Result, run *model.Run, keepRaw bool) error {
	if cfg.Output.CSV {
		if err := output.WriteCatchesCSV(filepath.Join(workspace, "catches.csv"), result.Records); err != nil {
			return err
		}
	}
	if cfg.Output.XLSX {
		if err := output.WriteCatchesXLSX(filepath.Join(workspace, "catches.xlsx"), result.Records); err != nil {
			return err
		}
	}
	if cfg.Output.Shapefile {
		if err := output.WriteGridShapefile(filepath.Join(workspace, "grid.shp"), result.Grid); err != nil {
			return err
		}
		if err := output.WriteGridShapefileWGS84(filepath.Join(workspace, "grid_wgs84.shp"), result.Grid); err != nil {
			return err
		}
	}
	if err := output.WriteFailuresCSV(filepath.Join(workspace, "failures.csv"), result.Failures); err != nil {
		return err
	}
	if keepRaw {
		if err := output.WriteRawPages(filepath.Join(workspace, "raw"), result.Grid, result.Raw); err != nil {
			return err
		}
	}
	return output.WriteRunSummary(filepath.Join(workspace, "summary.json"), run)
}

func init() {
	collectCmd.Flags().StringVar(&collectAOI, "aoi", "", "path to AOI polygon shapefile (required)")
	collectCmd.Flags().StringVar(&collectSRS, "srs", "EPSG:4326", "coordinate system of the AOI (EPSG:4326, EPSG:3857, or a proj4 string)")
	collectCmd.Flags().Float64Var(&collectCellsize, "cellsize", 0, "grid cell size in AOI units (required)")
	collectCmd.Flags().StringVar(&collectWorkspace, "workspace", "", "output directory (default from config)")
	collectCmd.Flags().StringVar(&collectStore, "store", "", "store driver override: sqlite, postgres, or none")
	collectCmd.Flags().IntVar(&collectWorkers, "workers", 0, "concurrent cell queries (default from config)")
	collectCmd.Flags().BoolVar(&collectKeepRaw, "keep-raw", false, "dump raw API responses per cell")
	_ = collectCmd.MarkFlagRequired("aoi")
	_ = collectCmd.MarkFlagRequired("cellsize")
	rootCmd.AddCommand(collectCmd)
}
