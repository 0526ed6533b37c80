// Command dronesegment segments a drone search area into flight segments
// and writes the result as a GeoJSON FeatureCollection.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TheCoderPerson/AutoDroneSegment/pkg/dronesegment"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dronesegment",
		Short: "Segment a drone search area into launch-point-anchored flight segments",
		RunE:  runSegment,
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml/json/toml)")
	cmd.Flags().String("search-polygon", "", "path to a GeoJSON search polygon (required)")
	cmd.Flags().String("dem", "", "path to the elevation raster (required)")
	cmd.Flags().String("vegetation", "", "path to an optional vegetation-height raster")
	cmd.Flags().String("roads", "", "path to a road vector layer")
	cmd.Flags().String("trails", "", "path to a trail vector layer")
	cmd.Flags().StringSlice("access-types", []string{"anywhere"}, "accepted access types (anywhere, road, trail, off_road)")
	cmd.Flags().Float64("access-deviation-m", 50.0, "access buffer width around road/trail layers, in meters")
	cmd.Flags().Float64("grid-spacing-m", 100.0, "candidate launch-point grid spacing, in meters")
	cmd.Flags().Bool("adaptive-grid", false, "retry at a finer spacing if the regular grid is too sparse")
	cmd.Flags().Float64("observer-height-m", 2.0, "observer (launch point) height above ground, in meters")
	cmd.Flags().Float64("target-height-m", 120.0, "target (drone) height above ground, in meters")
	cmd.Flags().Float64("max-distance-m", 3000.0, "maximum viewshed range, in meters")
	cmd.Flags().Int("viewshed-workers", 4, "parallel viewshed worker count")
	cmd.Flags().Int("preferred-segment-size-cells", 500, "preferred segment size, in DEM cells")
	cmd.Flags().String("output", "", "output GeoJSON path (default: stdout)")

	viper.BindPFlags(cmd.Flags())

	return cmd
}

func runSegment(cmd *cobra.Command, args []string) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	viper.SetEnvPrefix("DRONESEGMENT")
	viper.AutomaticEnv()

	searchPolygonPath := viper.GetString("search-polygon")
	demPath := viper.GetString("dem")
	if searchPolygonPath == "" || demPath == "" {
		return fmt.Errorf("--search-polygon and --dem are required")
	}

	data, err := os.ReadFile(searchPolygonPath)
	if err != nil {
		return fmt.Errorf("reading search polygon: %w", err)
	}
	searchPolygon, err := dronesegment.ParseSearchPolygon(data)
	if err != nil {
		return fmt.Errorf("parsing search polygon: %w", err)
	}

	cfg := dronesegment.DefaultConfig()
	cfg.SearchPolygon = searchPolygon
	cfg.DEMPath = demPath
	cfg.VegetationPath = viper.GetString("vegetation")
	cfg.RoadsPath = viper.GetString("roads")
	cfg.TrailsPath = viper.GetString("trails")
	cfg.AccessTypes = viper.GetStringSlice("access-types")
	cfg.AccessDeviationM = viper.GetFloat64("access-deviation-m")
	cfg.GridSpacingM = viper.GetFloat64("grid-spacing-m")
	cfg.AdaptiveGrid = viper.GetBool("adaptive-grid")
	cfg.ObserverHeightM = viper.GetFloat64("observer-height-m")
	cfg.TargetHeightM = viper.GetFloat64("target-height-m")
	cfg.MaxDistanceM = viper.GetFloat64("max-distance-m")
	cfg.ViewshedWorkers = viper.GetInt("viewshed-workers")
	cfg.PreferredSegmentSizeCells = viper.GetInt("preferred-segment-size-cells")

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	result, err := dronesegment.Run(context.Background(), cfg, log, func(stage string, percent int) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, stage)
	})
	if err != nil {
		return fmt.Errorf("running segmentation pipeline: %w", err)
	}

	out, err := json.MarshalIndent(result.FeatureCollection(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	outputPath := viper.GetString("output")
	if outputPath == "" {
		fmt.Println(string(out))
		return nil
	}
	return os.WriteFile(outputPath, out, 0o644)
}
