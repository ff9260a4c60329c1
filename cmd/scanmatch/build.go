package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/banshee-data/scanmatch/internal/fsutil"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/mapstore"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// Map files live next to each other under one prefix: prefix.count.N holds
// the counting planes and prefix.prob.N the probability planes.
func countingPrefix(prefix string) string    { return prefix + ".count" }
func probabilityPrefix(prefix string) string { return prefix + ".prob" }

func (e *env) build(args []string) error {
	fs := e.newFlagSet("build")
	pointsPath := fs.String("points", "", "CSV point cloud in map coordinates (required)")
	out := fs.String("out", "", "Output prefix for the map files (required)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *pointsPath == "" || *out == "" {
		fmt.Fprintln(e.stderr, "Error: -points and -out are required")
		fs.Usage()
		return errUsage
	}

	pts, err := readPoints(*pointsPath)
	if err != nil {
		return err
	}
	counting, pm, err := e.buildMaps(pts)
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	if err := counting.Save(fsys, countingPrefix(*out)); err != nil {
		return err
	}
	if err := pm.Save(fsys, probabilityPrefix(*out)); err != nil {
		return err
	}

	st := pm.Stats()
	fmt.Fprintf(e.stdout, "built %s from %d points: %d populated, %d sparse, %d singular cells\n",
		*out, st.Points, st.Populated, st.Sparse, st.Singular)
	return nil
}

// buildMaps counts pts with the configured geometry and builds the
// probability map from the counts.
func (e *env) buildMaps(pts []linalg.Vec2) (*statmap.CountingMap, *statmap.ProbabilityMap, error) {
	mode, err := statmap.ParseMode(e.cfg.GetMapMode())
	if err != nil {
		return nil, nil, err
	}
	counting, err := statmap.NewCountingMap(e.cfg.GetCellSize(), e.cfg.GetBlockCells())
	if err != nil {
		return nil, nil, err
	}
	counting.SetLogger(e.log)
	if err := counting.CountPoints(pts); err != nil {
		return nil, nil, err
	}
	pm, err := statmap.Build(counting, statmap.BuildOptions{SensorError: e.cfg.GetSensorError(), Mode: mode})
	if err != nil {
		return nil, nil, err
	}
	pm.SetLogger(e.log)
	return counting, pm, nil
}

// mapSource names a probability map either by file prefix or by store id.
type mapSource struct {
	prefix string
	dbPath string
	mapID  string
}

func mapFlags(fs *flag.FlagSet) *mapSource {
	src := &mapSource{}
	fs.StringVar(&src.prefix, "map", "", "Map file prefix written by build")
	fs.StringVar(&src.dbPath, "db", "", "Map store database (with -map-id)")
	fs.StringVar(&src.mapID, "map-id", "", "Map id in the store")
	return src
}

func (s *mapSource) validate() error {
	switch {
	case s.prefix != "" && s.mapID != "":
		return errors.New("-map and -map-id are mutually exclusive")
	case s.prefix == "" && s.mapID == "":
		return errors.New("one of -map or -map-id is required")
	case s.mapID != "" && s.dbPath == "":
		return errors.New("-map-id needs -db")
	}
	return nil
}

// loadMap loads the probability map named by src. When the map comes from
// a store the open store is returned too and the caller must close it.
func (e *env) loadMap(src *mapSource) (*statmap.ProbabilityMap, *mapstore.Store, error) {
	if err := src.validate(); err != nil {
		return nil, nil, err
	}
	if src.prefix != "" {
		pm, err := statmap.LoadProbabilityMap(fsutil.OSFileSystem{}, probabilityPrefix(src.prefix))
		if err != nil {
			return nil, nil, err
		}
		pm.SetLogger(e.log)
		return pm, nil, nil
	}
	store, err := e.openStore(src.dbPath)
	if err != nil {
		return nil, nil, err
	}
	pm, err := store.LoadProbabilityMap(src.mapID)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	pm.SetLogger(e.log)
	return pm, store, nil
}

func (e *env) openStore(path string) (*mapstore.Store, error) {
	return mapstore.Open(path, mapstore.Options{Clock: e.clock, Log: e.log})
}
