package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/scanmatch/internal/fsutil"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

func (e *env) store(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(e.stderr, "Usage: scanmatch store <save|list|delete|runs> -db file [options]")
		return errUsage
	}
	fs := e.newFlagSet("store " + args[0])
	dbPath := fs.String("db", "", "Map store database (required)")
	var (
		prefix   *string
		name     *string
		counting *bool
		id       *string
	)
	switch args[0] {
	case "save":
		prefix = fs.String("map", "", "Map file prefix written by build (required)")
		name = fs.String("name", "", "Map name (defaults to the prefix)")
		counting = fs.Bool("counting", false, "Save the counting map instead of the probability map")
	case "delete", "runs":
		id = fs.String("id", "", "Map id (required)")
	case "list":
	default:
		fmt.Fprintf(e.stderr, "Unknown store command: %s\n", args[0])
		return errUsage
	}
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	if *dbPath == "" {
		fmt.Fprintln(e.stderr, "Error: -db is required")
		fs.Usage()
		return errUsage
	}

	s, err := e.openStore(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	switch args[0] {
	case "save":
		if *prefix == "" {
			return errors.New("-map is required")
		}
		if *name == "" {
			*name = *prefix
		}
		var mapID string
		fsys := fsutil.OSFileSystem{}
		if *counting {
			m, err := statmap.LoadCountingMap(fsys, countingPrefix(*prefix))
			if err != nil {
				return err
			}
			mapID, err = s.SaveCountingMap(*name, m)
			if err != nil {
				return err
			}
		} else {
			m, err := statmap.LoadProbabilityMap(fsys, probabilityPrefix(*prefix))
			if err != nil {
				return err
			}
			mapID, err = s.SaveProbabilityMap(*name, m)
			if err != nil {
				return err
			}
		}
		fmt.Fprintln(e.stdout, mapID)
		return nil

	case "list":
		maps, err := s.ListMaps()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKIND\tCELL\tPOINTS\tSTORED\tCREATED")
		for _, m := range maps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%d\t%d/%d\t%s\n",
				m.MapID, m.Name, m.Kind, m.CellSize, m.Points, m.StoredBytes, m.RawBytes,
				time.Unix(0, m.CreatedAtNs).UTC().Format(time.RFC3339))
		}
		return tw.Flush()

	case "delete":
		if *id == "" {
			return errors.New("-id is required")
		}
		return s.DeleteMap(*id)

	case "runs":
		if *id == "" {
			return errors.New("-id is required")
		}
		runs, err := s.ListRuns(*id)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tOPTIMIZER\tPOSE\tLIKELIHOOD\tITER\tCONVERGED\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%v\t%.6g\t%d\t%t\t%s\n",
				r.RunID, r.Result.Optimizer, r.Result.Pose, r.Result.Likelihood,
				r.Result.Iterations, r.Result.Converged, r.Duration)
		}
		return tw.Flush()
	}
	return nil
}
