package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/scanmatch"
)

// readPoints reads x,y rows from a CSV file. Extra columns are ignored.
func readPoints(path string) ([]linalg.Vec2, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pts, err := parsePoints(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pts, nil
}

func parsePoints(r io.Reader) ([]linalg.Vec2, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var pts []linalg.Vec2
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("row %d: want x,y, got %d fields", row, len(rec))
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errX != nil || errY != nil {
			if row == 1 && len(pts) == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: invalid point %q,%q", row, rec[0], rec[1])
		}
		pts = append(pts, linalg.Vec2{x, y})
	}
	if len(pts) == 0 {
		return nil, errors.New("no points")
	}
	return pts, nil
}

// writePoints writes pts as x,y CSV rows with a header.
func writePoints(w io.Writer, pts []linalg.Vec2) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y"}); err != nil {
		return err
	}
	for _, p := range pts {
		if err := cw.Write([]string{
			strconv.FormatFloat(p[0], 'g', -1, 64),
			strconv.FormatFloat(p[1], 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parsePose parses "x,y,theta" with theta in radians.
func parsePose(s string) (scanmatch.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return scanmatch.Pose{}, fmt.Errorf("invalid pose %q: want x,y,theta", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return scanmatch.Pose{}, fmt.Errorf("invalid pose %q: %w", s, err)
		}
		v[i] = f
	}
	pose := scanmatch.Pose{X: v[0], Y: v[1], Theta: v[2]}
	if !pose.IsFinite() {
		return scanmatch.Pose{}, fmt.Errorf("invalid pose %q: not finite", s)
	}
	return pose.Normalize(), nil
}
