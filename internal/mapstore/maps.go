package mapstore

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/scanmatch/internal/statmap"
)

// Kind distinguishes counting maps from probability maps.
type Kind string

const (
	KindCounting    Kind = "counting"
	KindProbability Kind = "probability"
)

// MapInfo describes a stored map.
type MapInfo struct {
	MapID       string  `json:"map_id"`
	Name        string  `json:"name"`
	Kind        Kind    `json:"kind"`
	CellSize    float64 `json:"cell_size"`
	UnitCells   int     `json:"unit_cells"`
	Points      uint64  `json:"points"`
	RawBytes    int64   `json:"raw_bytes"`
	StoredBytes int64   `json:"stored_bytes"`
	CreatedAtNs int64   `json:"created_at_ns"`
}

// SaveCountingMap stores m under name and returns its new id.
func (s *Store) SaveCountingMap(name string, m *statmap.CountingMap) (string, error) {
	return saveMap(s, name, KindCounting, &m.Map, m.Points())
}

// SaveProbabilityMap stores m under name and returns its new id.
func (s *Store) SaveProbabilityMap(name string, m *statmap.ProbabilityMap) (string, error) {
	return saveMap(s, name, KindProbability, &m.Map, m.Stats().Points)
}

func saveMap[T any](s *Store, name string, kind Kind, m *statmap.Map[T], points uint64) (string, error) {
	planes, err := m.EncodePlanes()
	if err != nil {
		return "", fmt.Errorf("encode map %q: %w", name, err)
	}
	id := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save map: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO maps (map_id, name, kind, cell_size, unit_cells, points, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, name, string(kind), m.CellSize(), m.UnitCells(), int64(points), s.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert map: %w", err)
	}

	var raw, stored int
	for i, p := range planes {
		data := s.enc.EncodeAll(p, nil)
		raw += len(p)
		stored += len(data)
		if _, err := tx.Exec(`INSERT INTO map_planes (map_id, plane, raw_bytes, data) VALUES (?, ?, ?, ?)`,
			id, i, len(p), data); err != nil {
			return "", fmt.Errorf("insert plane %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save map: %w", err)
	}

	s.log.Diagf("stored %s map %q as %s: %d bytes compressed to %d", kind, name, id, raw, stored)
	return id, nil
}

// GetMap returns the description of map id.
func (s *Store) GetMap(id string) (*MapInfo, error) {
	row := s.db.QueryRow(mapInfoQuery+` WHERE m.map_id = ? GROUP BY m.map_id`, id)
	info, err := scanMapInfo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: map %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get map: %w", err)
	}
	return info, nil
}

// ListMaps returns every stored map, oldest first.
func (s *Store) ListMaps() ([]*MapInfo, error) {
	rows, err := s.db.Query(mapInfoQuery + ` GROUP BY m.map_id ORDER BY m.created_at_ns, m.map_id`)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close()

	var out []*MapInfo
	for rows.Next() {
		info, err := scanMapInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

const mapInfoQuery = `
	SELECT m.map_id, m.name, m.kind, m.cell_size, m.unit_cells, m.points, m.created_at_ns,
	       COALESCE(SUM(p.raw_bytes), 0), COALESCE(SUM(LENGTH(p.data)), 0)
	FROM maps m
	LEFT JOIN map_planes p ON p.map_id = m.map_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMapInfo(r scanner) (*MapInfo, error) {
	var info MapInfo
	var kind string
	var points int64
	if err := r.Scan(&info.MapID, &info.Name, &kind, &info.CellSize, &info.UnitCells,
		&points, &info.CreatedAtNs, &info.RawBytes, &info.StoredBytes); err != nil {
		return nil, err
	}
	info.Kind = Kind(kind)
	info.Points = uint64(points)
	return &info, nil
}

// LoadCountingMap restores counting map id.
func (s *Store) LoadCountingMap(id string) (*statmap.CountingMap, error) {
	planes, err := s.loadPlanes(id, KindCounting)
	if err != nil {
		return nil, err
	}
	m, err := statmap.DecodeCountingMap(planes)
	if err != nil {
		return nil, fmt.Errorf("decode map %s: %w", id, err)
	}
	return m, nil
}

// LoadProbabilityMap restores probability map id.
func (s *Store) LoadProbabilityMap(id string) (*statmap.ProbabilityMap, error) {
	planes, err := s.loadPlanes(id, KindProbability)
	if err != nil {
		return nil, err
	}
	m, err := statmap.DecodeProbabilityMap(planes)
	if err != nil {
		return nil, fmt.Errorf("decode map %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) loadPlanes(id string, want Kind) ([statmap.Planes][]byte, error) {
	var planes [statmap.Planes][]byte

	var kind string
	err := s.db.QueryRow(`SELECT kind FROM maps WHERE map_id = ?`, id).Scan(&kind)
	if err == sql.ErrNoRows {
		return planes, fmt.Errorf("%w: map %s", ErrNotFound, id)
	}
	if err != nil {
		return planes, fmt.Errorf("get map: %w", err)
	}
	if Kind(kind) != want {
		return planes, fmt.Errorf("%w: map %s is %s, not %s", ErrKindMismatch, id, kind, want)
	}

	rows, err := s.db.Query(`SELECT plane, raw_bytes, data FROM map_planes WHERE map_id = ? ORDER BY plane`, id)
	if err != nil {
		return planes, fmt.Errorf("query planes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			plane, raw int
			data       []byte
		)
		if err := rows.Scan(&plane, &raw, &data); err != nil {
			return planes, fmt.Errorf("scan plane: %w", err)
		}
		if plane < 0 || plane >= statmap.Planes {
			return planes, fmt.Errorf("map %s: bad plane index %d", id, plane)
		}
		buf, err := s.dec.DecodeAll(data, make([]byte, 0, raw))
		if err != nil {
			return planes, fmt.Errorf("decompress plane %d: %w", plane, err)
		}
		planes[plane] = buf
	}
	return planes, rows.Err()
}

// DeleteMap removes map id together with its planes and runs.
func (s *Store) DeleteMap(id string) error {
	res, err := s.db.Exec(`DELETE FROM maps WHERE map_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete map: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete map: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: map %s", ErrNotFound, id)
	}
	s.log.Diagf("deleted map %s", id)
	return nil
}
