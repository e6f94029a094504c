package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// shapeRecord is the attribute layout of exported shapefiles.
type shapeRecord struct {
	geom.Polygon
	ID int
}

// WriteShapefile writes features as a polygon shapefile at path with an
// integer ID attribute. A .prj sidecar is written when projection is set.
func WriteShapefile(path string, features []Feature, projection string) error {
	enc, err := shp.NewEncoder(path, shapeRecord{})
	if err != nil {
		return fmt.Errorf("create shapefile %s: %w", path, err)
	}
	for _, f := range features {
		if err := enc.Encode(shapeRecord{Polygon: f.Polygon, ID: f.ID}); err != nil {
			enc.Close()
			return fmt.Errorf("encode feature %d: %w", f.ID, err)
		}
	}
	enc.Close()

	if projection == "" {
		return nil
	}
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if err := os.WriteFile(prj, []byte(projection), 0o644); err != nil {
		return fmt.Errorf("write projection: %w", err)
	}
	return nil
}
