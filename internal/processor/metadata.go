package processor

import (
	"fmt"
	"os/exec"

	"github.com/barasher/go-exiftool"
)

// MetadataCopier preserves EXIF/XMP metadata on re-encoded outputs by
// shelling out to exiftool. The tool is optional; a nil or unavailable
// copier simply disables preservation.
type MetadataCopier struct {
	available bool
}

// NewMetadataCopier probes for a working exiftool installation.
func NewMetadataCopier() *MetadataCopier {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return &MetadataCopier{}
	}
	et.Close()
	return &MetadataCopier{available: true}
}

func (m *MetadataCopier) Available() bool {
	return m != nil && m.available
}

// Copy transfers all tags from src onto dst in place.
func (m *MetadataCopier) Copy(src, dst string) error {
	if !m.Available() {
		return fmt.Errorf("exiftool not available")
	}

	cmd := exec.Command("exiftool", "-TagsFromFile", src, "-overwrite_original", dst)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("exiftool: %w: %s", err, output)
	}
	return nil
}

// Read extracts metadata fields from a file, keyed by tag name.
func (m *MetadataCopier) Read(path string) (map[string]interface{}, error) {
	if !m.Available() {
		return nil, fmt.Errorf("exiftool not available")
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	defer et.Close()

	metas := et.ExtractMetadata(path)
	if len(metas) == 0 {
		return nil, fmt.Errorf("no metadata extracted from %s", path)
	}
	if metas[0].Err != nil {
		return nil, fmt.Errorf("failed to extract metadata: %w", metas[0].Err)
	}
	return metas[0].Fields, nil
}
