package geometry

import (
	"encoding/csv"
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Profile is one row of the predefined volume profile table. Profiles exist
// so tools can format a volume by name instead of spelling out five numbers.
type Profile struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	SectorSize        uint   `csv:"sector_size"`
	TotalSectors      uint   `csv:"total_sectors"`
	MaxFiles          uint   `csv:"max_files"`
	MaxSectorsPerFile uint   `csv:"max_sectors_per_file"`
	MaxOpenFiles      uint   `csv:"max_open_files"`
	Notes             string `csv:"notes"`
}

// Geometry converts the profile row into a Geometry value.
func (p Profile) Geometry() Geometry {
	return Geometry{
		SectorSize:        p.SectorSize,
		TotalSectors:      p.TotalSectors,
		MaxFiles:          p.MaxFiles,
		MaxSectorsPerFile: p.MaxSectorsPerFile,
		MaxOpenFiles:      p.MaxOpenFiles,
	}
}

//go:embed volume-profiles.csv
var profilesRawCSV string
var profiles map[string]Profile

// GetProfile looks up a predefined volume profile by its slug.
func GetProfile(slug string) (Profile, error) {
	profile, ok := profiles[slug]
	if ok {
		return profile, nil
	}
	return Profile{}, fmt.Errorf("no predefined volume profile exists with slug %q", slug)
}

// Slugs returns the slugs of every predefined profile, in no particular order.
func Slugs() []string {
	out := make([]string, 0, len(profiles))
	for slug := range profiles {
		out = append(out, slug)
	}
	return out
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(profilesRawCSV))
	csvReader.Comma = '|'

	var rows []Profile
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		panic(fmt.Errorf("failed to decode volume profile table: %w", err))
	}

	profiles = make(map[string]Profile, len(rows))
	for i, row := range rows {
		if _, exists := profiles[row.Slug]; exists {
			panic(fmt.Errorf("duplicate profile definition %q on row %d", row.Slug, i+1))
		}
		if err := row.Geometry().Validate(); err != nil {
			panic(fmt.Errorf("profile %q is invalid: %w", row.Slug, err))
		}
		profiles[row.Slug] = row
	}
}
