package entity

import (
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"
)

// SiteLocation is the timezone articles are published in.
var SiteLocation = mustLoadLocation("Europe/Riga")

// DatumsLayout is how publish dates are written to the archive files.
const DatumsLayout = "2006-01-02 15:04:05"

var datumsLayouts = []string{DatumsLayout, "2006-01-02 15:04"}

// Datums is a publish timestamp serialized as "YYYY-MM-DD HH:MM:SS" in SiteLocation.
type Datums struct {
	time.Time
}

// NewDatums wraps t, normalized to SiteLocation.
func NewDatums(t time.Time) Datums {
	return Datums{Time: t.In(SiteLocation)}
}

// ParseDatums reads both the current layout and the older minute-precision one.
func ParseDatums(s string) (Datums, error) {
	for _, layout := range datumsLayouts {
		if t, err := time.ParseInLocation(layout, s, SiteLocation); err == nil {
			return Datums{Time: t}, nil
		}
	}
	return Datums{}, fmt.Errorf("invalid datums %q", s)
}

func (d Datums) String() string {
	return d.In(SiteLocation).Format(DatumsLayout)
}

func (d Datums) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Datums) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDatums(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
