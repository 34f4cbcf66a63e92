// Package events decodes GDELT 2.0 event-export archives into record tables and
// filters them by country code.
package events

import "strconv"

// Field is a zero-based column position in the event-export layout, where
// position 0 holds GLOBALEVENTID.
type Field int

// Fields inspected by the country filter. Every other column is carried through
// untouched.
const (
	Actor1Code           Field = 5
	Actor1CountryCode    Field = 7
	Actor2Code           Field = 15
	Actor2CountryCode    Field = 17
	Actor1GeoCountryCode Field = 37
	ActionGeoCountryCode Field = 53
)

// CodeFields lists the positions compared against the target code.
var CodeFields = []Field{
	Actor1Code,
	Actor1CountryCode,
	Actor2Code,
	Actor2CountryCode,
	Actor1GeoCountryCode,
	ActionGeoCountryCode,
}

var fieldNames = map[Field]string{
	0:                    "GLOBALEVENTID",
	Actor1Code:           "Actor1Code",
	Actor1CountryCode:    "Actor1CountryCode",
	Actor2Code:           "Actor2Code",
	Actor2CountryCode:    "Actor2CountryCode",
	Actor1GeoCountryCode: "Actor1Geo_CountryCode",
	ActionGeoCountryCode: "ActionGeo_CountryCode",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "column" + strconv.Itoa(int(f))
}
