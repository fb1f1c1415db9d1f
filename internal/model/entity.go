package model

import "strings"

// Source identifies which registry export a record came from.
type Source string

const (
	SourceHovedenhet Source = "hovedenhet"
	SourceUnderenhet Source = "underenhet"
)

// Contact is one named contact person slot on an entity. The columns are
// emitted blank and filled in later by hand during outreach.
type Contact struct {
	Name  string `csv:"navn"`
	Role  string `csv:"rolle"`
	Phone string `csv:"telefon"`
	Email string `csv:"epost"`
}

// Entity is a single business unit from the national registry. One struct
// covers both pipeline stages: the filter stage populates the registry and
// coordinate fields, the enrich stage fills contact data and the score.
// Optional fields stay empty until their stage runs.
type Entity struct {
	OrgNumber    string   `csv:"organisasjonsnummer"`
	Name         string   `csv:"navn"`
	Employees    int      `csv:"antall_ansatte"`
	Address      string   `csv:"adresse"`
	PostalCode   string   `csv:"postnummer"`
	City         string   `csv:"poststed"`
	IndustryCode string   `csv:"naeringskode"`
	IndustryText string   `csv:"naeringskode_beskrivelse"`
	Source       Source   `csv:"kilde"`
	Latitude     *float64 `csv:"latitude"`
	Longitude    *float64 `csv:"longitude"`

	Website  string `csv:"hjemmeside"`
	Email    string `csv:"epostadresse"`
	Phone    string `csv:"telefon"`
	Mobile   string `csv:"mobil"`
	ProffURL string `csv:"proff_url"`

	PotentialScore *int   `csv:"potensial_score"`
	SalesNotes     string `csv:"salgsnotater"`

	Contact  Contact `csv:"kontakt_,inline"`
	Contact2 Contact `csv:"kontakt2_,inline"`
	Contact3 Contact `csv:"kontakt3_,inline"`
	Contact4 Contact `csv:"kontakt4_,inline"`

	GeneralEmail string `csv:"epost_generell"`

	// Municipality number sharpens geocode lookups but is not an output column.
	Municipality string `csv:"-"`
}

// FullAddress composes the street, postal code and city into the single
// address string used for geocoding and deduplication.
func (e *Entity) FullAddress() string {
	loc := strings.TrimSpace(e.PostalCode + " " + e.City)
	if e.Address == "" {
		return loc
	}
	if loc == "" {
		return e.Address
	}
	return e.Address + ", " + loc
}

// NormalizedAddress lowercases and collapses whitespace in the full address.
// Entities sharing a normalized address are treated as one sales target.
func (e *Entity) NormalizedAddress() string {
	return strings.ToLower(strings.Join(strings.Fields(e.FullAddress()), " "))
}

// HasCoordinates reports whether geocoding populated both coordinates.
func (e *Entity) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// HasAnyPhone reports whether either phone field is set.
func (e *Entity) HasAnyPhone() bool {
	return e.Phone != "" || e.Mobile != ""
}
