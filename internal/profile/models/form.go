package models

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"

	e "github.com/gartstein/bizprofile/internal/profile/errors"
)

// MalaysianStates lists the accepted values for Business.State.
var MalaysianStates = []string{
	"Johor",
	"Kedah",
	"Kelantan",
	"Melaka",
	"Negeri Sembilan",
	"Pahang",
	"Penang",
	"Perak",
	"Perlis",
	"Sabah",
	"Sarawak",
	"Selangor",
	"Terengganu",
	"W.P. Kuala Lumpur",
	"W.P. Labuan",
	"W.P. Putrajaya",
}

// FormData is the input collected by the add and edit forms.
// Unlike Business it carries no identity and no primary flag.
type FormData struct {
	BusinessName string `json:"businessName"`
	BRN          string `json:"brn"`
	TIN          string `json:"tin"`
	HasSST       bool   `json:"hasSst"`
	SSTNumber    string `json:"sstNumber"`

	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	Postcode     string `json:"postcode"`
	City         string `json:"city"`
	State        string `json:"state"`

	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
}

// Validate checks required fields, the SST pairing, the state list and the
// contact email. All problems are reported in a single ErrInvalidInput error.
func (f FormData) Validate() error {
	var problems []string

	required := []struct {
		name  string
		value string
	}{
		{"businessName", f.BusinessName},
		{"brn", f.BRN},
		{"tin", f.TIN},
		{"addressLine1", f.AddressLine1},
		{"postcode", f.Postcode},
		{"city", f.City},
		{"state", f.State},
		{"contactName", f.ContactName},
		{"contactEmail", f.ContactEmail},
		{"contactPhone", f.ContactPhone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.name+" is required")
		}
	}

	if f.HasSST && strings.TrimSpace(f.SSTNumber) == "" {
		problems = append(problems, "sstNumber is required when hasSst is set")
	}
	if s := strings.TrimSpace(f.State); s != "" && !slices.Contains(MalaysianStates, s) {
		problems = append(problems, fmt.Sprintf("unknown state %q", s))
	}
	if em := strings.TrimSpace(f.ContactEmail); em != "" {
		if _, err := mail.ParseAddress(em); err != nil {
			problems = append(problems, "contactEmail is not a valid address")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", e.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// ToBusiness builds a Business from the form. Fields are trimmed and the SST
// number is dropped unless HasSST is set.
func (f FormData) ToBusiness(id string, primary bool) Business {
	b := Business{
		ID:           id,
		IsPrimary:    primary,
		BusinessName: strings.TrimSpace(f.BusinessName),
		BRN:          strings.TrimSpace(f.BRN),
		TIN:          strings.TrimSpace(f.TIN),
		HasSST:       f.HasSST,
		AddressLine1: strings.TrimSpace(f.AddressLine1),
		AddressLine2: strings.TrimSpace(f.AddressLine2),
		Postcode:     strings.TrimSpace(f.Postcode),
		City:         strings.TrimSpace(f.City),
		State:        strings.TrimSpace(f.State),
		ContactName:  strings.TrimSpace(f.ContactName),
		ContactEmail: strings.TrimSpace(f.ContactEmail),
		ContactPhone: strings.TrimSpace(f.ContactPhone),
	}
	if f.HasSST {
		b.SSTNumber = strings.TrimSpace(f.SSTNumber)
	}
	return b
}

// FormFromBusiness fills a form from a stored record, as the edit screen does.
func FormFromBusiness(b Business) FormData {
	return FormData{
		BusinessName: b.BusinessName,
		BRN:          b.BRN,
		TIN:          b.TIN,
		HasSST:       b.HasSST,
		SSTNumber:    b.SSTNumber,
		AddressLine1: b.AddressLine1,
		AddressLine2: b.AddressLine2,
		Postcode:     b.Postcode,
		City:         b.City,
		State:        b.State,
		ContactName:  b.ContactName,
		ContactEmail: b.ContactEmail,
		ContactPhone: b.ContactPhone,
	}
}
