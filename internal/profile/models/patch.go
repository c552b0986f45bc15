package models

// BusinessPatch represents the fields that can be changed on a stored Business.
// Pointer types are used to allow partial updates; nil leaves the field as is.
type BusinessPatch struct {
	IsPrimary *bool `json:"isPrimary,omitempty"`

	BusinessName *string `json:"businessName,omitempty"`
	BRN          *string `json:"brn,omitempty"`
	TIN          *string `json:"tin,omitempty"`
	HasSST       *bool   `json:"hasSst,omitempty"`
	SSTNumber    *string `json:"sstNumber,omitempty"`

	AddressLine1 *string `json:"addressLine1,omitempty"`
	AddressLine2 *string `json:"addressLine2,omitempty"`
	Postcode     *string `json:"postcode,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`

	ContactName  *string `json:"contactName,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
}

// Apply returns a copy of b with the non-nil patch fields written over it.
// The ID is never changed. A patch that turns HasSST off clears the SST number.
func (p BusinessPatch) Apply(b Business) Business {
	setBool(&b.IsPrimary, p.IsPrimary)
	setString(&b.BusinessName, p.BusinessName)
	setString(&b.BRN, p.BRN)
	setString(&b.TIN, p.TIN)
	setBool(&b.HasSST, p.HasSST)
	setString(&b.SSTNumber, p.SSTNumber)
	setString(&b.AddressLine1, p.AddressLine1)
	setString(&b.AddressLine2, p.AddressLine2)
	setString(&b.Postcode, p.Postcode)
	setString(&b.City, p.City)
	setString(&b.State, p.State)
	setString(&b.ContactName, p.ContactName)
	setString(&b.ContactEmail, p.ContactEmail)
	setString(&b.ContactPhone, p.ContactPhone)
	if p.HasSST != nil && !*p.HasSST {
		b.SSTNumber = ""
	}
	return b
}

// IsEmpty reports whether the patch changes nothing.
func (p BusinessPatch) IsEmpty() bool {
	return p == BusinessPatch{}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
