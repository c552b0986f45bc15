// Package models defines the core domain models for the business profile store.
// It includes the Business record, the form data used to produce one,
// partial patches and the plain-text renderings used for copy and export.
package models

// Business is one stored business identity profile.
// It is a plain value: copying a Business never shares state with the store.
type Business struct {
	// ID is the opaque unique identifier, immutable once assigned.
	ID string `json:"id"`
	// IsPrimary marks the default business for autofill. At most one record is primary.
	IsPrimary bool `json:"isPrimary"`

	// BusinessName is the registered trading name.
	BusinessName string `json:"businessName"`
	// BRN is the business registration number.
	BRN string `json:"brn"`
	// TIN is the tax identification number.
	TIN string `json:"tin"`
	// HasSST indicates whether the business is registered for sales and service tax.
	HasSST bool `json:"hasSst"`
	// SSTNumber is expected only when HasSST is true.
	SSTNumber string `json:"sstNumber,omitempty"`

	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	Postcode     string `json:"postcode"`
	City         string `json:"city"`
	State        string `json:"state"`

	// ContactName is the contact person for the business.
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
}

// IndexOf returns the position of the record with the given id, or -1.
func IndexOf(businesses []Business, id string) int {
	for i := range businesses {
		if businesses[i].ID == id {
			return i
		}
	}
	return -1
}

// Primary returns the primary record, if any.
func Primary(businesses []Business) (Business, bool) {
	for _, b := range businesses {
		if b.IsPrimary {
			return b, true
		}
	}
	return Business{}, false
}
