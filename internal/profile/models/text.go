package models

import (
	"strings"
)

const exportSeparator = "-------------------"

// CopyText renders a business as the multi-line block used by "copy all".
func CopyText(b Business) string {
	lines := []string{
		"Business Name: " + b.BusinessName,
		"BRN: " + b.BRN,
		"TIN: " + b.TIN,
	}
	if b.SSTNumber != "" {
		lines = append(lines, "SST: "+b.SSTNumber)
	}
	lines = append(lines,
		"Address: "+FormatAddress(b),
		"Email: "+b.ContactEmail,
		"Phone: "+b.ContactPhone,
	)
	return strings.Join(lines, "\n")
}

// FormatAddress joins the non-empty address parts with ", ".
func FormatAddress(b Business) string {
	parts := []string{
		b.AddressLine1,
		b.AddressLine2,
		strings.TrimSpace(b.Postcode + " " + b.City),
		b.State,
	}
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// ExportText renders the short name/BRN listing used by the text export.
func ExportText(businesses []Business) string {
	entries := make([]string, 0, len(businesses))
	for _, b := range businesses {
		entries = append(entries, "Business: "+b.BusinessName+"\nBRN: "+b.BRN+"\n"+exportSeparator)
	}
	return strings.Join(entries, "\n")
}
