package usecase

import "fmt"

// DocumentType identifies what kind of KYC document was uploaded.
type DocumentType string

const (
	DocumentNationalID     DocumentType = "national_id"
	DocumentPassport       DocumentType = "passport"
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentTitleDeed      DocumentType = "title_deed"
	DocumentUtilityBill    DocumentType = "utility_bill"
)

var documentTypes = map[DocumentType]bool{
	DocumentNationalID:     true,
	DocumentPassport:       true,
	DocumentDriversLicense: true,
	DocumentTitleDeed:      false,
	DocumentUtilityBill:    false,
}

// ParseDocumentType validates a client-supplied document type.
func ParseDocumentType(raw string) (DocumentType, error) {
	dt := DocumentType(raw)
	if _, ok := documentTypes[dt]; !ok {
		return "", fmt.Errorf("unsupported document type %q", raw)
	}
	return dt, nil
}

// HasPortrait reports whether the document is expected to carry a photo of
// its holder.
func (d DocumentType) HasPortrait() bool {
	return documentTypes[d]
}
