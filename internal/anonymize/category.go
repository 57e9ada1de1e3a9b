package anonymize

import (
	"strings"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// Category identifies the kind of PII/PHI a detection belongs to.
type Category string

const (
	CategoryName                     Category = "name"
	CategoryEmail                    Category = "email"
	CategoryPhone                    Category = "phone"
	CategoryFax                      Category = "fax"
	CategorySSN                      Category = "ssn"
	CategoryMedicalRecordNumber      Category = "medical_record_number"
	CategoryDate                     Category = "date"
	CategoryGeographicLocation       Category = "geographic_location"
	CategoryIPAddress                Category = "ip_address"
	CategoryURL                      Category = "url"
	CategoryAccountNumber            Category = "account_number"
	CategoryDeviceIdentifier         Category = "device_identifier"
	CategoryVehicleIdentifier        Category = "vehicle_identifier"
	CategoryHealthPlanNumber         Category = "health_plan_number"
	CategoryCertificateLicenseNumber Category = "certificate_license_number"
	CategoryBiometricIdentifier      Category = "biometric_identifier"
	CategoryFacePhotograph           Category = "face_photograph"
	CategoryUniqueIdentifier         Category = "unique_identifier"
	CategoryOccupation               Category = "occupation"
	CategoryEducationLevel           Category = "education_level"
	CategoryMaritalStatus            Category = "marital_status"
	CategoryEthnicity                Category = "ethnicity"
	CategoryAge                      Category = "age"
	CategoryGender                   Category = "gender"
)

// labels mirrors the bracketed markers a redaction strategy emits, e.g.
// "[PERSON]" for a name, "[EMAIL]" for an email address.
var labels = map[Category]string{
	CategoryName:                     "PERSON",
	CategoryEmail:                    "EMAIL",
	CategoryPhone:                    "PHONE",
	CategoryFax:                      "FAX",
	CategorySSN:                      "SSN",
	CategoryMedicalRecordNumber:      "MRN",
	CategoryDate:                     "DATE",
	CategoryGeographicLocation:       "LOCATION",
	CategoryIPAddress:                "IP_ADDRESS",
	CategoryURL:                      "URL",
	CategoryAccountNumber:            "ACCOUNT_NUMBER",
	CategoryDeviceIdentifier:         "DEVICE_ID",
	CategoryVehicleIdentifier:        "VEHICLE_ID",
	CategoryHealthPlanNumber:         "HEALTH_PLAN",
	CategoryCertificateLicenseNumber: "LICENSE",
	CategoryBiometricIdentifier:      "BIOMETRIC",
	CategoryFacePhotograph:           "PHOTO",
	CategoryUniqueIdentifier:         "IDENTIFIER",
	CategoryOccupation:               "OCCUPATION",
	CategoryEducationLevel:           "EDUCATION",
	CategoryMaritalStatus:            "MARITAL_STATUS",
	CategoryEthnicity:                "ETHNICITY",
	CategoryAge:                      "AGE",
	CategoryGender:                   "GENDER",
}

// Label returns the bracketed marker name for a category, e.g. "PERSON".
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return strings.ToUpper(string(c))
}

// ParseCategory maps a pattern library's category string (case-insensitive,
// with a handful of recognised aliases) to a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NAME":
		return CategoryName, nil
	case "EMAIL":
		return CategoryEmail, nil
	case "PHONE":
		return CategoryPhone, nil
	case "FAX":
		return CategoryFax, nil
	case "SSN":
		return CategorySSN, nil
	case "MEDICAL_RECORD_NUMBER", "MRN":
		return CategoryMedicalRecordNumber, nil
	case "DATE":
		return CategoryDate, nil
	case "GEOGRAPHIC_LOCATION", "LOCATION":
		return CategoryGeographicLocation, nil
	case "IP_ADDRESS":
		return CategoryIPAddress, nil
	case "URL":
		return CategoryURL, nil
	case "ACCOUNT_NUMBER", "ACCOUNT":
		return CategoryAccountNumber, nil
	case "DEVICE_IDENTIFIER", "DEVICE":
		return CategoryDeviceIdentifier, nil
	case "VEHICLE_IDENTIFIER", "VEHICLE":
		return CategoryVehicleIdentifier, nil
	case "HEALTH_PLAN_NUMBER", "HEALTH_PLAN":
		return CategoryHealthPlanNumber, nil
	case "CERTIFICATE_LICENSE_NUMBER", "LICENSE":
		return CategoryCertificateLicenseNumber, nil
	case "BIOMETRIC_IDENTIFIER", "BIOMETRIC":
		return CategoryBiometricIdentifier, nil
	case "FACE_PHOTOGRAPH", "PHOTO":
		return CategoryFacePhotograph, nil
	case "UNIQUE_IDENTIFIER", "IDENTIFIER":
		return CategoryUniqueIdentifier, nil
	case "OCCUPATION":
		return CategoryOccupation, nil
	case "EDUCATION_LEVEL", "EDUCATION":
		return CategoryEducationLevel, nil
	case "MARITAL_STATUS":
		return CategoryMaritalStatus, nil
	case "ETHNICITY":
		return CategoryEthnicity, nil
	case "AGE":
		return CategoryAge, nil
	case "GENDER":
		return CategoryGender, nil
	default:
		return "", atlaserrors.New(atlaserrors.Configuration, "unknown PII category %q", s)
	}
}

// hipaaIdentifiers are the 18 HIPAA Safe Harbor identifier categories.
func hipaaIdentifiers() map[Category]bool {
	return map[Category]bool{
		CategoryName:                     true,
		CategoryGeographicLocation:       true,
		CategoryDate:                     true,
		CategoryPhone:                    true,
		CategoryFax:                      true,
		CategoryEmail:                    true,
		CategorySSN:                      true,
		CategoryMedicalRecordNumber:      true,
		CategoryHealthPlanNumber:         true,
		CategoryAccountNumber:            true,
		CategoryCertificateLicenseNumber: true,
		CategoryVehicleIdentifier:        true,
		CategoryDeviceIdentifier:         true,
		CategoryURL:                      true,
		CategoryIPAddress:                true,
		CategoryBiometricIdentifier:      true,
		CategoryFacePhotograph:           true,
		CategoryUniqueIdentifier:         true,
	}
}

// gdprQuasiIdentifiers extends the HIPAA set with GDPR quasi-identifiers.
func gdprQuasiIdentifiers() map[Category]bool {
	return map[Category]bool{
		CategoryOccupation:     true,
		CategoryEducationLevel: true,
		CategoryMaritalStatus:  true,
		CategoryEthnicity:      true,
		CategoryAge:            true,
		CategoryGender:         true,
	}
}

// ComplianceMode selects which PII categories are in scope for detection.
type ComplianceMode string

const (
	ModeGDPR            ComplianceMode = "gdpr"
	ModeHIPAASafeHarbor ComplianceMode = "hipaa_safe_harbor"
)

// ParseComplianceMode maps a config string to a ComplianceMode.
func ParseComplianceMode(s string) (ComplianceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gdpr":
		return ModeGDPR, nil
	case "hipaa_safe_harbor", "hipaa":
		return ModeHIPAASafeHarbor, nil
	default:
		return "", atlaserrors.New(atlaserrors.Configuration, "unknown anonymization compliance mode %q", s)
	}
}

// InScope reports whether a category should be detected under this mode:
// HIPAA Safe Harbor covers its 18 identifiers, GDPR covers those plus the
// quasi-identifiers.
func (m ComplianceMode) InScope(c Category) bool {
	if hipaaIdentifiers()[c] {
		return true
	}
	if m == ModeGDPR {
		return gdprQuasiIdentifiers()[c]
	}
	return false
}
