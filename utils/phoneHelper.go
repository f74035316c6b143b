package utils

import (
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

const defaultPhoneRegion = "IN"

// DefaultPhoneRegion is the region used to parse national-format numbers.
// Override with DEFAULT_PHONE_REGION for deployments outside India.
func DefaultPhoneRegion() string {
	region := strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION"))
	if region == "" {
		return defaultPhoneRegion
	}
	return strings.ToUpper(region)
}

// NormalizePhoneNumber parses a raw phone number against the region and
// returns it in E.164 form so the same customer never syncs under two
// spellings of one number.
func NormalizePhoneNumber(phoneNumber string, region string) (string, error) {
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return "", NewValidationError("customer_mobile", "phone number is not parseable")
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", NewValidationError("customer_mobile", "phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
