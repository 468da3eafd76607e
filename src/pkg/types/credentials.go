// Package types defines the core data model for the Mixpanel analytics client.
package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Region selects which of the Provider's regional deployments a Credentials
// bundle talks to.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
	RegionIN Region = "IN"
)

var regionBaseURLs = map[Region]string{
	RegionUS: "https://mixpanel.com/api",
	RegionEU: "https://eu.mixpanel.com/api",
	RegionIN: "https://in.mixpanel.com/api",
}

var regionExportBaseURLs = map[Region]string{
	RegionUS: "https://data.mixpanel.com/api",
	RegionEU: "https://data-eu.mixpanel.com/api",
	RegionIN: "https://data-in.mixpanel.com/api",
}

// BaseURL returns the query/API base URL for a region. Total over the
// Region enumeration; an unrecognized region falls back to US.
func (r Region) BaseURL() string {
	if u, ok := regionBaseURLs[r]; ok {
		return u
	}
	return regionBaseURLs[RegionUS]
}

// ExportBaseURL returns the bulk-export base URL for a region.
func (r Region) ExportBaseURL() string {
	if u, ok := regionExportBaseURLs[r]; ok {
		return u
	}
	return regionExportBaseURLs[RegionUS]
}

var validate = validator.New()

// Credentials is an immutable bundle of authentication material. The secret
// must never appear in logs, displays, or serializations; String, GoString,
// and MarshalJSON all substitute a fixed placeholder.
type Credentials struct {
	account string `validate:"-"`
	secret  string `validate:"-"`
	project string `validate:"-"`
	region  Region `validate:"-"`
}

// credentialFields mirrors Credentials for validator struct-tag checks,
// since validator needs exported fields to walk.
type credentialFields struct {
	Account string `validate:"required"`
	Secret  string `validate:"required"`
	Project string `validate:"required"`
	Region  Region `validate:"required,oneof=US EU IN"`
}

const redactedPlaceholder = "<redacted>"

// NewCredentials validates and constructs an immutable Credentials bundle.
func NewCredentials(account, secret, project string, region Region) (Credentials, error) {
	fields := credentialFields{Account: account, Secret: secret, Project: project, Region: region}
	if err := validate.Struct(fields); err != nil {
		return Credentials{}, fmt.Errorf("invalid credentials: %w", err)
	}
	return Credentials{account: account, secret: secret, project: project, region: region}, nil
}

func (c Credentials) Account() string { return c.account }
func (c Credentials) Secret() string  { return c.secret }
func (c Credentials) Project() string { return c.project }
func (c Credentials) Region() Region  { return c.region }

// String renders a redacted, human-readable form. Never includes the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{account: %q, secret: %q, project: %q, region: %q}",
		c.account, redactedPlaceholder, c.project, c.region)
}

// GoString mirrors String for %#v formatting, so accidental fmt.Sprintf("%#v", creds)
// calls cannot leak the secret either.
func (c Credentials) GoString() string { return c.String() }

// MarshalJSON renders the redacted form for any accidental JSON encoding.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(
		`{"account":%q,"secret":%q,"project":%q,"region":%q}`,
		c.account, redactedPlaceholder, c.project, c.region,
	)), nil
}
