// Package common contains shared constants, the error taxonomy and small
// helpers used across scholarstream components.
package common

// AuthorizationHeaderName carries the bearer credential on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// Checkout session metadata keys. They are written at session creation and
// echoed back by the processor on retrieval.
const (
	MetadataApplicationID   = "applicationId"
	MetadataScholarshipID   = "scholarshipId"
	MetadataScholarshipName = "scholarshipName"
	MetadataUniversityName  = "universityName"
)
