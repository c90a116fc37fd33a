package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
)

// TrackingIDPrefix starts every tracking id.
const TrackingIDPrefix = "PRCL"

// trackingIDRandomBytes gives 16.7M suffixes per day. Tracking ids are labels,
// the ledger's transaction id is the uniqueness key.
const trackingIDRandomBytes = 3

var (
	now     = time.Now
	randHex = common.MakeRandHexString
)

// NewTrackingID returns a human-facing id of the form PRCL-YYYYMMDD-XXXXXX,
// dated in UTC.
func NewTrackingID() (string, error) {
	suffix, err := randHex(trackingIDRandomBytes)
	if err != nil {
		return "", fmt.Errorf("tracking id entropy: %w", err)
	}
	return formatTrackingID(now(), suffix), nil
}

func formatTrackingID(t time.Time, suffix string) string {
	return TrackingIDPrefix + "-" + t.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
}
