package device

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// FeaturesHeader carries the features a client declares, e.g. "camera,nfc".
const FeaturesHeader = "X-Device-Features"

var errNoFeatures = errors.New("device: no features declared")

// HeaderChecker answers capability checks from the features a browser
// client reported about itself.
type HeaderChecker struct {
	features map[string]bool
}

// NewHeaderChecker parses the features header of r.
func NewHeaderChecker(r *http.Request) *HeaderChecker {
	features := make(map[string]bool)
	for _, f := range strings.Split(r.Header.Get(FeaturesHeader), ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			features[f] = true
		}
	}
	return &HeaderChecker{features: features}
}

// CheckNFC reports NFC support. iOS clients may declare "webkit-nfc".
func (h *HeaderChecker) CheckNFC(ctx context.Context, platform Platform) (bool, error) {
	if len(h.features) == 0 {
		return false, errNoFeatures
	}
	if h.features["nfc"] {
		return true, nil
	}
	return platform == PlatformIOS && h.features["webkit-nfc"], nil
}

// CountVideoInputs reports one camera when "camera" is declared.
func (h *HeaderChecker) CountVideoInputs(ctx context.Context) (int, error) {
	if len(h.features) == 0 {
		return 0, errNoFeatures
	}
	if h.features["camera"] {
		return 1, nil
	}
	return 0, nil
}

// ProbeRequest probes a client from its request headers.
func ProbeRequest(r *http.Request) Capabilities {
	checker := NewHeaderChecker(r)
	return Probe(r.Context(), r.UserAgent(), checker, checker)
}
