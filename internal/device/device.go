// Package device detects the platform and scanning hardware of a client.
package device

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"propscan-api/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Platform is the client operating system family.
type Platform string

const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
	PlatformUnknown Platform = "unknown"
)

// Capabilities is a snapshot of what a client can scan with. It is
// recomputed per request and never persisted.
type Capabilities struct {
	Platform  Platform `json:"platform"`
	HasCamera bool     `json:"hasCamera"`
	HasNFC    bool     `json:"hasNFC"`
	Model     string   `json:"model,omitempty"`
}

// NFCChecker reports whether an NFC reader can be constructed and started.
// Starting a reader may trigger a native permission prompt; that is
// accepted and not treated as an error.
type NFCChecker interface {
	CheckNFC(ctx context.Context, platform Platform) (bool, error)
}

// CameraChecker enumerates video input devices.
type CameraChecker interface {
	CountVideoInputs(ctx context.Context) (int, error)
}

var (
	iosPattern     = regexp.MustCompile(`iphone|ipad|ipod`)
	androidPattern = regexp.MustCompile(`android`)
	iosModel       = regexp.MustCompile(`iphone\s*(?:os\s*)?(\d+)`)
	androidModel   = regexp.MustCompile(`android\s*(\d+)`)
)

// DetectPlatform classifies a user agent string.
func DetectPlatform(userAgent string) (Platform, string) {
	ua := strings.ToLower(userAgent)

	switch {
	case iosPattern.MatchString(ua):
		if m := iosModel.FindStringSubmatch(ua); m != nil {
			return PlatformIOS, "iPhone " + m[1]
		}
		return PlatformIOS, ""
	case androidPattern.MatchString(ua):
		if m := androidModel.FindStringSubmatch(ua); m != nil {
			return PlatformAndroid, "Android " + m[1]
		}
		return PlatformAndroid, ""
	default:
		return PlatformUnknown, ""
	}
}

// Probe builds the capability snapshot. The NFC and camera checks run
// concurrently and each fails closed: any error means the capability is
// absent. Nil checkers are treated as absent hardware.
func Probe(ctx context.Context, userAgent string, nfc NFCChecker, camera CameraChecker) Capabilities {
	platform, model := DetectPlatform(userAgent)
	caps := Capabilities{Platform: platform, Model: model}
	log := logger.WithComponent("DeviceProbe")

	var g errgroup.Group
	g.Go(func() error {
		if nfc == nil {
			return nil
		}
		ok, err := failClosed(func() (bool, error) { return nfc.CheckNFC(ctx, platform) })
		if err != nil {
			log.Debug().Err(err).Msg("NFC check failed")
			return nil
		}
		caps.HasNFC = ok
		return nil
	})
	g.Go(func() error {
		if camera == nil {
			return nil
		}
		ok, err := failClosed(func() (bool, error) {
			n, err := camera.CountVideoInputs(ctx)
			return n > 0, err
		})
		if err != nil {
			log.Debug().Err(err).Msg("camera check failed")
			return nil
		}
		caps.HasCamera = ok
		return nil
	})
	_ = g.Wait()

	return caps
}

// failClosed runs check, turning a panic into an error.
func failClosed(check func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("checker panicked: %v", r)
		}
	}()
	return check()
}
