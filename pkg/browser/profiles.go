package browser

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const DefaultMobileDevice = "iPhone 13"

// Profile selects the viewport a session is created with. An empty Device
// means the engine's default desktop viewport.
type Profile struct {
	Name   string `json:"name" yaml:"name"`
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
}

func Desktop() Profile {
	return Profile{Name: "desktop"}
}

func Mobile(device string) Profile {
	return Profile{Name: "mobile", Device: lo.If(device != "", device).Else(DefaultMobileDevice)}
}

func (p Profile) IsDesktop() bool {
	return p.Device == ""
}

// DeviceMetrics is the emulation data engines without a built-in device
// registry apply to a page.
type DeviceMetrics struct {
	Width        int
	Height       int
	ScreenWidth  int
	ScreenHeight int
	ScaleFactor  float64
	Mobile       bool
	Touch        bool
	UserAgent    string
}

// values match Playwright's device descriptors
var knownDevices = map[string]DeviceMetrics{
	"iPhone 13": {
		Width:        390,
		Height:       664,
		ScreenWidth:  390,
		ScreenHeight: 844,
		ScaleFactor:  3,
		Mobile:       true,
		Touch:        true,
		UserAgent:    "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
	},
	"Pixel 5": {
		Width:        393,
		Height:       727,
		ScreenWidth:  393,
		ScreenHeight: 851,
		ScaleFactor:  2.75,
		Mobile:       true,
		Touch:        true,
		UserAgent:    "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.28 Mobile Safari/537.36",
	},
}

func LookupDevice(name string) (DeviceMetrics, error) {
	m, ok := knownDevices[name]
	if !ok {
		return DeviceMetrics{}, errors.Errorf("unknown device %q, known devices: %v", name, KnownDevices())
	}
	return m, nil
}

func KnownDevices() []string {
	names := lo.Keys(knownDevices)
	sort.Strings(names)
	return names
}
