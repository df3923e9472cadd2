package peer

import (
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

var (
	bannerOnce sync.Once
	banner     string
)

// OSBanner returns the value sent in OS headers, e.g. "linux-ubuntu-22.04-x86_64"
func OSBanner() string {
	bannerOnce.Do(func() {
		banner = runtime.GOOS + "-" + runtime.GOARCH
		info, err := host.Info()
		if err != nil {
			return
		}
		parts := []string{}
		for _, p := range []string{info.OS, info.Platform, info.PlatformVersion, info.KernelArch} {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, strings.ReplaceAll(p, " ", "_"))
			}
		}
		if len(parts) > 0 {
			banner = strings.Join(parts, "-")
		}
	})
	return banner
}
