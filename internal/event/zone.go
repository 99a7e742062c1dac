package event

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	zoneMu    sync.RWMutex
	localZone string
)

// LocalZoneName returns the IANA name of the host zone. It is detected once
// unless set with SetLocalZone.
func LocalZoneName() string {
	zoneMu.RLock()
	name := localZone
	zoneMu.RUnlock()
	if name != "" {
		return name
	}

	zoneMu.Lock()
	defer zoneMu.Unlock()
	if localZone == "" {
		localZone = detectLocalZone()
	}
	return localZone
}

// SetLocalZone overrides the detected host zone.
func SetLocalZone(name string) error {
	if _, err := time.LoadLocation(name); err != nil || name == "" || name == "Local" {
		return fmt.Errorf("%q is not a known time zone identifier", name)
	}
	zoneMu.Lock()
	localZone = name
	zoneMu.Unlock()
	return nil
}

func detectLocalZone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			name := target[i+len("zoneinfo/"):]
			if _, err := time.LoadLocation(name); err == nil {
				return name
			}
		}
	}
	if b, err := os.ReadFile("/etc/timezone"); err == nil {
		name := strings.TrimSpace(string(b))
		if _, err := time.LoadLocation(name); err == nil && name != "" {
			return name
		}
	}
	return "UTC"
}

// zoneName is the identifier to store for t's location.
func zoneName(t time.Time) string {
	name := t.Location().String()
	if name == "Local" || name == "" {
		return LocalZoneName()
	}
	return name
}
