package metadata

import (
	"context"

	"github.com/mssola/useragent"
)

// Device is the parsed form of a User-Agent header.
type Device struct {
	Browser string
	OS      string
	Bot     bool
	Mobile  bool
}

// ParseDevice parses a raw User-Agent. Unknown agents yield the raw product
// name as Browser and an empty OS.
func ParseDevice(raw string) Device {
	if raw == "" {
		return Device{}
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	return Device{
		Browser: browser,
		OS:      ua.OS(),
		Bot:     ua.Bot(),
		Mobile:  ua.Mobile(),
	}
}

// DeviceFromContext parses the User-Agent stored by ClientMetadata.
func DeviceFromContext(ctx context.Context) Device {
	return ParseDevice(UserAgent(ctx))
}
