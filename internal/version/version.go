package version

// ClientName is sent as the product token of the identification header.
const ClientName = "bcli"

// Version is overwritten at build time with -ldflags "-X buildClient/internal/version.Version=...".
var Version = "development"

// UserAgent returns the client identification header value.
func UserAgent() string {
	return ClientName + "/" + Version
}
