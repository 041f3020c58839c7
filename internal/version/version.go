package version

// Version is the current ytgrab release. Overridden at build time with
// -ldflags "-X github.com/renkel/ytgrab/internal/version.Version=..."
var Version = "0.3.1"
