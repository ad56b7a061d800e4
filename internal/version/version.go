package version

// Version is overridden at build time with
// -ldflags "-X github.com/bnema/imsim/internal/version.Version=<tag>".
var Version = "dev"
