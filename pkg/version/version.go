package version

// Version is overridden at build time with -ldflags "-X geoquiz/pkg/version.Version=...".
var Version = "v0.3.1"
