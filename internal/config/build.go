package config

// Linker-injected build metadata. Set at compile time via -ldflags,
// for example:
//
//	go build -ldflags "-X yardlink/internal/config.version=1.2.3 \
//	    -X yardlink/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X yardlink/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected values.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
