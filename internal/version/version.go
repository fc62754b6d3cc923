// Package version holds build metadata for sessiond.
//
// Set the variables with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/mt5-session/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/mt5-session/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/mt5-session/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/sessiond
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "<version> (<commit>) built <time>", as shown by
// sessiond --version.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
