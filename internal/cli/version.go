package cli

// Version is the coachdb release, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/coachdb/internal/cli.Version=...".
var Version = "0.3.0"

// ModulePath is the Go module path reported by the version command.
const ModulePath = "github.com/mesh-intelligence/coachdb"
