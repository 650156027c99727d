package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/roach88/roulette/internal/cli.Version=...".
var Version = ""

type versionInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"go_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the roulette version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Name: "roulette", Version: buildVersion(), Revision: vcsRevision(), GoVersion: runtime.Version()}
			return rootOpts.formatter(cmd).Success(info, func(w io.Writer) {
				if info.Revision != "" {
					fmt.Fprintf(w, "%s %s (%s, %s)\n", info.Name, info.Version, info.Revision, info.GoVersion)
					return
				}
				fmt.Fprintf(w, "%s %s (%s)\n", info.Name, info.Version, info.GoVersion)
			})
		},
	}
}

func buildVersion() string {
	if Version != "" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}

// vcsRevision returns the short commit hash stamped by the go tool, with a
// "-dirty" suffix for modified trees.
func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev, dirty string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return ""
	}
	return rev[:min(len(rev), 12)] + dirty
}
