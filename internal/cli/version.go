package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Release metadata, stamped by the release build:
//
//	-ldflags "-X github.com/lazypower/memkeeper/internal/cli.Version=v1.2.0 ..."
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	Modified  bool
	GoVersion string
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// CurrentBuild merges the ldflags stamp with what the Go toolchain recorded.
// Stamped values win; a plain `go install` still reports its module
// version and VCS revision.
func CurrentBuild() BuildInfo {
	b := BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	info, ok := readBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit trims the revision to the usual 12 characters.
func (b BuildInfo) ShortCommit() string {
	c := b.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if c != "" && b.Modified {
		c += "-dirty"
	}
	return c
}

// String is the form reported by /api/health and the serve log line.
func (b BuildInfo) String() string {
	if c := b.ShortCommit(); c != "" {
		return b.Version + " (" + c + ")"
	}
	return b.Version
}

func (b BuildInfo) write(w io.Writer) {
	fmt.Fprintf(w, "memkeeper %s\n", b.Version)
	if c := b.ShortCommit(); c != "" {
		fmt.Fprintf(w, "  commit: %s\n", c)
	}
	if b.BuildDate != "" {
		fmt.Fprintf(w, "  built:  %s\n", b.BuildDate)
	}
	fmt.Fprintf(w, "  go:     %s\n", b.GoVersion)
}

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		b := CurrentBuild()
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), b.Version)
			return
		}
		b.write(cmd.OutOrStdout())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version")
}

// VersionString is CurrentBuild().String().
func VersionString() string {
	return CurrentBuild().String()
}
