package version

// Values are set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = ""
)

func String() string {
	if GitCommit == "" {
		return Version
	}
	return Version + "+" + GitCommit
}
