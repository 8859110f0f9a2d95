package utils // import "github.com/shellboxhq/shellbox/utils"

// This block contains some variables for directories we use in the console
// service. They're used in a lot of packages, so we put them in the least
// common denominator --- this package.

var (
	// Path to the "/var/lib/shellbox" directory. Set as a variable instead of
	// a constant because its value might change if we are using ephemeral
	// storage.
	ShellboxDir string = "/var/lib/shellbox/"
	TempDir     string = ShellboxDir + "temp/"

	// ShellboxPrivateDir gets its own root path so that we avoid leaking our
	// TLS certificates to console users even if they escape container access
	// and can read the entire shellbox directory.
	ShellboxPrivateDir string = "/var/lib/shellboxprivate/"
)
