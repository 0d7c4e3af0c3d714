package msigproxy

import "fmt"

// Maj is the major version number, updated on breaking releases.
const Maj = 0

// Min is the minor version number.
const Min = 3

// Fix is the patch number.
const Fix = 0

// Suffix marks a build that is not a tagged release, for example -dev.
const Suffix = "-dev"

var version = fmt.Sprintf("v%d.%d.%d%s", Maj, Min, Fix, Suffix)

// GitCommit is set by build flags:
//
//	go build -ldflags "-X github.com/iov-one/msigproxy.GitCommit=$(git rev-parse --short HEAD)"
var GitCommit = ""

// Version returns the release, followed by the commit it was built from
// when known.
func Version() string {
	if GitCommit == "" {
		return version
	}
	return version + " " + GitCommit
}
