// Package version reports the build version of the running binary.
//
//	go build -ldflags "-X github.com/mintel/lpipe/version.Version=1.2.0"
package version
