// Package main implements login-tool, a command line client that creates
// logins, manages their PIN credentials and inspects the device stash.
package main

import "os"

// Version is set at build time
var Version = "dev"

func main() {
	os.Exit(Execute())
}
