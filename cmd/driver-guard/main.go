package main

import "github.com/oshokin/driver-guard/cmd/driver-guard/cmd"

func main() {
	cmd.Execute()
}
