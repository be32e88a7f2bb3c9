package main

import "github.com/oshokin/driver-guard/cmd/detector-replay/cmd"

func main() {
	cmd.Execute()
}
