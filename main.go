package main

import "release-sync/cmd"

func main() {
	cmd.Execute()
}
