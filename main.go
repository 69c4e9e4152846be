package main

import "github.com/frahmantamala/tenant-identity/cmd"

func main() {
	cmd.Execute()
}
