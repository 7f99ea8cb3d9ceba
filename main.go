package main

import "github.com/cockroachdb/recon/cmd"

func main() {
	cmd.Execute()
}
