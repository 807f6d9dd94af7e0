package main

import "github.com/oshokin/tzdata-packager/cmd/tzdata-fetcher/cmd"

func main() {
	cmd.Execute()
}
