package main

import "github.com/oshokin/tzdata-packager/cmd/tzdata-builder/cmd"

func main() {
	cmd.Execute()
}
