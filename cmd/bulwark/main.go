package main

import (
	"github.com/bulwarkecc/bulwark/cmd/bulwark/cmd"
)

func main() {
	cmd.Execute()
}
