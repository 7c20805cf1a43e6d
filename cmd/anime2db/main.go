// Package main is the anime2db entrypoint.
package main

import (
	"github.com/JakeFAU/falchooser/cmd"
)

func main() {
	cmd.Execute()
}
