//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the engine. LUMEN_CONFIG selects the configuration file.
func (Run) Engine() error {
	mg.Deps(Build.Binary)
	args := []string{}
	if path := os.Getenv("LUMEN_CONFIG"); path != "" {
		args = append(args, "-config", path)
	}
	fmt.Println("Run engine...")
	_, err := executeCmd("bin/lumen", withArgs(args...), withStream())
	return err
}
