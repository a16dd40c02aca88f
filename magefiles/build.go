//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Downloads the modules and builds the lumen binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withStream())
	return err
}

// Runs the test suite. The renderer core is tested against a fake device, so
// no GPU is needed.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./engine/..."), withStream())
	return err
}
