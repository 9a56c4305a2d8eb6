//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the testbed binary into bin/.
func (Build) Engine() error {
	if err := goTidy(); err != nil {
		return err
	}
	return goTask("build", "-o", "bin/benzin", ".").Stream().Run()
}
