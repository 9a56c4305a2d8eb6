//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with engine.toml.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	return goTask("run", ".", "-config", "engine.toml").Stream().Run()
}

// Runs a fixed number of headless frames, useful as a smoke test.
func (Run) Headless() error {
	mg.Deps(Build.Engine)
	bin := &task{name: "bin/benzin", args: []string{"-config", "engine.toml", "-frames", "600"}}
	return bin.Stream().Run()
}
