//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector, which needs cgo.
func (Test) All() error {
	return goTask("test", "-race", "-count=1", "./...").Env("CGO_ENABLED=1").Stream().Run()
}

// Runs the GPU core tests only. They need neither a window nor a driver.
func (Test) Core() error {
	return goTask("test", "-count=1",
		"./engine/core/...", "./engine/containers/...",
		"./engine/renderer/gpu/...", "./engine/renderer/headless/...").Stream().Run()
}
