//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

// task is one external command run by a mage target.
type task struct {
	name   string
	args   []string
	env    []string
	stream bool
}

func goTask(args ...string) *task {
	return &task{name: "go", args: args}
}

// Env adds KEY=VALUE pairs on top of the current environment.
func (t *task) Env(kv ...string) *task {
	t.env = append(t.env, kv...)
	return t
}

// Stream echoes output while the command runs instead of only on failure.
func (t *task) Stream() *task {
	t.stream = true
	return t
}

func (t *task) Run() error {
	fmt.Printf("Executing: %s %s\n", t.name, strings.Join(t.args, " "))
	cmd := exec.Command(t.name, t.args...)
	if len(t.env) > 0 {
		cmd.Env = append(os.Environ(), t.env...)
	}

	stream := mg.Verbose() || t.stream
	var out bytes.Buffer
	if stream {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}
	if err := cmd.Run(); err != nil {
		if !stream {
			fmt.Println("... failed command output:")
			fmt.Println(out.String())
		}
		return fmt.Errorf("%s %s: %w", t.name, strings.Join(t.args, " "), err)
	}
	return nil
}

func goTidy() error {
	if err := goTask("mod", "tidy").Run(); err != nil {
		return fmt.Errorf("failed to tidy the module: %w", err)
	}
	return nil
}
