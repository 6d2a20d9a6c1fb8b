//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the lit castle in animated water.
func (Run) Castle() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run castle...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "castle.toml"), withStream())
	return err
}

// Runs the castle made of coloured shapes. Hold 1 for wireframe.
func (Run) Shapes() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run shapes...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "shapes.yaml"), withStream())
	return err
}

// Renders a few hundred castle frames on the headless backend, no GPU or window needed.
func (Run) Headless() error {
	fmt.Println("Run headless castle...")
	_, err := executeCmd("go", withArgs("run", ".", "-backend", "headless", "-frames", "300"), withStream())
	return err
}

// Runs the unit tests.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}
