//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

const shadersDir = "assets/shaders"

// GLSL sources compiled to SPIR-V next to themselves, as <source>.spv.
var shaderSources = []string{
	"castle.vert",
	"castle.frag",
	"shapes.vert",
	"shapes_root.vert",
	"shapes.frag",
}

type Build mg.Namespace

// Compiles the GLSL shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	for _, src := range shaderSources {
		if _, err := executeCmd("glslc", withArgs(src, "-o", src+".spv"), withDir(shadersDir), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the castle binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/castle", "."), withStream())
	return err
}

// Tidies the module and regenerates generated code.
func (Build) Deps() error {
	return goTidy()
}
