//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the engine shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	if _, err := executeCmd("glslc", withArgs("assets/shaders/scatter_copy.comp", "-o", "assets/shaders/scatter_copy.spv"), withStream()); err != nil {
		return err
	}
	return nil
}
