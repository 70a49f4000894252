// Package engine runs the external meshing binary.
package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Invocation is one fully-specified call of the meshing engine.
type Invocation struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Script and mesh file extensions understood by gmsh.
const (
	ScriptExt      = ".geo"
	NativeMeshExt  = ".msh"
	SurfaceMeshExt = ".stl"
)

// MeshInvocation builds the 2D meshing call for <name>.geo in dir, writing
// <name><outExt>. When elementSize is set the characteristic length is clamped
// to [0.5*size, 2*size].
func MeshInvocation(program, dir, name, outExt string, elementSize *float64, timeout time.Duration) Invocation {
	args := []string{name + ScriptExt, "-2", "-o", name + outExt}
	if elementSize != nil {
		args = append(args,
			"-clmin", formatFloat(*elementSize*0.5),
			"-clmax", formatFloat(*elementSize*2),
		)
	}
	return Invocation{
		Program: program,
		Args:    args,
		Dir:     dir,
		Env:     engineEnv(dir),
		Timeout: timeout,
	}
}

// engineEnv passes PATH through and points HOME at the workspace so the
// engine cannot write its option files into the service user's home.
func engineEnv(dir string) []string {
	env := []string{"HOME=" + dir}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}
	return env
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (inv Invocation) Validate() error {
	if strings.TrimSpace(inv.Program) == "" {
		return errors.New("engine program is empty")
	}
	if inv.Dir != "" && !filepath.IsAbs(inv.Dir) {
		return errors.New("engine working directory must be absolute")
	}
	if inv.Timeout < 0 {
		return errors.New("engine timeout must not be negative")
	}
	return nil
}

// String renders the command line for logs.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Program}, inv.Args...), " ")
}
