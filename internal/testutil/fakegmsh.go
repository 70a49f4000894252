// Package testutil provides a scripted stand-in for the gmsh binary.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Markers recognised by the fake engine when they appear in the script it runs.
const (
	MarkerSleep    = "FAKE_SLEEP"     // hang for 30s
	MarkerFail     = "FAKE_FAIL"      // exit 1 with an error on stderr
	MarkerWarn     = "FAKE_WARN"      // write a warning to stderr, still succeed
	MarkerNoOutput = "FAKE_NO_OUTPUT" // exit 0 without writing the output file
	MarkerNoSTL    = "FAKE_NO_STL"    // fail only when asked for .stl output
	MarkerExtra    = "FAKE_EXTRA"     // also write an auxiliary <name>.pos file
	MarkerFlood    = "FAKE_FLOOD"     // write to stdout until killed
)

// MeshContent is what the fake engine writes for native mesh output.
const MeshContent = "$MeshFormat\n4.1 0 8\n$EndMeshFormat\n"

// STLContent is what the fake engine writes for surface output.
const STLContent = "solid fake\nendsolid fake\n"

const fakeGmsh = `#!/bin/sh
script="$1"
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
echo "Info    : Running 'gmsh $*'"
if [ ! -f "$script" ]; then
  echo "Error   : Can't open file '$script'" >&2
  exit 1
fi
if grep -q FAKE_SLEEP "$script"; then sleep 30; fi
if grep -q FAKE_FLOOD "$script"; then yes "Info    : Meshing curve 1 (Line)"; fi
if grep -q FAKE_FAIL "$script"; then
  echo "Error   : Unknown command on line 1" >&2
  exit 1
fi
if grep -q FAKE_WARN "$script"; then echo "Warning : fake warning" >&2; fi
if grep -q FAKE_NO_OUTPUT "$script"; then exit 0; fi
case "$out" in
  *.stl)
    if grep -q FAKE_NO_STL "$script"; then
      echo "Error   : STL export failed" >&2
      exit 1
    fi
    printf 'solid fake\nendsolid fake\n' > "$out"
    ;;
  *)
    printf '$MeshFormat\n4.1 0 8\n$EndMeshFormat\n' > "$out"
    ;;
esac
if grep -q FAKE_EXTRA "$script"; then
  printf 'aux\n' > "${script%.geo}.pos"
fi
echo "Info    : Done meshing 2D"
exit 0
`

// FakeGmsh installs the fake engine in a temporary directory and returns its path.
func FakeGmsh(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmsh")
	if err := os.WriteFile(path, []byte(fakeGmsh), 0o755); err != nil {
		t.Fatalf("failed to install fake gmsh: %v", err)
	}
	return path
}
