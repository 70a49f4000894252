package synth

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackSquareTemplateText(t *testing.T) {
	want := "// Simple square mesh\n" +
		"SetFactory(\"OpenCASCADE\");\n" +
		"\n" +
		"// Create square\n" +
		"Rectangle(1) = {0, 0, 0, 1, 1, 0};\n" +
		"\n" +
		"// Mesh settings\n" +
		"Mesh.CharacteristicLengthMin = 0.05;\n" +
		"Mesh.CharacteristicLengthMax = 0.1;\n" +
		"\n" +
		"// Generate mesh\n" +
		"Mesh 2;\n"
	assert.Equal(t, want, Fallback("Create a simple 2D square mesh"))
}

func TestFallbackCircularHoleTemplateText(t *testing.T) {
	want := "// 2D mesh with circular hole\n" +
		"SetFactory(\"OpenCASCADE\");\n" +
		"\n" +
		"// Create rectangle\n" +
		"Rectangle(1) = {0, 0, 0, 2, 1, 0};\n" +
		"\n" +
		"// Create circular hole\n" +
		"Circle(2) = {1, 0.5, 0, 0.2, 0, 2*Pi};\n" +
		"Curve Loop(3) = {2};\n" +
		"Plane Surface(4) = {3};\n" +
		"\n" +
		"// Boolean difference\n" +
		"BooleanDifference{ Surface{1}; Delete; }{ Surface{4}; Delete; }\n" +
		"\n" +
		"// Mesh settings\n" +
		"Mesh.CharacteristicLengthMin = 0.05;\n" +
		"Mesh.CharacteristicLengthMax = 0.1;\n" +
		"\n" +
		"// Generate mesh\n" +
		"Mesh 2;\n"
	assert.Equal(t, want, Fallback("Plate with a circular hole"))
}

func TestFallbackCircleTemplateText(t *testing.T) {
	want := "// Simple circular mesh\n" +
		"SetFactory(\"OpenCASCADE\");\n" +
		"\n" +
		"// Create circle\n" +
		"Circle(1) = {0, 0, 0, 0.5, 0, 2*Pi};\n" +
		"Curve Loop(2) = {1};\n" +
		"Plane Surface(3) = {2};\n" +
		"\n" +
		"// Mesh settings\n" +
		"Mesh.CharacteristicLengthMin = 0.05;\n" +
		"Mesh.CharacteristicLengthMax = 0.1;\n" +
		"\n" +
		"// Generate mesh\n" +
		"Mesh 2;\n"
	assert.Equal(t, want, Fallback("mesh a circle"))
}

func TestFallbackTriangleTemplateText(t *testing.T) {
	want := "// Default triangular mesh\n" +
		"SetFactory(\"OpenCASCADE\");\n" +
		"\n" +
		"// Create triangle\n" +
		"Point(1) = {0, 0, 0};\n" +
		"Point(2) = {1, 0, 0};\n" +
		"Point(3) = {0.5, 1, 0};\n" +
		"\n" +
		"Line(1) = {1, 2};\n" +
		"Line(2) = {2, 3};\n" +
		"Line(3) = {3, 1};\n" +
		"\n" +
		"Curve Loop(4) = {1, 2, 3};\n" +
		"Plane Surface(5) = {4};\n" +
		"\n" +
		"// Mesh settings\n" +
		"Mesh.CharacteristicLengthMin = 0.05;\n" +
		"Mesh.CharacteristicLengthMax = 0.1;\n" +
		"\n" +
		"// Generate mesh\n" +
		"Mesh 2;\n"
	assert.Equal(t, want, Fallback("an L-shaped bracket"))
}

func TestFallbackRouting(t *testing.T) {
	cases := []struct {
		prompt string
		want   string
	}{
		{"plate with a circular hole", TemplateCircularHole},
		{"CIRCLE with a HOLE in it", TemplateCircularHole},
		{"a hole inside a circle next to a square", TemplateCircularHole},
		{"a circle", TemplateCircle},
		{"circular disk, also a square", TemplateCircle},
		{"unit square", TemplateSquare},
		{"Rectangular plate", TemplateSquare},
		{"square with a hole", TemplateSquare},
		{"an L-shaped bracket", TemplateTriangle},
		{"", TemplateTriangle},
		{"a hole", TemplateTriangle},
	}
	for _, tc := range cases {
		t.Run(tc.prompt, func(t *testing.T) {
			assert.Equal(t, tc.want, TemplateName(tc.prompt))
			assert.Equal(t, templates[tc.want], Fallback(tc.prompt))
		})
	}
}

func TestFallbackTemplatesAreSelfConsistent(t *testing.T) {
	for name, script := range templates {
		t.Run(name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(script, "// "), "starts with a comment line")
			assert.Contains(t, script, `SetFactory("OpenCASCADE");`)
			assert.True(t, strings.HasSuffix(script, "Mesh 2;\n"))
			assert.Equal(t, strings.Count(script, "{"), strings.Count(script, "}"))
		})
	}
}

var (
	entityDef  = regexp.MustCompile(`^(Point|Line|Circle|Curve Loop|Plane Surface|Rectangle)\((\d+)\) = \{([^}]*)\};$`)
	surfaceRef = regexp.MustCompile(`Surface\{(\d+)\}`)
)

// entityClass groups gmsh entity kinds that share an ID space.
var entityClass = map[string]string{
	"Point":         "point",
	"Line":          "curve",
	"Circle":        "curve",
	"Curve Loop":    "loop",
	"Plane Surface": "surface",
	"Rectangle":     "surface",
}

// entityRefs names the class each kind's braced arguments refer to. Kinds
// whose arguments are coordinates are absent.
var entityRefs = map[string]string{
	"Line":          "point",
	"Curve Loop":    "curve",
	"Plane Surface": "loop",
}

func TestFallbackTemplatesReferenceDefinedEntities(t *testing.T) {
	for name, script := range templates {
		t.Run(name, func(t *testing.T) {
			defined := map[string]map[int]bool{}
			define := func(class string, id int) {
				if defined[class] == nil {
					defined[class] = map[int]bool{}
				}
				assert.False(t, defined[class][id], "%s %d defined twice", class, id)
				defined[class][id] = true
			}
			refs := 0
			for _, line := range strings.Split(script, "\n") {
				if m := entityDef.FindStringSubmatch(line); m != nil {
					kind := m[1]
					id, err := strconv.Atoi(m[2])
					require.NoError(t, err)
					if target, ok := entityRefs[kind]; ok {
						for _, arg := range strings.Split(m[3], ",") {
							ref, err := strconv.Atoi(strings.TrimSpace(arg))
							require.NoError(t, err, "line %q", line)
							assert.True(t, defined[target][ref], "line %q refers to undefined %s %d", line, target, ref)
							refs++
						}
					}
					define(entityClass[kind], id)
					continue
				}
				for _, m := range surfaceRef.FindAllStringSubmatch(line, -1) {
					ref, err := strconv.Atoi(m[1])
					require.NoError(t, err)
					assert.True(t, defined["surface"][ref], "line %q refers to undefined surface %d", line, ref)
					refs++
				}
			}
			assert.NotEmpty(t, defined["surface"], "template defines no surface")
			if name != TemplateSquare {
				assert.Positive(t, refs, "template has no entity references to check")
			}
		})
	}
}

func TestFallbackResult(t *testing.T) {
	res := FallbackResult("circle")
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, TemplateCircle, res.Template)
	assert.Equal(t, Fallback("a circle"), res.Script)
	assert.True(t, strings.HasPrefix(res.Script, "// Simple circular mesh\n"))
}
