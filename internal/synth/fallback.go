package synth

import "strings"

// Template names reported by TemplateName.
const (
	TemplateCircularHole = "circular_hole"
	TemplateCircle       = "circle"
	TemplateSquare       = "square"
	TemplateTriangle     = "triangle"
)

const circularHoleScript = `// 2D mesh with circular hole
SetFactory("OpenCASCADE");

// Create rectangle
Rectangle(1) = {0, 0, 0, 2, 1, 0};

// Create circular hole
Circle(2) = {1, 0.5, 0, 0.2, 0, 2*Pi};
Curve Loop(3) = {2};
Plane Surface(4) = {3};

// Boolean difference
BooleanDifference{ Surface{1}; Delete; }{ Surface{4}; Delete; }

// Mesh settings
Mesh.CharacteristicLengthMin = 0.05;
Mesh.CharacteristicLengthMax = 0.1;

// Generate mesh
Mesh 2;
`

const circleScript = `// Simple circular mesh
SetFactory("OpenCASCADE");

// Create circle
Circle(1) = {0, 0, 0, 0.5, 0, 2*Pi};
Curve Loop(2) = {1};
Plane Surface(3) = {2};

// Mesh settings
Mesh.CharacteristicLengthMin = 0.05;
Mesh.CharacteristicLengthMax = 0.1;

// Generate mesh
Mesh 2;
`

const squareScript = `// Simple square mesh
SetFactory("OpenCASCADE");

// Create square
Rectangle(1) = {0, 0, 0, 1, 1, 0};

// Mesh settings
Mesh.CharacteristicLengthMin = 0.05;
Mesh.CharacteristicLengthMax = 0.1;

// Generate mesh
Mesh 2;
`

const triangleScript = `// Default triangular mesh
SetFactory("OpenCASCADE");

// Create triangle
Point(1) = {0, 0, 0};
Point(2) = {1, 0, 0};
Point(3) = {0.5, 1, 0};

Line(1) = {1, 2};
Line(2) = {2, 3};
Line(3) = {3, 1};

Curve Loop(4) = {1, 2, 3};
Plane Surface(5) = {4};

// Mesh settings
Mesh.CharacteristicLengthMin = 0.05;
Mesh.CharacteristicLengthMax = 0.1;

// Generate mesh
Mesh 2;
`

var templates = map[string]string{
	TemplateCircularHole: circularHoleScript,
	TemplateCircle:       circleScript,
	TemplateSquare:       squareScript,
	TemplateTriangle:     triangleScript,
}

// TemplateName picks the canned script for prompt. Matching is case-insensitive
// and the first rule wins: circle+hole, circle, square, then the triangle default.
func TemplateName(prompt string) string {
	p := strings.ToLower(prompt)
	circular := strings.Contains(p, "circle") || strings.Contains(p, "circular")
	switch {
	case circular && strings.Contains(p, "hole"):
		return TemplateCircularHole
	case circular:
		return TemplateCircle
	case strings.Contains(p, "square") || strings.Contains(p, "rectangular"):
		return TemplateSquare
	default:
		return TemplateTriangle
	}
}

// Fallback returns a deterministic, engine-valid script for prompt.
func Fallback(prompt string) string {
	return templates[TemplateName(prompt)]
}
