package interp

import (
	"errors"
	"testing"

	"github.com/overturetool/tempo-plotting-tool/pkg/model"
)

const plantSource = `package plant

import "strconv"

type Celsius float64

type Sensor struct {
	reading Celsius
	label   string
}

type Plant struct {
	temp, target float64
	sensor       *Sensor
	backup       Sensor
	history      []float64
	tags         map[string]int
	alarm        *bool
	next         *Plant
	onTick       func()
}

func NewPlant() *Plant {
	return &Plant{target: 20, sensor: &Sensor{label: "main"}}
}

func (p *Plant) Step() {
	p.temp += (p.target - p.temp) / 2
	p.history = append(p.history, p.temp)
}

func (p *Plant) Describe() string {
	return "plant at " + strconv.FormatFloat(p.temp, 'f', 1, 64)
}

func (p *Plant) SetTarget(t float64) { p.target = t }

func (p *Plant) Check() error { return nil }
`

func TestParseProgramClasses(t *testing.T) {
	prog, err := parseProgram(plantSource)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}

	if len(prog.classes) != 2 {
		t.Fatalf("classes = %d, want 2", len(prog.classes))
	}
	plant := prog.byName["Plant"]

	tests := []struct {
		field string
		kind  model.Kind
		class string
	}{
		{"temp", model.KindBasic, ""},
		{"target", model.KindBasic, ""},
		{"sensor", model.KindComposite, "Sensor"},
		{"backup", model.KindComposite, "Sensor"},
		{"history", model.KindSequence, ""},
		{"tags", model.KindMap, ""},
		{"alarm", model.KindOptional, ""},
		{"next", model.KindComposite, "Plant"},
		{"onTick", model.KindFunction, ""},
	}
	if len(plant.Fields) != len(tests) {
		t.Fatalf("fields = %d, want %d", len(plant.Fields), len(tests))
	}
	for i, tt := range tests {
		f := plant.Fields[i]
		if f.Name != tt.field {
			t.Errorf("field %d = %q, want %q", i, f.Name, tt.field)
			continue
		}
		if f.Type.Kind != tt.kind {
			t.Errorf("%s kind = %s, want %s", f.Name, f.Type.Kind, tt.kind)
		}
		if tt.class != "" && (f.Type.Class == nil || f.Type.Class.Name != tt.class) {
			t.Errorf("%s class = %v, want %s", f.Name, f.Type.Class, tt.class)
		}
	}

	sensor := prog.byName["Sensor"]
	if got := sensor.Fields[0].Type; got.Kind != model.KindBasic || got.Name != "Celsius" {
		t.Errorf("named basic type = %+v", got)
	}
}

func TestParseProgramOperations(t *testing.T) {
	prog, err := parseProgram(plantSource)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	plant := prog.byName["Plant"]

	op, ok := plant.Operation("SetTarget")
	if !ok {
		t.Fatal("SetTarget not found")
	}
	if len(op.Params) != 1 || op.Params[0] != "float64" {
		t.Errorf("SetTarget params = %v", op.Params)
	}
	if op, _ := plant.Operation("Describe"); len(op.Results) != 1 || op.Results[0] != "string" {
		t.Errorf("Describe results = %v", op.Results)
	}
	if prog.ctors["Plant"] != ctorPointer {
		t.Errorf("Plant constructor = %v, want pointer", prog.ctors["Plant"])
	}
	if _, ok := prog.ctors["Sensor"]; ok {
		t.Error("Sensor should have no constructor")
	}
}

func TestParseProgramPackageClause(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing", "type A struct{ x int }"},
		{"other package", "package model\ntype A struct{ x int }"},
		{"main", "package main\ntype A struct{ x int }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parseProgram(tt.src)
			if err != nil {
				t.Fatalf("parseProgram: %v", err)
			}
			if prog.file.Name.Name != "main" {
				t.Errorf("package = %q, want main", prog.file.Name.Name)
			}
			if len(prog.classes) != 1 || prog.classes[0].Name != "A" {
				t.Errorf("classes = %v", prog.classes)
			}
		})
	}
}

func TestParseProgramSyntaxError(t *testing.T) {
	_, err := parseProgram("package main\ntype A struct {")
	if !errors.Is(err, ErrInvalidSource) {
		t.Errorf("err = %v, want ErrInvalidSource", err)
	}
}

func TestParseProgramEmbeddedField(t *testing.T) {
	prog, err := parseProgram(`
type Base struct{ id int }
type Derived struct {
	*Base
	name string
}`)
	if err != nil {
		t.Fatalf("parseProgram: %v", err)
	}
	d := prog.byName["Derived"]
	if d.Fields[0].Name != "Base" || !d.Fields[0].Type.IsComposite() {
		t.Errorf("embedded field = %+v", d.Fields[0])
	}
}

func TestCallExpr(t *testing.T) {
	tests := []struct {
		results []string
		want    string
	}{
		{nil, "func() interface{} { x.F(); return nil }()"},
		{[]string{"int"}, "x.F()"},
		{[]string{"error"}, "x.F()"},
		{[]string{"int", "error"}, "func() interface{} { r0, r1 := x.F(); if r1 != nil { return r1 }; return r0 }()"},
		{[]string{"int", "string"}, "func() interface{} { r0, r1 := x.F(); return []interface{}{r0, r1} }()"},
	}
	for _, tt := range tests {
		if got := callExpr("x.F()", tt.results); got != tt.want {
			t.Errorf("callExpr(%v) = %q, want %q", tt.results, got, tt.want)
		}
	}
}
