package kinematics

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/referenceframe"
)

type modelVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type modelLink struct {
	ID          string      `json:"id"`
	Parent      string      `json:"parent"`
	Translation modelVector `json:"translation"`
}

type modelJoint struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Parent string      `json:"parent"`
	Axis   modelVector `json:"axis"`
	Max    float64     `json:"max"`
	Min    float64     `json:"min"`
}

type modelFile struct {
	Name         string       `json:"name"`
	KinParamType string       `json:"kinematic_param_type"`
	Links        []modelLink  `json:"links"`
	Joints       []modelJoint `json:"joints"`
}

// ModelJSON renders the geometry as an RDK kinematics file with the four
// actuated joints. Joint limits are left wide open.
func ModelJSON(name string, p Params) ([]byte, error) {
	yAxis := modelVector{Y: 1}
	revolute := func(id, parent string, axis modelVector) modelJoint {
		return modelJoint{ID: id, Type: "revolute", Parent: parent, Axis: axis, Max: 360, Min: -360}
	}

	f := modelFile{
		Name:         name,
		KinParamType: "SVA",
		Links: []modelLink{
			{ID: "base_link", Parent: "world", Translation: modelVector{Z: p.Base}},
			{ID: "shoulder_link", Parent: "j0", Translation: modelVector{X: p.X0, Y: p.Y0}},
			{ID: "upper_link", Parent: "j1", Translation: modelVector{Z: p.V1}},
			{ID: "fore_link", Parent: "j2", Translation: modelVector{Z: p.V2}},
			{ID: "tool_link", Parent: "j3", Translation: modelVector{Z: p.ToolLength()}},
		},
		Joints: []modelJoint{
			revolute("j0", "base_link", modelVector{Z: 1}),
			revolute("j1", "shoulder_link", yAxis),
			revolute("j2", "upper_link", yAxis),
			revolute("j3", "fore_link", yAxis),
		},
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal kinematic model")
	}
	return data, nil
}

// NewModel builds an RDK model of the arm.
func NewModel(name string, p Params) (referenceframe.Model, error) {
	data, err := ModelJSON(name, p)
	if err != nil {
		return nil, err
	}

	m := &referenceframe.ModelConfig{
		OriginalFile: &referenceframe.ModelFile{
			Bytes:     data,
			Extension: "json",
		},
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal kinematic model")
	}

	model, err := m.ParseConfig(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse kinematic model %q", name)
	}
	return model, nil
}

// ModelInputs converts solver joints into model inputs, removing trims.
func ModelInputs(j Joints, p Params) []referenceframe.Input {
	inputs := make([]referenceframe.Input, ActuatedJoints)
	for i := range inputs {
		inputs[i] = referenceframe.Input{Value: j[i] - p.Adjustments[i]}
	}
	return inputs
}

// ModelPosition evaluates the model for j and returns the tip position.
func ModelPosition(model referenceframe.Model, j Joints, p Params) (r3.Vector, error) {
	pose, err := model.Transform(ModelInputs(j, p))
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "failed to transform model inputs")
	}
	return pose.Point(), nil
}
