package scene

import (
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief The lights of a pass. At most metadata.MaxLights are uploaded,
 * directional lights first, then point lights, then spot lights.
 */
type Lighting struct {
	Ambient math.Vec4
	Lights  []metadata.Light
}

func DirectionalLight(direction, strength math.Vec3) metadata.Light {
	return metadata.Light{Direction: direction, Strength: strength}
}

func SpotLight(position, direction, strength math.Vec3, spotPower float32) metadata.Light {
	return metadata.Light{
		Position:     position,
		Direction:    direction,
		Strength:     strength,
		SpotPower:    spotPower,
		FalloffStart: 1.0,
		FalloffEnd:   10.0,
	}
}

// Fill copies the lighting into the pass constants. Extra lights are dropped.
func (l *Lighting) Fill(pass *metadata.PassConstants) {
	pass.AmbientLight = l.Ambient
	pass.Lights = [metadata.MaxLights]metadata.Light{}
	copy(pass.Lights[:], l.Lights)
}

// CastleLighting is a dim warm sun, one cyan spot over every column and a red spot over the top.
func CastleLighting() *Lighting {
	cyan := math.NewVec3(0.541, 0.984, 1.0)
	down := math.NewVec3(0, -5, 0)
	return &Lighting{
		Ambient: math.NewVec4(1, 1, 1, 1),
		Lights: []metadata.Light{
			DirectionalLight(math.NewVec3(0.57735, -0.57735, 0.57735), math.NewVec3(0.2, 0.1, 0.0)),
			SpotLight(math.NewVec3(-9, 13, -9), down, cyan, 0.35),
			SpotLight(math.NewVec3(9, 13, -9), down, cyan, 0.35),
			SpotLight(math.NewVec3(-9, 13, 9), down, cyan, 0.35),
			SpotLight(math.NewVec3(9, 13, 9), down, cyan, 0.35),
			SpotLight(math.NewVec3(0, 18, 0), down, math.NewVec3(1, 0, 0), 0.95),
		},
	}
}
