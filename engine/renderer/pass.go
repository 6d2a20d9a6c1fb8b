package renderer

import (
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
	"github.com/spaghettifunk/castle/engine/scene"
)

/**
 * @brief Everything the per pass constants are built from.
 */
type PassInput struct {
	View   math.Mat4
	Proj   math.Mat4
	EyePos math.Vec3

	Width, Height uint32
	NearZ, FarZ   float32

	TotalTime float32
	DeltaTime float32

	// Optional. Passes without lighting leave the light array empty.
	Lighting *scene.Lighting
}

// BuildPassConstants derives the inverse matrices and stores every matrix transposed.
func BuildPassConstants(in PassInput) metadata.PassConstants {
	viewProj := in.View.Mul(in.Proj)

	pass := metadata.PassConstants{
		View:        in.View.Transposed(),
		InvView:     in.View.Inverse().Transposed(),
		Proj:        in.Proj.Transposed(),
		InvProj:     in.Proj.Inverse().Transposed(),
		ViewProj:    viewProj.Transposed(),
		InvViewProj: viewProj.Inverse().Transposed(),
		EyePosW:     in.EyePos,
		NearZ:       in.NearZ,
		FarZ:        in.FarZ,
		TotalTime:   in.TotalTime,
		DeltaTime:   in.DeltaTime,
	}
	if in.Width > 0 && in.Height > 0 {
		pass.RenderTargetSize = math.NewVec2(float32(in.Width), float32(in.Height))
		pass.InvRenderTargetSize = math.NewVec2(1.0/float32(in.Width), 1.0/float32(in.Height))
	}
	if in.Lighting != nil {
		in.Lighting.Fill(&pass)
	}
	return pass
}
