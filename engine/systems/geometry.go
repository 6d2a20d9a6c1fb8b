package systems

import (
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// The most subdivisions a box accepts.
const maxBoxSubdivisions = 6

/**
 * @brief Produces simple meshes centred on the origin. Every vertex carries a
 * position, a unit normal and texture coordinates; indices are 32 bits wide.
 */
type GeometryGenerator struct{}

/**
 * @brief Generates a box.
 *
 * @param width The size along the x-axis. Must be non-zero.
 * @param height The size along the y-axis. Must be non-zero.
 * @param depth The size along the z-axis. Must be non-zero.
 * @param numSubdivisions How many times every face triangle is split in four. Clamped to 6.
 * @return The mesh or an error.
 */
func (g GeometryGenerator) CreateBox(width, height, depth float32, numSubdivisions uint32) (*metadata.MeshData, error) {
	if width == 0 || height == 0 || depth == 0 {
		return nil, fmt.Errorf("box dimensions must be non-zero, got %gx%gx%g", width, height, depth)
	}
	w2, h2, d2 := 0.5*width, 0.5*height, 0.5*depth

	vtx := func(x, y, z, nx, ny, nz, u, v float32) metadata.Vertex {
		return metadata.Vertex{
			Position: math.NewVec3(x, y, z),
			Normal:   math.NewVec3(nx, ny, nz),
			TexC:     math.NewVec2(u, v),
			Colour:   math.NewVec4(1, 1, 1, 1),
		}
	}

	mesh := &metadata.MeshData{
		Vertices: []metadata.Vertex{
			// Front
			vtx(-w2, -h2, -d2, 0, 0, -1, 0, 1),
			vtx(-w2, +h2, -d2, 0, 0, -1, 0, 0),
			vtx(+w2, +h2, -d2, 0, 0, -1, 1, 0),
			vtx(+w2, -h2, -d2, 0, 0, -1, 1, 1),
			// Back
			vtx(-w2, -h2, +d2, 0, 0, 1, 1, 1),
			vtx(+w2, -h2, +d2, 0, 0, 1, 0, 1),
			vtx(+w2, +h2, +d2, 0, 0, 1, 0, 0),
			vtx(-w2, +h2, +d2, 0, 0, 1, 1, 0),
			// Top
			vtx(-w2, +h2, -d2, 0, 1, 0, 0, 1),
			vtx(-w2, +h2, +d2, 0, 1, 0, 0, 0),
			vtx(+w2, +h2, +d2, 0, 1, 0, 1, 0),
			vtx(+w2, +h2, -d2, 0, 1, 0, 1, 1),
			// Bottom
			vtx(-w2, -h2, -d2, 0, -1, 0, 1, 1),
			vtx(+w2, -h2, -d2, 0, -1, 0, 0, 1),
			vtx(+w2, -h2, +d2, 0, -1, 0, 0, 0),
			vtx(-w2, -h2, +d2, 0, -1, 0, 1, 0),
			// Left
			vtx(-w2, -h2, +d2, -1, 0, 0, 0, 1),
			vtx(-w2, +h2, +d2, -1, 0, 0, 0, 0),
			vtx(-w2, +h2, -d2, -1, 0, 0, 1, 0),
			vtx(-w2, -h2, -d2, -1, 0, 0, 1, 1),
			// Right
			vtx(+w2, -h2, -d2, 1, 0, 0, 0, 1),
			vtx(+w2, +h2, -d2, 1, 0, 0, 0, 0),
			vtx(+w2, +h2, +d2, 1, 0, 0, 1, 0),
			vtx(+w2, -h2, +d2, 1, 0, 0, 1, 1),
		},
		Indices32: []uint32{
			0, 1, 2, 0, 2, 3,
			4, 5, 6, 4, 6, 7,
			8, 9, 10, 8, 10, 11,
			12, 13, 14, 12, 14, 15,
			16, 17, 18, 16, 18, 19,
			20, 21, 22, 20, 22, 23,
		},
	}

	numSubdivisions = min(numSubdivisions, maxBoxSubdivisions)
	for i := uint32(0); i < numSubdivisions; i++ {
		subdivide(mesh)
	}
	return mesh, nil
}

/**
 * @brief Generates a flat grid in the xz-plane.
 *
 * @param width The size along the x-axis.
 * @param depth The size along the z-axis.
 * @param m The number of vertex rows. Must be at least 2.
 * @param n The number of vertex columns. Must be at least 2.
 * @return The mesh or an error.
 */
func (g GeometryGenerator) CreateGrid(width, depth float32, m, n uint32) (*metadata.MeshData, error) {
	if m < 2 || n < 2 {
		return nil, fmt.Errorf("grid needs at least 2x2 vertices, got %dx%d", m, n)
	}
	halfWidth, halfDepth := 0.5*width, 0.5*depth
	dx := width / float32(n-1)
	dz := depth / float32(m-1)
	du := 1.0 / float32(n-1)
	dv := 1.0 / float32(m-1)

	mesh := &metadata.MeshData{
		Vertices:  make([]metadata.Vertex, 0, m*n),
		Indices32: make([]uint32, 0, (m-1)*(n-1)*6),
	}
	for i := uint32(0); i < m; i++ {
		z := halfDepth - float32(i)*dz
		for j := uint32(0); j < n; j++ {
			x := -halfWidth + float32(j)*dx
			mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
				Position: math.NewVec3(x, 0, z),
				Normal:   math.NewVec3Up(),
				TexC:     math.NewVec2(float32(j)*du, float32(i)*dv),
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
	}
	for i := uint32(0); i < m-1; i++ {
		for j := uint32(0); j < n-1; j++ {
			mesh.Indices32 = append(mesh.Indices32,
				i*n+j, i*n+j+1, (i+1)*n+j,
				(i+1)*n+j, i*n+j+1, (i+1)*n+j+1,
			)
		}
	}
	return mesh, nil
}

/**
 * @brief Generates a capped cylinder, or a cone when one radius is zero,
 * standing on the y-axis.
 *
 * @param bottomRadius The radius at y = -height/2.
 * @param topRadius The radius at y = +height/2.
 * @param height The height. Must be non-zero.
 * @param sliceCount The number of segments around the axis. Must be at least 3.
 * @param stackCount The number of segments along the axis. Must be non-zero.
 * @return The mesh or an error.
 */
func (g GeometryGenerator) CreateCylinder(bottomRadius, topRadius, height float32, sliceCount, stackCount uint32) (*metadata.MeshData, error) {
	if height == 0 || sliceCount < 3 || stackCount == 0 {
		return nil, fmt.Errorf("invalid cylinder: height %g, %d slices, %d stacks", height, sliceCount, stackCount)
	}
	mesh := &metadata.MeshData{}

	stackHeight := height / float32(stackCount)
	radiusStep := (topRadius - bottomRadius) / float32(stackCount)
	ringCount := stackCount + 1
	dTheta := 2.0 * math.K_PI / float32(sliceCount)

	for i := uint32(0); i < ringCount; i++ {
		y := -0.5*height + float32(i)*stackHeight
		r := bottomRadius + float32(i)*radiusStep
		for j := uint32(0); j <= sliceCount; j++ {
			c := math32.Cos(float32(j) * dTheta)
			s := math32.Sin(float32(j) * dTheta)

			tangent := math.NewVec3(-s, 0, c)
			dr := bottomRadius - topRadius
			bitangent := math.NewVec3(dr*c, -height, dr*s)

			mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
				Position: math.NewVec3(r*c, y, r*s),
				Normal:   tangent.Cross(bitangent).Normalized(),
				TexC:     math.NewVec2(float32(j)/float32(sliceCount), 1.0-float32(i)/float32(stackCount)),
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
	}

	// One extra vertex per ring closes the texture seam.
	ringVertexCount := sliceCount + 1
	for i := uint32(0); i < stackCount; i++ {
		for j := uint32(0); j < sliceCount; j++ {
			mesh.Indices32 = append(mesh.Indices32,
				i*ringVertexCount+j, (i+1)*ringVertexCount+j, (i+1)*ringVertexCount+j+1,
				i*ringVertexCount+j, (i+1)*ringVertexCount+j+1, i*ringVertexCount+j+1,
			)
		}
	}

	buildCylinderCap(mesh, topRadius, height, sliceCount, true)
	buildCylinderCap(mesh, bottomRadius, height, sliceCount, false)
	return mesh, nil
}

func buildCylinderCap(mesh *metadata.MeshData, radius, height float32, sliceCount uint32, top bool) {
	baseIndex := uint32(len(mesh.Vertices))
	y, ny := 0.5*height, float32(1)
	if !top {
		y, ny = -y, -1
	}
	dTheta := 2.0 * math.K_PI / float32(sliceCount)

	for i := uint32(0); i <= sliceCount; i++ {
		x := radius * math32.Cos(float32(i)*dTheta)
		z := radius * math32.Sin(float32(i)*dTheta)
		mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
			Position: math.NewVec3(x, y, z),
			Normal:   math.NewVec3(0, ny, 0),
			// Scale down by the height to keep the cap texture proportional to the base.
			TexC:   math.NewVec2(x/height+0.5, z/height+0.5),
			Colour: math.NewVec4(1, 1, 1, 1),
		})
	}
	mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
		Position: math.NewVec3(0, y, 0),
		Normal:   math.NewVec3(0, ny, 0),
		TexC:     math.NewVec2(0.5, 0.5),
		Colour:   math.NewVec4(1, 1, 1, 1),
	})

	center := uint32(len(mesh.Vertices) - 1)
	for i := uint32(0); i < sliceCount; i++ {
		if top {
			mesh.Indices32 = append(mesh.Indices32, center, baseIndex+i+1, baseIndex+i)
		} else {
			mesh.Indices32 = append(mesh.Indices32, center, baseIndex+i, baseIndex+i+1)
		}
	}
}

/**
 * @brief Generates a UV sphere.
 *
 * @param radius The radius. Must be positive.
 * @param sliceCount The number of segments around the y-axis. Must be at least 3.
 * @param stackCount The number of segments from pole to pole. Must be at least 2.
 * @return The mesh or an error.
 */
func (g GeometryGenerator) CreateSphere(radius float32, sliceCount, stackCount uint32) (*metadata.MeshData, error) {
	if radius <= 0 || sliceCount < 3 || stackCount < 2 {
		return nil, fmt.Errorf("invalid sphere: radius %g, %d slices, %d stacks", radius, sliceCount, stackCount)
	}
	mesh := &metadata.MeshData{}

	mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
		Position: math.NewVec3(0, radius, 0),
		Normal:   math.NewVec3Up(),
		TexC:     math.NewVec2(0, 0),
		Colour:   math.NewVec4(1, 1, 1, 1),
	})

	phiStep := math.K_PI / float32(stackCount)
	thetaStep := 2.0 * math.K_PI / float32(sliceCount)

	// Rings, poles excluded.
	for i := uint32(1); i <= stackCount-1; i++ {
		phi := float32(i) * phiStep
		for j := uint32(0); j <= sliceCount; j++ {
			theta := float32(j) * thetaStep
			p := math.NewVec3(
				radius*math32.Sin(phi)*math32.Cos(theta),
				radius*math32.Cos(phi),
				radius*math32.Sin(phi)*math32.Sin(theta),
			)
			mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
				Position: p,
				Normal:   p.Normalized(),
				TexC:     math.NewVec2(theta/(2.0*math.K_PI), phi/math.K_PI),
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
	}

	mesh.Vertices = append(mesh.Vertices, metadata.Vertex{
		Position: math.NewVec3(0, -radius, 0),
		Normal:   math.NewVec3(0, -1, 0),
		TexC:     math.NewVec2(0, 1),
		Colour:   math.NewVec4(1, 1, 1, 1),
	})

	for i := uint32(1); i <= sliceCount; i++ {
		mesh.Indices32 = append(mesh.Indices32, 0, i+1, i)
	}

	baseIndex := uint32(1)
	ringVertexCount := sliceCount + 1
	for i := uint32(0); i+2 < stackCount; i++ {
		for j := uint32(0); j < sliceCount; j++ {
			mesh.Indices32 = append(mesh.Indices32,
				baseIndex+i*ringVertexCount+j,
				baseIndex+i*ringVertexCount+j+1,
				baseIndex+(i+1)*ringVertexCount+j,

				baseIndex+(i+1)*ringVertexCount+j,
				baseIndex+i*ringVertexCount+j+1,
				baseIndex+(i+1)*ringVertexCount+j+1,
			)
		}
	}

	southPole := uint32(len(mesh.Vertices) - 1)
	baseIndex = southPole - ringVertexCount
	for i := uint32(0); i < sliceCount; i++ {
		mesh.Indices32 = append(mesh.Indices32, southPole, baseIndex+i, baseIndex+i+1)
	}
	return mesh, nil
}

// subdivide splits every triangle into four.
func subdivide(mesh *metadata.MeshData) {
	in := *mesh
	mesh.Vertices = make([]metadata.Vertex, 0, len(in.Indices32)*2)
	mesh.Indices32 = make([]uint32, 0, len(in.Indices32)*4)

	//       v1
	//       *
	//      / \
	//  m0 *---* m1
	//    / \ / \
	//   *---*---*
	//  v0   m2   v2
	for t := 0; t < len(in.Indices32)/3; t++ {
		v0 := in.Vertices[in.Indices32[t*3+0]]
		v1 := in.Vertices[in.Indices32[t*3+1]]
		v2 := in.Vertices[in.Indices32[t*3+2]]

		m0 := midPoint(v0, v1)
		m1 := midPoint(v1, v2)
		m2 := midPoint(v0, v2)

		base := uint32(t * 6)
		mesh.Vertices = append(mesh.Vertices, v0, v1, v2, m0, m1, m2)
		mesh.Indices32 = append(mesh.Indices32,
			base+0, base+3, base+5,
			base+3, base+4, base+5,
			base+5, base+4, base+2,
			base+3, base+1, base+4,
		)
	}
}

func midPoint(a, b metadata.Vertex) metadata.Vertex {
	return metadata.Vertex{
		Position: a.Position.Add(b.Position).MulScalar(0.5),
		Normal:   a.Normal.Add(b.Normal).Normalized(),
		TexC:     math.NewVec2(0.5*(a.TexC.X+b.TexC.X), 0.5*(a.TexC.Y+b.TexC.Y)),
		Colour:   a.Colour,
	}
}

/**
 * @brief A mesh to generate on the job system.
 */
type MeshRequest struct {
	Name     string
	Generate func(g GeometryGenerator) (*metadata.MeshData, error)
}

/**
 * @brief Generates every requested mesh on the job system and waits for all of them.
 *
 * @param jobs The job system to run on.
 * @param requests The meshes to generate. Names must be unique.
 * @return The meshes by name, or the first error encountered.
 */
func GenerateMeshes(jobs *JobSystem, requests []MeshRequest) (map[string]*metadata.MeshData, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	meshes := make(map[string]*metadata.MeshData, len(requests))

	for _, req := range requests {
		req := req
		wg.Add(1)
		jobs.Submit(metadata.JobTask{
			InputParams: req,
			OnStart: func(params interface{}, results chan<- interface{}) error {
				r := params.(MeshRequest)
				mesh, err := r.Generate(GeometryGenerator{})
				if err != nil {
					err = fmt.Errorf("generating mesh %s: %w", r.Name, err)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return err
				}
				results <- mesh
				return nil
			},
			OnComplete: func(results <-chan interface{}) {
				mesh := (<-results).(*metadata.MeshData)
				mu.Lock()
				meshes[req.Name] = mesh
				mu.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return meshes, nil
}
