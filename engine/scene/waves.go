package scene

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/math"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// VertexWriter receives the dynamic vertices of the current frame resource.
type VertexWriter interface {
	CopyData(index uint32, record *metadata.Vertex) error
}

/**
 * @brief A height field of water solved with finite differences on a
 * rows x columns grid centred on the origin.
 */
type Waves struct {
	numRows int
	numCols int

	vertexCount   int
	triangleCount int

	// Simulation constants that can be precomputed.
	k1, k2, k3 float32

	timeStep    float32
	spatialStep float32
	elapsed     float32

	prevSolution []math.Vec3
	currSolution []math.Vec3
	normals      []math.Vec3
	tangentX     []math.Vec3
}

/**
 * @brief Creates a flat wave grid.
 * @param m Number of rows.
 * @param n Number of columns.
 * @param dx Distance between neighbouring grid points.
 * @param dt Simulation time step in seconds.
 * @param speed Wave speed.
 * @param damping Damping factor.
 */
func NewWaves(m, n int, dx, dt, speed, damping float32) (*Waves, error) {
	if m < 5 || n < 5 {
		return nil, fmt.Errorf("waves grid must be at least 5x5, got %dx%d", m, n)
	}
	d := damping*dt + 2.0
	e := (speed * speed) * (dt * dt) / (dx * dx)

	w := &Waves{
		numRows:       m,
		numCols:       n,
		vertexCount:   m * n,
		triangleCount: (m - 1) * (n - 1) * 2,
		k1:            (damping*dt - 2.0) / d,
		k2:            (4.0 - 8.0*e) / d,
		k3:            (2.0 * e) / d,
		timeStep:      dt,
		spatialStep:   dx,
		prevSolution:  make([]math.Vec3, m*n),
		currSolution:  make([]math.Vec3, m*n),
		normals:       make([]math.Vec3, m*n),
		tangentX:      make([]math.Vec3, m*n),
	}

	halfWidth := float32(n-1) * dx * 0.5
	halfDepth := float32(m-1) * dx * 0.5
	for i := 0; i < m; i++ {
		z := halfDepth - float32(i)*dx
		for j := 0; j < n; j++ {
			x := -halfWidth + float32(j)*dx
			w.prevSolution[i*n+j] = math.NewVec3(x, 0, z)
			w.currSolution[i*n+j] = math.NewVec3(x, 0, z)
			w.normals[i*n+j] = math.NewVec3Up()
			w.tangentX[i*n+j] = math.NewVec3(1, 0, 0)
		}
	}
	return w, nil
}

func (w *Waves) RowCount() int      { return w.numRows }
func (w *Waves) ColumnCount() int   { return w.numCols }
func (w *Waves) VertexCount() int   { return w.vertexCount }
func (w *Waves) TriangleCount() int { return w.triangleCount }
func (w *Waves) Width() float32     { return float32(w.numCols) * w.spatialStep }
func (w *Waves) Depth() float32     { return float32(w.numRows) * w.spatialStep }

func (w *Waves) Position(i int) math.Vec3 { return w.currSolution[i] }
func (w *Waves) Normal(i int) math.Vec3   { return w.normals[i] }

// Update advances the simulation once enough time accumulated for a step.
func (w *Waves) Update(dt float32) {
	w.elapsed += dt
	if w.elapsed < w.timeStep {
		return
	}

	m, n := w.numRows, w.numCols
	// The previous solution is overwritten in place with the next one.
	for i := 1; i < m-1; i++ {
		for j := 1; j < n-1; j++ {
			w.prevSolution[i*n+j].Y = w.k1*w.prevSolution[i*n+j].Y +
				w.k2*w.currSolution[i*n+j].Y +
				w.k3*(w.currSolution[(i+1)*n+j].Y+
					w.currSolution[(i-1)*n+j].Y+
					w.currSolution[i*n+j+1].Y+
					w.currSolution[i*n+j-1].Y)
		}
	}
	w.prevSolution, w.currSolution = w.currSolution, w.prevSolution
	w.elapsed = 0

	for i := 1; i < m-1; i++ {
		for j := 1; j < n-1; j++ {
			l := w.currSolution[i*n+j-1].Y
			r := w.currSolution[i*n+j+1].Y
			t := w.currSolution[(i-1)*n+j].Y
			b := w.currSolution[(i+1)*n+j].Y
			w.normals[i*n+j] = math.NewVec3(-r+l, 2.0*w.spatialStep, b-t).Normalized()
			w.tangentX[i*n+j] = math.NewVec3(2.0*w.spatialStep, r-l, 0).Normalized()
		}
	}
}

// Disturb raises grid point (i, j) by magnitude and its four neighbours by half of it.
// Points on or next to the border cannot be disturbed.
func (w *Waves) Disturb(i, j int, magnitude float32) error {
	if i <= 1 || i >= w.numRows-2 || j <= 1 || j >= w.numCols-2 {
		return fmt.Errorf("cannot disturb wave point (%d, %d) of a %dx%d grid", i, j, w.numRows, w.numCols)
	}
	n := w.numCols
	half := 0.5 * magnitude
	w.currSolution[i*n+j].Y += magnitude
	w.currSolution[i*n+j+1].Y += half
	w.currSolution[i*n+j-1].Y += half
	w.currSolution[(i+1)*n+j].Y += half
	w.currSolution[(i-1)*n+j].Y += half
	return nil
}

// DisturbRandom disturbs a random interior point with a magnitude in [minMagnitude, maxMagnitude].
func (w *Waves) DisturbRandom(rng *math.Random, minMagnitude, maxMagnitude float32) error {
	if w.numRows < 9 || w.numCols < 9 {
		return fmt.Errorf("a %dx%d wave grid has no room for random disturbances", w.numRows, w.numCols)
	}
	i := rng.IntRange(4, w.numRows-5)
	j := rng.IntRange(4, w.numCols-5)
	return w.Disturb(i, j, rng.FloatRange(minMagnitude, maxMagnitude))
}

// Indices triangulates the grid, two triangles per quad.
func (w *Waves) Indices() []uint32 {
	m, n := w.numRows, w.numCols
	indices := make([]uint32, 0, 3*w.triangleCount)
	for i := 0; i < m-1; i++ {
		for j := 0; j < n-1; j++ {
			indices = append(indices,
				uint32(i*n+j), uint32(i*n+j+1), uint32((i+1)*n+j),
				uint32((i+1)*n+j), uint32(i*n+j+1), uint32((i+1)*n+j+1),
			)
		}
	}
	return indices
}

// WriteVertices copies the current solution into dst, mapping [-width/2, width/2] to [0, 1] texture coordinates.
func (w *Waves) WriteVertices(dst VertexWriter) error {
	width, depth := w.Width(), w.Depth()
	for i := 0; i < w.vertexCount; i++ {
		p := w.currSolution[i]
		v := metadata.Vertex{
			Position: p,
			Normal:   w.normals[i],
			TexC:     math.NewVec2(0.5+p.X/width, 0.5-p.Z/depth),
			Colour:   math.NewVec4(1, 1, 1, 1),
		}
		if err := dst.CopyData(uint32(i), &v); err != nil {
			return fmt.Errorf("writing wave vertex %d: %w", i, err)
		}
	}
	return nil
}
