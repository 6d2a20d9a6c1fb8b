package math

import (
	"github.com/chewxy/math32"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief An approximate representation of PI divided by 2. */
	K_HALF_PI float32 = 0.5 * K_PI
	/** @brief An approximate representation of PI divided by 4. */
	K_QUARTER_PI float32 = 0.25 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// ------------------------------------------
// Vector 2
// ------------------------------------------

/**
 * @brief Creates and returns a new 2-element vector using the supplied values.
 */
func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

// ------------------------------------------
// Vector 3
// ------------------------------------------

/**
 * @brief Creates and returns a new 3-element vector using the supplied values.
 *
 * @param x The x value.
 * @param y The y value.
 * @param z The z value.
 * @return A new 3-element vector.
 */
func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

/** @brief Creates and returns a 3-component vector with all components set to 0.0f. */
func NewVec3Zero() Vec3 {
	return Vec3{}
}

/** @brief Creates and returns a 3-component vector with all components set to 1.0f. */
func NewVec3One() Vec3 {
	return Vec3{X: 1, Y: 1, Z: 1}
}

/** @brief Creates and returns a 3-component vector pointing up (0, 1, 0). */
func NewVec3Up() Vec3 {
	return Vec3{X: 0, Y: 1, Z: 0}
}

/** @brief Returns a new 4-element vector using the components of this one and the supplied w. */
func (v Vec3) ToVec4(w float32) Vec4 {
	return Vec4{X: v.X, Y: v.Y, Z: v.Z, W: w}
}

/**
 * @brief Adds other to this vector and returns a copy of the result.
 */
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

/**
 * @brief Subtracts other from this vector and returns a copy of the result.
 */
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

/**
 * @brief Multiplies all elements of the vector by the scalar and returns a copy of the result.
 */
func (v Vec3) MulScalar(scalar float32) Vec3 {
	return Vec3{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

/**
 * @brief Returns the squared length of the provided vector.
 */
func (v Vec3) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

/**
 * @brief Returns the length of the provided vector.
 */
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.LengthSquared())
}

/**
 * @brief Returns a normalized copy of the supplied vector.
 * A zero vector is returned unchanged.
 */
func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length == 0 {
		return v
	}
	return Vec3{X: v.X / length, Y: v.Y / length, Z: v.Z / length}
}

/**
 * @brief Returns the dot product between the provided vectors. Typically used
 * to calculate the difference in direction.
 */
func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

/**
 * @brief Calculates and returns the cross product of the supplied vectors.
 * The cross product is a new vector which is orthoganal to both provided vectors.
 */
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

/**
 * @brief Indicates if the provided vectors are equivalent within the given tolerance.
 */
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	return math32.Abs(v.X-other.X) <= tolerance &&
		math32.Abs(v.Y-other.Y) <= tolerance &&
		math32.Abs(v.Z-other.Z) <= tolerance
}

/**
 * @brief Transforms the point v (w = 1) by the matrix m, as v * m.
 */
func (v Vec3) Transform(m Mat4) Vec3 {
	return Vec3{
		X: v.X*m.Data[0] + v.Y*m.Data[4] + v.Z*m.Data[8] + m.Data[12],
		Y: v.X*m.Data[1] + v.Y*m.Data[5] + v.Z*m.Data[9] + m.Data[13],
		Z: v.X*m.Data[2] + v.Y*m.Data[6] + v.Z*m.Data[10] + m.Data[14],
	}
}

// ------------------------------------------
// Vector 4
// ------------------------------------------

/**
 * @brief Creates and returns a new 4-element vector using the supplied values.
 */
func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

/** @brief Returns a new 3-element vector dropping the w component. */
func (v Vec4) ToVec3() Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// ------------------------------------------
// Mat4
// ------------------------------------------

/**
 * @brief Creates and returns an identity matrix:
 *
 * {
 *   {1, 0, 0, 0},
 *   {0, 1, 0, 0},
 *   {0, 0, 1, 0},
 *   {0, 0, 0, 1}
 * }
 */
func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

/**
 * @brief Returns the result of multiplying this matrix by other (this * other).
 * With row vectors, the resulting transform applies this first, then other.
 */
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

/**
 * @brief Creates a left-handed perspective matrix with a [0, 1] depth range.
 *
 * @param fovY The vertical field of view in radians.
 * @param aspect The aspect ratio (width / height).
 * @param nearZ The near clipping plane distance.
 * @param farZ The far clipping plane distance.
 */
func NewMat4PerspectiveFovLH(fovY, aspect, nearZ, farZ float32) Mat4 {
	h := 1.0 / math32.Tan(fovY*0.5)
	w := h / aspect
	r := farZ / (farZ - nearZ)

	out := Mat4{}
	out.Data[0] = w
	out.Data[5] = h
	out.Data[10] = r
	out.Data[11] = 1.0
	out.Data[14] = -r * nearZ
	return out
}

/**
 * @brief Creates a left-handed view matrix looking at target from the perspective of eye.
 *
 * @param eye The position of the viewer.
 * @param target The position to "look at".
 * @param up The up vector.
 */
func NewMat4LookAtLH(eye, target, up Vec3) Mat4 {
	zAxis := target.Sub(eye).Normalized()
	xAxis := up.Cross(zAxis).Normalized()
	yAxis := zAxis.Cross(xAxis)

	out := NewMat4Identity()
	out.Data[0] = xAxis.X
	out.Data[1] = yAxis.X
	out.Data[2] = zAxis.X
	out.Data[4] = xAxis.Y
	out.Data[5] = yAxis.Y
	out.Data[6] = zAxis.Y
	out.Data[8] = xAxis.Z
	out.Data[9] = yAxis.Z
	out.Data[10] = zAxis.Z
	out.Data[12] = -xAxis.Dot(eye)
	out.Data[13] = -yAxis.Dot(eye)
	out.Data[14] = -zAxis.Dot(eye)
	return out
}

/**
 * @brief Returns a transposed copy of the matrix (rows->colums).
 */
func (mt Mat4) Transposed() Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out.Data[col*4+row] = mt.Data[row*4+col]
		}
	}
	return out
}

/**
 * @brief Returns the determinant of the matrix.
 */
func (mt Mat4) Determinant() float32 {
	b := mt.subDeterminants()
	return b[0]*b[11] - b[1]*b[10] + b[2]*b[9] + b[3]*b[8] - b[4]*b[7] + b[5]*b[6]
}

func (mt Mat4) subDeterminants() [12]float32 {
	a := &mt.Data
	return [12]float32{
		a[0]*a[5] - a[1]*a[4],
		a[0]*a[6] - a[2]*a[4],
		a[0]*a[7] - a[3]*a[4],
		a[1]*a[6] - a[2]*a[5],
		a[1]*a[7] - a[3]*a[5],
		a[2]*a[7] - a[3]*a[6],
		a[8]*a[13] - a[9]*a[12],
		a[8]*a[14] - a[10]*a[12],
		a[8]*a[15] - a[11]*a[12],
		a[9]*a[14] - a[10]*a[13],
		a[9]*a[15] - a[11]*a[13],
		a[10]*a[15] - a[11]*a[14],
	}
}

/**
 * @brief Creates and returns an inverse of the matrix. A singular matrix
 * yields the zero matrix.
 */
func (mt Mat4) Inverse() Mat4 {
	a := &mt.Data
	b := mt.subDeterminants()
	det := b[0]*b[11] - b[1]*b[10] + b[2]*b[9] + b[3]*b[8] - b[4]*b[7] + b[5]*b[6]

	out := Mat4{}
	if det == 0 {
		return out
	}
	d := 1.0 / det
	o := &out.Data

	o[0] = (a[5]*b[11] - a[6]*b[10] + a[7]*b[9]) * d
	o[1] = (a[2]*b[10] - a[1]*b[11] - a[3]*b[9]) * d
	o[2] = (a[13]*b[5] - a[14]*b[4] + a[15]*b[3]) * d
	o[3] = (a[10]*b[4] - a[9]*b[5] - a[11]*b[3]) * d
	o[4] = (a[6]*b[8] - a[4]*b[11] - a[7]*b[7]) * d
	o[5] = (a[0]*b[11] - a[2]*b[8] + a[3]*b[7]) * d
	o[6] = (a[14]*b[2] - a[12]*b[5] - a[15]*b[1]) * d
	o[7] = (a[8]*b[5] - a[10]*b[2] + a[11]*b[1]) * d
	o[8] = (a[4]*b[10] - a[5]*b[8] + a[7]*b[6]) * d
	o[9] = (a[1]*b[8] - a[0]*b[10] - a[3]*b[6]) * d
	o[10] = (a[12]*b[4] - a[13]*b[2] + a[15]*b[0]) * d
	o[11] = (a[9]*b[2] - a[8]*b[4] - a[11]*b[0]) * d
	o[12] = (a[5]*b[7] - a[4]*b[9] - a[6]*b[6]) * d
	o[13] = (a[0]*b[9] - a[1]*b[7] + a[2]*b[6]) * d
	o[14] = (a[13]*b[1] - a[12]*b[3] - a[14]*b[0]) * d
	o[15] = (a[8]*b[3] - a[9]*b[1] + a[10]*b[0]) * d
	return out
}

/**
 * @brief Indicates if the provided matrices are equivalent within the given tolerance.
 */
func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if math32.Abs(mt.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}

/**
 * @brief Creates and returns a translation matrix from the given position.
 */
func NewMat4Translation(position Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[12] = position.X
	out.Data[13] = position.Y
	out.Data[14] = position.Z
	return out
}

/**
 * @brief Returns a scale matrix using the provided scale.
 */
func NewMat4Scale(scale Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[0] = scale.X
	out.Data[5] = scale.Y
	out.Data[10] = scale.Z
	return out
}

/**
 * @brief Creates a rotation matrix from the provided x angle.
 */
func NewMat4EulerX(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	s, c := math32.Sincos(angleRadians)
	out.Data[5] = c
	out.Data[6] = s
	out.Data[9] = -s
	out.Data[10] = c
	return out
}

/**
 * @brief Creates a rotation matrix from the provided y angle.
 */
func NewMat4EulerY(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	s, c := math32.Sincos(angleRadians)
	out.Data[0] = c
	out.Data[2] = -s
	out.Data[8] = s
	out.Data[10] = c
	return out
}

/**
 * @brief Creates a rotation matrix from the provided z angle.
 */
func NewMat4EulerZ(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	s, c := math32.Sincos(angleRadians)
	out.Data[0] = c
	out.Data[1] = s
	out.Data[4] = -s
	out.Data[5] = c
	return out
}

/**
 * @brief Creates a rotation matrix from the provided x, y and z axis rotations.
 */
func NewMat4EulerXYZ(xRadians, yRadians, zRadians float32) Mat4 {
	return NewMat4EulerX(xRadians).Mul(NewMat4EulerY(yRadians)).Mul(NewMat4EulerZ(zRadians))
}

/**
 * @brief Converts provided degrees to radians.
 */
func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

/**
 * @brief Converts provided radians to degrees.
 */
func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG_MULTIPLIER
}
