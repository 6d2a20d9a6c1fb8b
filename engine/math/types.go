package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/**
 * @brief a 4x4 matrix stored row by row, used with row vectors (v * M).
 * Translation lives in elements 12, 13 and 14.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents the placement of an object in the world.
 * The world matrix is composed as scale, then rotation, then translation.
 * NOTE: The properties of this should not be edited directly, but done
 * via the setters to ensure proper matrix generation.
 */
type Transform struct {
	/** @brief The position in the world. */
	Position Vec3
	/** @brief The euler rotation in radians, applied X then Y then Z. */
	Rotation Vec3
	/** @brief The scale in the world. */
	Scale Vec3
	/**
	 * @brief Indicates if the position, rotation or scale have changed,
	 * indicating that the world matrix needs to be recalculated.
	 */
	IsDirty bool
	/** @brief The cached world matrix. */
	World Mat4
}
