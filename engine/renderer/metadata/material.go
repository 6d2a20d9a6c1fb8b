package metadata

/**
 * @brief Material configuration typically loaded from a file
 * (assets/materials/*.toml or *.yaml) or created in code.
 */
type MaterialConfig struct {
	/** @brief The name of the material. */
	Name string `toml:"name" yaml:"name"`
	/** @brief Index of the texture sampled by the material. */
	DiffuseSrvHeapIndex uint32 `toml:"texture_index" yaml:"texture_index"`
	/** @brief The diffuse albedo, RGBA. */
	DiffuseAlbedo [4]float32 `toml:"diffuse_albedo" yaml:"diffuse_albedo"`
	/** @brief Reflectance at normal incidence. */
	FresnelR0 [3]float32 `toml:"fresnel_r0" yaml:"fresnel_r0"`
	Roughness float32    `toml:"roughness" yaml:"roughness"`
}
