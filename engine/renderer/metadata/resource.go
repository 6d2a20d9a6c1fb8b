package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Files the asset manager does not know how to load. */
	ResourceTypeNone ResourceType = iota
	/** @brief Material definition, TOML or YAML. */
	ResourceTypeMaterial
	/** @brief Compiled SPIR-V shader module. */
	ResourceTypeShader
	/** @brief Application configuration, TOML or YAML. */
	ResourceTypeConfig
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeConfig:
		return "config"
	}
	return "none"
}

/** @brief The magic number found in the first word of every SPIR-V module. */
const SpirvMagic uint32 = 0x07230203

type Resource struct {
	/** @brief The type of the loader which handled this resource. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
