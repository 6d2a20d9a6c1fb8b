package loaders

import (
	"fmt"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// MaterialLoader reads material definitions from TOML or YAML files.
type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	mCfg, err := parseMaterialFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeMaterial,
		Name:     mCfg.Name,
		FullPath: path,
		DataSize: uint64(metadata.RecordSize[metadata.MaterialConstants]()),
		Data:     mCfg,
	}, nil
}

func parseMaterialFile(filename string) (*metadata.MaterialConfig, error) {
	materialConfig := &metadata.MaterialConfig{}
	if err := DecodeFile(filename, materialConfig); err != nil {
		return nil, err
	}
	// Perform validation
	if err := validateMaterial(materialConfig); err != nil {
		return nil, fmt.Errorf("material %s: %w", filename, err)
	}
	return materialConfig, nil
}

func validateMaterial(material *metadata.MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}

	for _, v := range material.DiffuseAlbedo {
		if !inRange(v) {
			return fmt.Errorf("diffuse_albedo values must be between 0.0 and 1.0")
		}
	}
	for _, v := range material.FresnelR0 {
		if !inRange(v) {
			return fmt.Errorf("fresnel_r0 values must be between 0.0 and 1.0")
		}
	}
	if !inRange(material.Roughness) {
		return fmt.Errorf("roughness must be between 0.0 and 1.0")
	}
	return nil
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func (ml *MaterialLoader) Unload(*metadata.Resource) error {
	return nil
}
