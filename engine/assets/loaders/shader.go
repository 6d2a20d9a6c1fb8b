package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// ShaderLoader reads compiled SPIR-V modules.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("shader %s: size %d is not a whole number of words", path, len(data))
	}
	if magic := bytesToBytecode(data[:4])[0]; magic != metadata.SpirvMagic {
		return nil, fmt.Errorf("shader %s: bad magic number 0x%08x", path, magic)
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeShader,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(*metadata.Resource) error {
	return nil
}
