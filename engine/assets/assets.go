package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/castle/engine/assets/loaders"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

const (
	materialsDir = "materials"
	shadersDir   = "shaders"
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

/**
 * @brief Indexes the files of the assets directory and watches it for changes.
 * Material files that change on disk are parsed on the watcher goroutine and
 * queued until the frame thread collects them with MaterialChanges.
 */
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	// Latest definition read from disk per material name.
	pending map[string]*metadata.MaterialConfig

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	running  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		pending:  make(map[string]*metadata.MaterialConfig),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	s, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("assets directory: %w", err)
	}
	if !s.IsDir() {
		return fmt.Errorf("assets directory %s is not a directory", root)
	}
	am.root = root

	// Register loaders
	am.registerLoader(metadata.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})

	if err := am.addRecursive(root); err != nil {
		return err
	}
	am.mutex.Lock()
	am.running = true
	am.mutex.Unlock()
	go am.start()

	core.LogDebug("watching assets in %s (%d files indexed)", root, am.count())
	return nil
}

func (am *AssetManager) Root() string {
	return am.root
}

func (am *AssetManager) count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	am.mutex.RLock()
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) pathOf(name string, resourceType metadata.ResourceType) (string, error) {
	switch resourceType {
	case metadata.ResourceTypeShader:
		return filepath.Join(am.root, shadersDir, name+".spv"), nil
	case metadata.ResourceTypeMaterial:
		am.mutex.RLock()
		defer am.mutex.RUnlock()
		for path, info := range am.assets {
			if info.Type == metadata.ResourceTypeMaterial && baseName(path) == name {
				return path, nil
			}
		}
		return "", fmt.Errorf("material %q not found in %s", name, filepath.Join(am.root, materialsDir))
	}
	return "", fmt.Errorf("unknown resource type %s", resourceType)
}

// LoadAsset loads the named asset with the loader registered for its type.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	path, err := am.pathOf(name, resourceType)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		// Update the loaded time
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("asset not found: %s", path)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}

	return loader.Load(path, resourceType, params)
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Unload(asset)
}

// ShaderSource returns the SPIR-V code of assets/shaders/<name>.spv.
func (am *AssetManager) ShaderSource(name string) ([]byte, error) {
	res, err := am.LoadAsset(name, metadata.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.([]byte), nil
}

// LoadMaterials parses every material file of the assets directory, ordered by file name.
func (am *AssetManager) LoadMaterials() ([]*metadata.MaterialConfig, error) {
	am.mutex.RLock()
	paths := make([]string, 0)
	for path, info := range am.assets {
		if info.Type == metadata.ResourceTypeMaterial {
			paths = append(paths, path)
		}
	}
	am.mutex.RUnlock()
	sort.Strings(paths)

	loader := am.loaders[metadata.ResourceTypeMaterial]
	configs := make([]*metadata.MaterialConfig, 0, len(paths))
	for _, path := range paths {
		res, err := loader.Load(path, metadata.ResourceTypeMaterial, nil)
		if err != nil {
			return nil, err
		}
		configs = append(configs, res.Data.(*metadata.MaterialConfig))
	}
	return configs, nil
}

// MaterialChanges returns the material definitions that changed on disk since the last call, ordered by name.
func (am *AssetManager) MaterialChanges() []*metadata.MaterialConfig {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if len(am.pending) == 0 {
		return nil
	}
	changes := make([]*metadata.MaterialConfig, 0, len(am.pending))
	for _, cfg := range am.pending {
		changes = append(changes, cfg)
	}
	clear(am.pending)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}

// Shutdown stops the watcher goroutine.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	running := am.running
	am.mutex.Unlock()

	if !running {
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("watching %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name, true)
			}
			// A deleted or renamed file can't be stat'ed, drop it from the index.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath, false)
		return nil
	})
}

// Handle the creation or modification of a file. Changed materials are queued when reload is set.
func (am *AssetManager) handleFileEvent(path string, reload bool) {
	path = filepath.Clean(path)
	assetType := am.determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	am.mutex.Unlock()

	if !reload || assetType != metadata.ResourceTypeMaterial {
		return
	}
	res, err := am.loaders[assetType].Load(path, assetType, nil)
	if err != nil {
		// Editors often write a file in several steps, the next event will carry the full content.
		core.LogWarn("ignoring material change: %s", err)
		return
	}
	cfg := res.Data.(*metadata.MaterialConfig)

	am.mutex.Lock()
	am.pending[cfg.Name] = cfg
	am.mutex.Unlock()
	core.LogDebug("material %s changed on disk", cfg.Name)
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func (am *AssetManager) determineAssetType(path string) metadata.ResourceType {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return metadata.ResourceTypeNone
	}
	dir := filepath.Dir(rel)
	switch {
	case filepath.Ext(path) == ".spv":
		return metadata.ResourceTypeShader
	case loaders.IsConfigFile(path) && dir == materialsDir:
		return metadata.ResourceTypeMaterial
	case loaders.IsConfigFile(path):
		return metadata.ResourceTypeConfig
	default:
		return metadata.ResourceTypeNone
	}
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
