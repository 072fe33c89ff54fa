package corpus

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/qgpt/identity"
)

// File 发现的语料库文件。
type File struct {
	Path string `json:"path"`
	identity.Identity
}

// Discover 递归查找 dir 下的 *.json 文件并解析其标识，按路径排序。
// 目录不存在时记录警告并返回空列表。
func Discover(dir string, resolver *identity.Resolver) ([]File, error) {
	if resolver == nil {
		resolver = identity.NewResolver(identity.DefaultRoot)
	}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			logger.Warnw("corpus directory not found", "dir", dir)
			return nil, nil
		}
		return nil, err
	}

	var files []File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		files = append(files, File{Path: path, Identity: resolver.Resolve(path)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Identities 返回文件对应的标识列表。
func Identities(files []File) []identity.Identity {
	ids := make([]identity.Identity, len(files))
	for i, f := range files {
		ids[i] = f.Identity
	}
	return ids
}
