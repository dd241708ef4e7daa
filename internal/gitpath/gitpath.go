// Package gitpath contains consts and methods to work with path inside
// the .git directory
package gitpath

// .git/ Files and directories
const (
	DotGitPath     = ".git"
	ConfigPath     = "config"
	PackedRefsPath = "packed-refs"
	HEADPath       = "HEAD"
	ObjectsPath    = "objects"
	RefsPath       = "refs"
	RefsTagsPath   = RefsPath + "/tags"
	RefsHeadsPath  = RefsPath + "/heads"
)
