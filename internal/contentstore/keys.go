package contentstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	notesPrefix   = "notes/"
	assetsPrefix  = "assets/"
	backupsPrefix = "backups/"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// PageKey addresses one page body inside the owner's namespace.
// An empty pageID addresses the notebook's single legacy body.
func PageKey(ownerID, notebookID, pageID string) string {
	if pageID == "" {
		return notesPrefix + ownerID + "/" + notebookID + ".html"
	}
	return notesPrefix + ownerID + "/" + notebookID + "/pages/" + pageID + ".html"
}

func NotebookPrefix(ownerID, notebookID string) string {
	return notesPrefix + ownerID + "/" + notebookID + "/"
}

func AssetKey(filename string) string {
	return assetsPrefix + uuid.NewString() + "-" + SanitizeFilename(filename)
}

func SanitizeFilename(filename string) string {
	name := strings.TrimSpace(filename)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		name = "file"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

func BackupPrefix() string {
	return backupsPrefix
}

func BackupKey(at time.Time) string {
	return fmt.Sprintf("%snotebooks-%s.json", backupsPrefix, at.UTC().Format("20060102"))
}

// IsPublicKey reports whether key may be read without a signed URL.
func IsPublicKey(key string) bool {
	return strings.HasPrefix(key, assetsPrefix)
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
