package download

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"wallpaper-scraper/pkg/utils"
)

// DefaultExt is appended when the URL's last segment carries no extension.
const DefaultExt = ".jpg"

const maxExtLen = 6 // ".jpeg", ".webp"; anything longer is treated as part of the name

// DestinationName derives the local filename for a direct image URL. It is a
// pure function of the URL so reruns map the same image to the same file.
func DestinationName(directURL string) string {
	segment := ""
	if u, err := url.Parse(directURL); err == nil {
		segment = path.Base(u.Path)
	}
	if segment == "." || segment == "/" || segment == "" {
		return "wallpaper_" + utils.ShortHash(directURL, 12) + DefaultExt
	}

	ext := path.Ext(segment)
	stem := strings.TrimSuffix(segment, ext)
	if !validExt(ext) {
		stem, ext = segment, ""
	}
	if ext == "" {
		ext = DefaultExt
	}
	return utils.SanitizeFilename(stem, strings.ToLower(ext), "wallpaper_"+utils.ShortHash(directURL, 12))
}

// DestinationPath joins DestinationName onto destDir.
func DestinationPath(destDir, directURL string) string {
	return filepath.Join(destDir, DestinationName(directURL))
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > maxExtLen {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
