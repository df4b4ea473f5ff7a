package filesync

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultArtifactExt = ".xlsx"

// Artifact is a downloaded report binary.
type Artifact struct {
	Data        []byte
	Filename    string
	ContentType string
}

var dispositionFilenameRe = regexp.MustCompile(`filename="?([^";]+)"?`)

// dispositionFilename extracts the filename hint from a Content-Disposition
// header, or returns "".
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	if m := dispositionFilenameRe.FindStringSubmatch(header); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// fallbackFilename builds "{base}-UPDATED-REPORT{ext}". base is
// originalName when set, else filename without its extension.
func fallbackFilename(originalName, filename string) string {
	ext := filepath.Ext(filename)
	base := originalName
	if base == "" {
		base = strings.TrimSuffix(filename, ext)
	}
	if ext == "" {
		ext = defaultArtifactExt
	}
	return base + "-UPDATED-REPORT" + ext
}

func newArtifact(resp *response, fallback string) Artifact {
	name := dispositionFilename(resp.header.Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}
	return Artifact{
		Data:        resp.body,
		Filename:    name,
		ContentType: resp.header.Get("Content-Type"),
	}
}
