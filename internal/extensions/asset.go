package extensions

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// AssetEndpoint is the path that serves extension static files.
const AssetEndpoint = "/ext.php"

// StaticDir is the subdirectory of an extension holding its public files.
const StaticDir = "static"

// AssetType is the kind of static file served for an extension.
type AssetType string

const (
	AssetJS  AssetType = "js"
	AssetCSS AssetType = "css"
)

// ContentType returns the MIME type served for the asset type.
func (t AssetType) ContentType() (string, bool) {
	switch t {
	case AssetJS:
		return "application/javascript; charset=UTF-8", true
	case AssetCSS:
		return "text/css; charset=UTF-8", true
	}
	return "", false
}

// Dir returns the last segment of the extension path, which names the extension
// directory in asset keys.
func (d *Descriptor) Dir() string {
	p := strings.TrimRight(filepath.ToSlash(d.path), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// FileURL returns the public URL of a static file of the extension.
//
// The last modification time of the file is appended as a bare query token so
// clients refetch the file when it changes. A missing file yields an empty token.
// Parameters are separated by "&amp;" since the URL is meant to be written into markup.
func (d *Descriptor) FileURL(filename string, typ AssetType) string {
	key := url.QueryEscape(d.Dir() + "/" + StaticDir + "/" + filename)

	var mtime string
	if info, err := d.fs.Stat(filepath.Join(d.path, StaticDir, filename)); err == nil {
		mtime = strconv.FormatInt(info.ModTime().Unix(), 10)
	}

	u := AssetEndpoint + "?f=" + key +
		"&amp;t=" + string(typ) +
		"&amp;" + mtime
	return d.display.Display(u)
}
