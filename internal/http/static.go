package http

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// StaticHandler serves dir under prefix with gzip compression for clients
// that accept it. Directory listings are disabled.
func StaticHandler(prefix, dir string) http.Handler {
	fs := http.FileServer(noListing{http.Dir(dir)})
	return gzhttp.GzipHandler(http.StripPrefix(prefix, fs))
}

type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := n.fs.Open(name + "/index.html")
		if err != nil {
			f.Close()
			return nil, err
		}
		index.Close()
	}
	return f, nil
}
