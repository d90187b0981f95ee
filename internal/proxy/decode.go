package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decoderFunc wraps a compressed stream into a decoding reader.
type decoderFunc func(io.Reader) (io.ReadCloser, error)

var decoders = map[string]decoderFunc{
	"gzip": func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	"x-gzip": func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	"deflate": func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	},
	"br": func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(r)), nil
	},
	"zstd": func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	},
}

// decodeBody returns the upstream body with its content encodings
// removed. Stacked codings are undone in reverse order of application.
// If any coding is unknown the body is relayed untouched. The boolean
// result reports whether the relayed body no longer matches the
// upstream Content-Encoding header.
func decodeBody(res *http.Response) (io.ReadCloser, bool) {
	codings := contentCodings(res.Header)
	if len(codings) == 0 || !hasBody(res) {
		return res.Body, true
	}

	chain := make([]decoderFunc, 0, len(codings))
	for i := len(codings) - 1; i >= 0; i-- {
		decoder, ok := decoders[codings[i]]
		if !ok {
			return res.Body, false
		}
		chain = append(chain, decoder)
	}

	return &decodingReader{body: res.Body, chain: chain}, true
}

// contentCodings lists the codings of all Content-Encoding headers in
// order of application, without identity.
func contentCodings(h http.Header) []string {
	var codings []string

	for _, value := range h.Values("Content-Encoding") {
		for _, coding := range strings.Split(value, ",") {
			coding = strings.ToLower(strings.TrimSpace(coding))
			if coding == "" || coding == "identity" {
				continue
			}
			codings = append(codings, coding)
		}
	}

	return codings
}

func hasBody(res *http.Response) bool {
	if res.Request != nil && res.Request.Method == http.MethodHead {
		return false
	}

	switch {
	case res.StatusCode >= 100 && res.StatusCode < 200,
		res.StatusCode == http.StatusNoContent,
		res.StatusCode == http.StatusNotModified:
		return false
	}

	return res.ContentLength != 0
}

// decodingReader creates its decoders on first read, so header errors
// of the compressed stream surface while the body is relayed.
type decodingReader struct {
	body    io.ReadCloser
	chain   []decoderFunc
	readers []io.ReadCloser
	r       io.Reader
	err     error
}

func (d *decodingReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}

	if d.r == nil {
		var r io.Reader = d.body
		for _, decoder := range d.chain {
			rc, err := decoder(r)
			if err != nil {
				d.err = err
				return 0, err
			}
			d.readers = append(d.readers, rc)
			r = rc
		}
		d.r = r
	}

	return d.r.Read(p)
}

// Close closes the decoders from the outermost inwards, then the body.
func (d *decodingReader) Close() error {
	for i := len(d.readers) - 1; i >= 0; i-- {
		d.readers[i].Close()
	}

	return d.body.Close()
}
