package catgenie

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const maxBodyBytes = 4 << 20

// readBody decodes the response according to Content-Encoding. The client
// sets Accept-Encoding itself, so net/http leaves decompression to us.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		buffered := bufio.NewReader(resp.Body)
		head, err := buffered.Peek(2)
		if err == nil && isZlibHeader(head) {
			zr, err := zlib.NewReader(buffered)
			if err != nil {
				return nil, fmt.Errorf("deflate body: %w", err)
			}
			defer zr.Close()
			reader = zr
		} else {
			fr := flate.NewReader(buffered)
			defer fr.Close()
			reader = fr
		}
	case "br":
		reader = brotli.NewReader(resp.Body)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

func isZlibHeader(head []byte) bool {
	if len(head) < 2 {
		return false
	}
	return head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0
}
