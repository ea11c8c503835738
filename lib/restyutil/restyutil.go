// Package restyutil dumps full request/response transcripts to disk, for
// debugging portal scrapes whose failures only make sense with the raw
// traffic in front of you.
package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears dir and recreates it, one file per message.
func NewFilesystemOutput(dir string) FilesystemOutput {
	os.RemoveAll(dir)
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{directory: dir}
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// `output` can be nil, if it is, then the function is a no-op
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		output.Write(id, formatHttpMessage(res))
		slog.DebugContext(
			res.Request.Context(), "request completed",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"message_id", id,
		)
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		slog.ErrorContext(
			req.Context(), "request failed",
			"method", req.Method,
			"url", req.URL,
			"err", err,
		)
	})
}
