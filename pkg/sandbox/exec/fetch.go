package exec

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/portofcontext/pctx/pkg/gwerrors"
)

// fetchOp installs the sandboxed fetch(url, options) global (spec.md §6):
// a host-allow-listed subset of the web fetch contract. No streaming body,
// no redirects followed automatically beyond what net/http already does by
// default, and the response body is always read fully (up to
// deps.MaxFetchBodyBytes) and handed back as a string.
func fetchOp(vm *goja.Runtime, loop *eventloop.EventLoop, ctx context.Context, deps Deps) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()

		if len(call.Arguments) == 0 || goja.IsUndefined(call.Argument(0)) {
			reject(vm.ToValue("fetch: url is required"))
			return vm.ToValue(promise)
		}
		rawURL := call.Argument(0).String()

		var opts struct {
			Method  string            `json:"method"`
			Headers map[string]string `json:"headers"`
			Body    string            `json:"body"`
		}
		if len(call.Arguments) > 1 {
			if err := vm.ExportTo(call.Argument(1), &opts); err != nil {
				reject(vm.ToValue("fetch: invalid options: " + err.Error()))
				return vm.ToValue(promise)
			}
		}

		if !deps.AllowList.Allowed(rawURL) {
			reject(vm.ToValue(gwerrors.ErrHostNotAllowed.Error() + ": " + rawURL))
			return vm.ToValue(promise)
		}

		method := opts.Method
		if method == "" {
			method = http.MethodGet
		}

		go func() {
			respJS, err := performFetch(ctx, method, rawURL, opts.Headers, opts.Body, deps.MaxFetchBodyBytes)
			loop.RunOnLoop(func(vm *goja.Runtime) {
				if err != nil {
					reject(vm.ToValue(err.Error()))
					return
				}
				resolve(vm.ToValue(respJS))
			})
		}()

		return vm.ToValue(promise)
	}
}

type fetchResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func performFetch(ctx context.Context, method, rawURL string, headers map[string]string, body string, maxBody int64) (*fetchResponse, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := maxBody
	if limit <= 0 {
		limit = defaultMaxFetchBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}

	hdrs := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		hdrs[k] = resp.Header.Get(k)
	}

	return &fetchResponse{Status: resp.StatusCode, Headers: hdrs, Body: string(data)}, nil
}
