package remote

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
)

// Prober issues one liveness check. Any response counts as alive.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// CommandProber runs the probe command (curl by default) through an Executor,
// so it can reach servers bound to the remote loopback interface.
type CommandProber struct {
	Exec    Executor
	Tmpl    *Templates
	Command string
	Timeout int // seconds
}

func (p CommandProber) Probe(ctx context.Context, url string) error {
	cmd, err := p.Tmpl.Render(p.Command, CommandData{URL: url, Timeout: p.Timeout})
	if err != nil {
		return err
	}
	res, err := p.Exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errors.Newf("no response from %s (exit status %d)", url, res.ExitStatus)
	}
	return nil
}

// HTTPProber probes from this machine with fasthttp
type HTTPProber struct {
	Client  *fasthttp.Client
	Timeout time.Duration
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client: &fasthttp.Client{
			ReadTimeout:                   timeout,
			WriteTimeout:                  timeout,
			MaxIdleConnDuration:           time.Second,
			DisableHeaderNamesNormalizing: true,
		},
		Timeout: timeout,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.Client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return errors.Wrapf(err, "no response from %s within %s", url, p.Timeout)
		}
		return errors.Wrapf(err, "probing %s", url)
	}
	// any status code means the server is up
	return nil
}
