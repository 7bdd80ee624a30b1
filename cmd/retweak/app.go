package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/funnyzak/retweak/internal/config"
	"github.com/funnyzak/retweak/internal/dispatch"
	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/internal/report"
	"github.com/funnyzak/retweak/internal/storage"
	"github.com/funnyzak/retweak/internal/transport"
	"github.com/funnyzak/retweak/pkg/headers"
	"github.com/funnyzak/retweak/pkg/tweak"
	"github.com/funnyzak/retweak/pkg/values"
	"github.com/funnyzak/retweak/pkg/wordlists"
)

var errNoList = errors.New("no list of values provided, use -l <values/@file>")

// preset is the fixed part of the hosts, methods and urls commands
type preset struct {
	list  string
	tweak tweak.Target
	// hostHeader adds "host: *" to the header block
	hostHeader bool
}

var (
	hostsPreset   = &preset{list: wordlists.Ref(wordlists.Hosts), tweak: tweak.TargetHeader, hostHeader: true}
	methodsPreset = &preset{list: wordlists.Ref(wordlists.Methods), tweak: tweak.TargetMethod}
	urlsPreset    = &preset{list: wordlists.Ref(wordlists.URLEncoded), tweak: tweak.TargetURL}
)

// app holds the process level dependencies of a run
type app struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	log    logger.Logger
}

// runResult describes a finished run
type runResult struct {
	RunID   string
	Target  tweak.Target
	Summary dispatch.Summary
}

// run tweaks rawURL according to cfg. cfg must be validated.
func (a *app) run(ctx context.Context, cfg *config.Config, rawURL string, p *preset) (*runResult, error) {
	loader := values.NewLoader(a.fs)

	plan, err := a.compile(loader, cfg, rawURL, p)
	if err != nil {
		return nil, err
	}

	ignoreRef := cfg.Report.IgnoreHeaders
	if ignoreRef == "" {
		ignoreRef = wordlists.Ref(wordlists.IgnoreHeaders)
	}
	ignore, err := loader.Load(ignoreRef)
	if err != nil {
		return nil, err
	}

	sink := report.NewWriterSink(a.stdout, a.stderr)
	quiet := cfg.Report.Quiet
	if !quiet {
		printBanner(a.stderr)
		sink.Warn("Tweaking request " + string(plan.Strategy.Target))
		sink.Warn(fmt.Sprintf("Sending %d requests", len(plan.Values)))
	}

	result := &runResult{RunID: uuid.NewString(), Target: plan.Strategy.Target}
	log := a.log.With("run_id", result.RunID)

	handlers := []dispatch.Handler{report.NewReporter(sink, report.Options{
		IgnoreHeaders: ignore,
		MaxData:       cfg.Report.MaxDataBytes,
		Quiet:         quiet,
	})}

	if cfg.Output.Path != "" {
		recorder, err := report.NewRecorder(a.fs, cfg.Output.Path, cfg.Output.Format, result.RunID, log)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Error("Failed to close output file", "path", cfg.Output.Path, "error", err)
			}
		}()
		handlers = append(handlers, recorder)
	}

	if cfg.Storage.Path != "" {
		store, err := storage.New(&cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		defer store.Close()
		handlers = append(handlers, storage.NewRecorder(store, result.RunID, log))
	}

	tr := transport.New(log, transportOptions(&cfg.Transport))
	defer tr.Close()

	engine := dispatch.New(tr, log, dispatch.Options{
		Mode:          cfg.Dispatch.Mode,
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
	}, handlers...)

	log.Info("Run started",
		"url", rawURL,
		"method", plan.Method,
		"tweak", string(plan.Strategy.Target),
		"values", len(plan.Values),
		"mode", cfg.Dispatch.Mode,
	)

	result.Summary, err = engine.Run(ctx, plan.Values, plan)
	if err != nil {
		return result, err
	}

	if !quiet {
		sink.Warn(summaryLine(result.Summary))
	}
	log.Info("Run finished",
		"sent", result.Summary.Sent,
		"failed", result.Summary.Failed,
		"bytes", result.Summary.Bytes,
	)

	return result, nil
}

func (a *app) compile(loader *values.Loader, cfg *config.Config, rawURL string, p *preset) (*tweak.Plan, error) {
	req := cfg.Request

	rawHeaders, err := loader.Read(req.Headers)
	if err != nil {
		return nil, err
	}
	delimiter := values.SplitOn(req.Headers)

	data, err := loader.Read(req.Data)
	if err != nil {
		return nil, err
	}

	listRef := req.List
	target := req.Tweak
	if p != nil {
		if listRef == "" {
			listRef = p.list
		}
		target = string(p.tweak)
		if p.hostHeader {
			// host leads the block so its marker is found before any "*" in other values.
			rest := headers.Parse(rawHeaders, delimiter)
			delete(rest, "host")
			rawHeaders = "host: " + tweak.Marker
			if len(rest) > 0 {
				rawHeaders += "," + headers.Format(rest, ",")
			}
			delimiter = ","
		}
	}
	if listRef == "" {
		return nil, errNoList
	}

	list, err := loader.Load(listRef)
	if err != nil {
		return nil, err
	}

	return tweak.Compile(tweak.Options{
		URL:             rawURL,
		Method:          req.Method,
		Target:          target,
		Headers:         rawHeaders,
		HeaderDelimiter: delimiter,
		Data:            data,
		Values:          list,
	})
}

func transportOptions(cfg *config.TransportConfig) transport.Options {
	return transport.Options{
		Timeout:               time.Duration(cfg.Timeout) * time.Second,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       time.Duration(cfg.IdleConnTimeout) * time.Second,
		TLSHandshakeTimeout:   time.Duration(cfg.TLSHandshakeTimeout) * time.Second,
		ExpectContinueTimeout: time.Duration(cfg.ExpectContinueTimeout) * time.Second,
		TLSInsecureSkipVerify: cfg.Insecure,
		DecodeBody:            cfg.DecodeBody,
	}
}

func summaryLine(s dispatch.Summary) string {
	return fmt.Sprintf("Done: %s sent, %s succeeded, %s failed, %s received in %s",
		humanize.Comma(int64(s.Sent)),
		humanize.Comma(int64(s.Succeeded)),
		humanize.Comma(int64(s.Failed)),
		humanize.Bytes(uint64(s.Bytes)),
		s.Duration.Round(time.Millisecond),
	)
}
