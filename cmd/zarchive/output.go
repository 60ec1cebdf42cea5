package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BadgerOps/zarchive/internal/archive"
	"github.com/BadgerOps/zarchive/internal/store"
)

// errReported is returned once a failure payload has been printed, so main
// exits non-zero without printing the error again.
var errReported = errors.New("failure reported")

// failurePayload is printed instead of a result when a run fails.
type failurePayload struct {
	Failed    bool   `json:"failed"`
	Msg       string `json:"msg"`
	RC        int    `json:"rc"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	DestState string `json:"dest_state,omitempty"`
	Result    any    `json:"result,omitempty"`
}

func newFailurePayload(err error, partial any) failurePayload {
	p := failurePayload{Failed: true, Msg: err.Error(), RC: 1, Result: partial}
	var f *archive.Failure
	if errors.As(err, &f) {
		p.Msg = f.Error()
		if f.RC != 0 {
			p.RC = f.RC
		}
		p.Stdout = f.Stdout
		p.Stderr = f.Stderr
		p.DestState = string(f.DestState)
	}
	return p
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// report prints the result, or the failure payload when err is set.
func report(w io.Writer, result any, err error) error {
	if err == nil {
		return printJSON(w, result)
	}
	if perr := printJSON(w, newFailurePayload(err, result)); perr != nil {
		return perr
	}
	return errReported
}

// startRun records a running entry in the history store. It returns nil
// when history is disabled.
func startRun(operation string, format archive.FormatType, src []string, dest string) *store.Run {
	if globalStore == nil {
		return nil
	}
	run := &store.Run{
		Operation: operation,
		Format:    string(format),
		Src:       strings.Join(src, ","),
		Dest:      dest,
		StartTime: time.Now().UTC(),
	}
	if err := globalStore.CreateRun(run); err != nil {
		logger.Warn("failed to record run", "error", err)
		return nil
	}
	return run
}

// finishRun completes a history entry. fill copies result fields into run.
func finishRun(run *store.Run, err error, fill func(*store.Run)) {
	if run == nil {
		return
	}
	run.EndTime = time.Now().UTC()
	run.Status = "success"
	if fill != nil {
		fill(run)
	}
	if err != nil {
		run.Status = "failed"
		run.ErrorMessage = err.Error()
	}
	if uerr := globalStore.UpdateRun(run); uerr != nil {
		logger.Warn("failed to update run", "id", run.ID, "error", uerr)
	}
}
