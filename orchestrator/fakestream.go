package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basuigw/gemigate/dialect"
	"github.com/basuigw/gemigate/gwerrors"
)

// FakeStream serves a unary response as a single-chunk SSE stream with
// heartbeat padding while the unary call is pending: two cooperating
// tasks, a producer running the unary call and a consumer alternating
// between polling the producer's completion and emitting a heartbeat.
// Built on golang.org/x/sync/errgroup; cancelling the consumer (client
// disconnect) cancels the producer via the shared errgroup context.
func (o *Orchestrator) FakeStream(ctx context.Context, d dialect.Dialect) (<-chan Frame, error) {
	heartbeat := time.Duration(o.FakeStreamHeartbeatSecs) * time.Second
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}

	out := make(chan Frame)
	group, groupCtx := errgroup.WithContext(ctx)

	resultCh := make(chan *Result, 1)
	group.Go(func() error {
		defer close(resultCh)
		result, err := o.Unary(groupCtx, d)
		if err != nil {
			return err
		}
		resultCh <- result
		return nil
	})

	go func() {
		defer close(out)

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case result, ok := <-resultCh:
				if !ok {
					// Producer closed without sending: it failed. Wait()
					// below surfaces the error.
					continue
				}
				encoded, err := json.Marshal(result.Body)
				if err != nil {
					out <- Frame{Err: gwerrors.New(gwerrors.CodeInternal, "failed to encode fake-stream result").WithCause(err)}
					return
				}
				out <- Frame{Data: "data: " + string(encoded) + "\n\n"}
				out <- Frame{Data: d.StreamTerminator()}
				return
			case <-ticker.C:
				out <- Frame{Data: "data: {}\n\n"}
			case <-groupCtx.Done():
				if err := group.Wait(); err != nil {
					out <- Frame{Err: err}
				}
				return
			}
		}
	}()

	return out, nil
}
