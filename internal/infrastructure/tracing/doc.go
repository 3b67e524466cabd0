/*
Package tracing provides lightweight request tracing for the session host.

Spans carry a trace id that is propagated through X-Trace-ID and
X-Span-ID headers. Finished spans are handed to a collector goroutine
that writes them to the structured log, so a session's archived logs
show every request and outbound telemetry call made during it.

# Usage

	tracer := tracing.New("sessionhost", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "telemetry.features")
	headers := map[string]string{}
	tracing.Inject(ctx, headers)
	// ... perform the call ...
	span.Finish()
	tracer.Submit(span)
*/
package tracing
