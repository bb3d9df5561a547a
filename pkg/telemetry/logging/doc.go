// Package logging builds the process logger.
//
// New returns a *slog.Logger configured from Config:
//   - JSON or text output at the configured level
//   - optional file output rotated by lumberjack
//   - redaction of attributes whose keys are sensitive, using the same key
//     set as body masking, plus bearer tokens found in string values
//   - request_id, trace_id and span_id taken from the context of *Context calls
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	slog.SetDefault(logger.Logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "request processed", "authorization", "Bearer abc")
//	// {"msg":"request processed","authorization":"***","request_id":"req-123"}
package logging
