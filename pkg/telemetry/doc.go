// Package telemetry provides observability instrumentation for Homestead.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at startup and shut it down on exit:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Tracing
//
// Every run opens a "run.execute" span, every action a child span named
// after the execution mode ("action.dry-run" or "action.apply"), and every
// package provider call a "provider.<operation>" span. Exporters: stdout,
// otlp (gRPC) and none.
//
// # Metrics
//
// Available metrics:
//   - homestead_runs_total{mode,status}
//   - homestead_run_duration_seconds{mode,status}
//   - homestead_actions_total{kind,mode,status}
//   - homestead_action_duration_seconds{kind,mode}
//   - homestead_provider_calls_total{provider,operation}
//   - homestead_provider_call_duration_seconds{provider,operation}
//   - homestead_provider_errors_total{provider,operation}
//
// A one-shot CLI has no scrape endpoint, so metrics are written to a
// textfile at shutdown when MetricsConfig.TextfilePath is set.
package telemetry
