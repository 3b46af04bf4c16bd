// Package telemetry exports gate decisions as OTLP log records over gRPC,
// so decisions show up next to Claude Code's own telemetry in a collector.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/nixlim/devkit-gates/internal/audit"
	"github.com/nixlim/devkit-gates/internal/config"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

const (
	// EventName is the OTLP event name attached to every exported decision.
	EventName = "devkit_gates.decision"
	scopeName = "github.com/nixlim/devkit-gates"
)

// Exporter sends one OTLP log record per decision. It implements
// audit.Logger.
type Exporter struct {
	endpoint    string
	serviceName string
	timeout     time.Duration

	conn   *grpc.ClientConn
	client collogspb.LogsServiceClient
}

// NewExporter creates an exporter for cfg. It returns nil and no error when
// no otlp_endpoint is configured. The connection is established lazily by
// the first export.
func NewExporter(cfg config.TelemetryConfig) (*Exporter, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, nil
	}

	conn, err := grpc.NewClient(cfg.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP client for %s: %w", cfg.OTLPEndpoint, err)
	}

	return &Exporter{
		endpoint:    cfg.OTLPEndpoint,
		serviceName: cfg.ServiceName,
		timeout:     time.Duration(cfg.TimeoutMS) * time.Millisecond,
		conn:        conn,
		client:      collogspb.NewLogsServiceClient(conn),
	}, nil
}

// Record exports e. The call is bounded by the configured timeout so an
// unreachable collector cannot stall the hook.
func (x *Exporter) Record(ctx context.Context, e audit.Entry) error {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	req := BuildRequest(x.serviceName, e)
	resp, err := x.client.Export(ctx, req)
	if err != nil {
		return fmt.Errorf("exporting decision (%d bytes) to %s: %w", proto.Size(req), x.endpoint, err)
	}
	if ps := resp.GetPartialSuccess(); ps.GetRejectedLogRecords() > 0 {
		return fmt.Errorf("collector at %s rejected decision: %s", x.endpoint, ps.GetErrorMessage())
	}
	return nil
}

func (x *Exporter) Close() error {
	return x.conn.Close()
}

// BuildRequest converts one decision into an OTLP logs export request.
// Blocks are exported at WARN severity and allows at INFO; the body carries
// the block reason, or "allow".
func BuildRequest(serviceName string, e audit.Entry) *collogspb.ExportLogsServiceRequest {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	severity := logspb.SeverityNumber_SEVERITY_NUMBER_INFO
	body := e.Decision
	if e.Blocked() {
		severity = logspb.SeverityNumber_SEVERITY_NUMBER_WARN
		body = e.Reason
	}

	attrs := []*commonpb.KeyValue{
		stringAttr("gate", e.Gate),
		stringAttr("decision", e.Decision),
		intAttr("duration_us", e.Duration.Microseconds()),
	}
	for _, kv := range []struct{ key, value string }{
		{"hook_event_name", e.HookEvent},
		{"tool_name", e.ToolName},
		{"session.id", e.SessionID},
		{"cwd", e.CWD},
		{"decision.id", e.ID},
	} {
		if kv.value != "" {
			attrs = append(attrs, stringAttr(kv.key, kv.value))
		}
	}

	record := &logspb.LogRecord{
		TimeUnixNano:         uint64(ts.UnixNano()),
		ObservedTimeUnixNano: uint64(ts.UnixNano()),
		SeverityNumber:       severity,
		SeverityText:         severityText(severity),
		EventName:            EventName,
		Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: body}},
		Attributes:           attrs,
	}

	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{stringAttr("service.name", serviceName)},
				},
				ScopeLogs: []*logspb.ScopeLogs{
					{
						Scope:      &commonpb.InstrumentationScope{Name: scopeName},
						LogRecords: []*logspb.LogRecord{record},
					},
				},
			},
		},
	}
}

func severityText(s logspb.SeverityNumber) string {
	if s == logspb.SeverityNumber_SEVERITY_NUMBER_WARN {
		return "WARN"
	}
	return "INFO"
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}}
}
