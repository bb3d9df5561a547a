package capture

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"runtime"
	"sync"
	"time"
)

// BodyStatus describes what happened to a captured body.
type BodyStatus string

const (
	BodyCaptured    BodyStatus = "captured"
	BodySkipped     BodyStatus = "skipped"
	BodyParseFailed BodyStatus = "parse-failed"
	BodyStreaming   BodyStatus = "streaming"
)

// Valid reports whether s is a known status.
func (s BodyStatus) Valid() bool {
	switch s {
	case BodyCaptured, BodySkipped, BodyParseFailed, BodyStreaming:
		return true
	}
	return false
}

// Body is a sanitized payload or the reason it was not kept.
type Body struct {
	Status BodyStatus
	Value  any
}

// MarshalJSON emits the value of a captured body and the status marker
// string otherwise.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Status == BodyCaptured || b.Status == "" {
		return json.Marshal(b.Value)
	}
	return json.Marshal(string(b.Status))
}

// ErrorEntry is a failure observed while capturing an exchange.
type ErrorEntry struct {
	Source  string `json:"source"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error sources.
const (
	ErrorSourceOnError = "onError"
)

// ServerInfo describes the process that captured the exchange.
type ServerInfo struct {
	IP       string `json:"ip"`
	Timezone string `json:"timezone"`
	Software string `json:"software"`
	OSName   string `json:"os_name"`
	OSArch   string `json:"os_arch"`
	Hostname string `json:"hostname,omitempty"`
}

// LanguageInfo describes the runtime that captured the exchange.
type LanguageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RequestRecord is the sanitized request side of a Record.
type RequestRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	RoutePath string            `json:"route_path"`
	ClientIP  string            `json:"ip"`
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers"`
	Query     any               `json:"query"`
	Body      Body              `json:"body"`
	Size      int64             `json:"size"`
}

// ResponseRecord is the sanitized response side of a Record.
type ResponseRecord struct {
	Status     int               `json:"code"`
	Headers    map[string]string `json:"headers"`
	Body       Body              `json:"body"`
	Size       int64             `json:"size"`
	LoadTimeMS float64           `json:"load_time"`
}

// Record is the sanitized capture of one request/response exchange.
type Record struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	Server    ServerInfo     `json:"server"`
	Language  LanguageInfo   `json:"language"`
	Request   RequestRecord  `json:"request"`
	Response  ResponseRecord `json:"response"`
	Errors    []ErrorEntry   `json:"errors"`
}

// HasErrors reports whether any error entry was recorded.
func (r *Record) HasErrors() bool {
	return len(r.Errors) > 0
}

// Reporter receives finalized records. Report must not block the caller for
// long; implementations typically enqueue and persist in the background.
type Reporter interface {
	Report(ctx context.Context, record *Record)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, record *Record)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, record *Record) {
	f(ctx, record)
}

// Observer receives capture outcomes, typically for metrics.
type Observer interface {
	ObserveBody(direction Direction, status BodyStatus, size int64)
	ObserveTransformFailure(direction Direction)
	ObserveSession(state State)
}

type nopObserver struct{}

func (nopObserver) ObserveBody(Direction, BodyStatus, int64) {}
func (nopObserver) ObserveTransformFailure(Direction) {}
func (nopObserver) ObserveSession(State) {}

var currentServerInfo = sync.OnceValue(detectServerInfo)

// DetectServerInfo returns the server block attached to every record. It is
// computed once per process.
func DetectServerInfo() ServerInfo {
	return currentServerInfo()
}

func detectServerInfo() ServerInfo {
	info := ServerInfo{
		IP:       "bogon",
		Software: "net/http",
		OSName:   runtime.GOOS,
		OSArch:   runtime.GOARCH,
	}
	info.Timezone, _ = time.Now().Zone()

	hostname, err := os.Hostname()
	if err != nil {
		return info
	}
	info.Hostname = hostname

	addrs, err := net.LookupIP(hostname)
	if err != nil {
		return info
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			info.IP = v4.String()
			break
		}
	}
	return info
}

// CurrentLanguage returns the language block attached to every record.
func CurrentLanguage() LanguageInfo {
	return LanguageInfo{Name: "go", Version: runtime.Version()}
}
