// Package metrics holds the Prometheus instrumentation for the filesystem
// emulation layer. A fresh registry is created per instance so tests never
// fight over the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Instrumentation counts filesystem-level operations against the backing
// store. The counters mirror what operators need to spot hot paths: every
// backend round trip is either a read op or a write op.
type Instrumentation struct {
	reg *prometheus.Registry

	readOps  prometheus.Counter
	writeOps prometheus.Counter

	filesCreated prometheus.Counter
	filesCopied  prometheus.Counter
	filesDeleted prometheus.Counter
	dirsCreated  prometheus.Counter
	dirsDeleted  prometheus.Counter

	bytesCopied   prometheus.Counter
	bytesUploaded prometheus.Counter

	ignoredErrors prometheus.Counter
}

// New creates an Instrumentation with its own registry.
func New() *Instrumentation {
	reg := prometheus.NewRegistry()

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bucketfs",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}

	return &Instrumentation{
		reg:           reg,
		readOps:       counter("read_ops_total", "Backend calls that only read store state."),
		writeOps:      counter("write_ops_total", "Backend calls that mutate store state."),
		filesCreated:  counter("files_created_total", "Files created through the filesystem."),
		filesCopied:   counter("files_copied_total", "Objects copied server-side."),
		filesDeleted:  counter("files_deleted_total", "Objects deleted, including batch members."),
		dirsCreated:   counter("directories_created_total", "Directory markers created."),
		dirsDeleted:   counter("directories_deleted_total", "Directory markers deleted."),
		bytesCopied:   counter("bytes_copied_total", "Bytes moved by server-side copies."),
		bytesUploaded: counter("bytes_uploaded_total", "Bytes written through upload streams."),
		ignoredErrors: counter("ignored_errors_total", "Errors swallowed by best-effort paths."),
	}
}

// Handler serves the instance registry at /metrics.
func (in *Instrumentation) Handler() http.Handler {
	return promhttp.HandlerFor(in.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (in *Instrumentation) Registry() *prometheus.Registry { return in.reg }

func (in *Instrumentation) ReadOps(n int)  { in.readOps.Add(float64(n)) }
func (in *Instrumentation) WriteOps(n int) { in.writeOps.Add(float64(n)) }

func (in *Instrumentation) FileCreated()      { in.filesCreated.Inc() }
func (in *Instrumentation) FilesCopied(n int) { in.filesCopied.Add(float64(n)) }
func (in *Instrumentation) FilesDeleted(n int) {
	in.filesDeleted.Add(float64(n))
}
func (in *Instrumentation) DirectoryCreated() { in.dirsCreated.Inc() }
func (in *Instrumentation) DirectoryDeleted() { in.dirsDeleted.Inc() }

func (in *Instrumentation) BytesCopied(n int64)   { in.bytesCopied.Add(float64(n)) }
func (in *Instrumentation) BytesUploaded(n int64) { in.bytesUploaded.Add(float64(n)) }

// ErrorIgnored records a swallowed best-effort failure, e.g. during marker
// repair.
func (in *Instrumentation) ErrorIgnored() { in.ignoredErrors.Inc() }
