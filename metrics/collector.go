// Package metrics counts session outcomes for one rehearse process.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so callers may pass a nil
// collector when metrics are not wanted.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsSaved     int64 `json:"sessions_saved"`
	SessionsFailed    int64 `json:"sessions_failed"`
	SessionsCancelled int64 `json:"sessions_cancelled"`

	// Device and engine
	DeviceDenied   int64 `json:"device_denied"`
	EngineFailures int64 `json:"engine_failures"`
	EngineMisuse   int64 `json:"engine_misuse"`
	ChunksRecorded int64 `json:"chunks_recorded"`
	BytesRecorded  int64 `json:"bytes_recorded"`

	// Upload
	UploadSuccess int64 `json:"upload_success"`
	UploadFailure int64 `json:"upload_failure"`

	// Journal
	JournalWriteSuccess int64 `json:"journal_write_success"`
	JournalWriteFailure int64 `json:"journal_write_failure"`

	// Dimensions (informational, set at construction)
	Device         string `json:"device"`
	Encoder        string `json:"encoder"`
	StorageBackend string `json:"storage_backend"`
}

// Collector accumulates counters across sessions.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsSaved     int64
	sessionsFailed    int64
	sessionsCancelled int64

	deviceDenied   int64
	engineFailures int64
	engineMisuse   int64
	chunksRecorded int64
	bytesRecorded  int64

	uploadSuccess int64
	uploadFailure int64

	journalWriteSuccess int64
	journalWriteFailure int64

	device         string
	encoder        string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(device, encoder, storageBackend string) *Collector {
	return &Collector{
		device:         device,
		encoder:        encoder,
		storageBackend: storageBackend,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a question selection.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsStarted, 1)
}

// IncSessionSaved records a session that reached saved.
func (c *Collector) IncSessionSaved() {
	if c == nil {
		return
	}
	c.add(&c.sessionsSaved, 1)
}

// IncSessionFailed records a session that reached failed.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.add(&c.sessionsFailed, 1)
}

// IncSessionCancelled records a cancelled session.
func (c *Collector) IncSessionCancelled() {
	if c == nil {
		return
	}
	c.add(&c.sessionsCancelled, 1)
}

// --- Device and engine ---

// IncDeviceDenied records a refused device acquisition.
func (c *Collector) IncDeviceDenied() {
	if c == nil {
		return
	}
	c.add(&c.deviceDenied, 1)
}

// IncEngineFailure records an engine start or stop failure.
func (c *Collector) IncEngineFailure() {
	if c == nil {
		return
	}
	c.add(&c.engineFailures, 1)
}

// IncEngineMisuse records an out-of-order engine call.
func (c *Collector) IncEngineMisuse() {
	if c == nil {
		return
	}
	c.add(&c.engineMisuse, 1)
}

// AddRecorded records chunks accepted into the buffer.
func (c *Collector) AddRecorded(chunks, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksRecorded += chunks
	c.bytesRecorded += bytes
	c.mu.Unlock()
}

// --- Upload ---
// Upload counters are per save attempt. A retried save counts once per try.

// IncUploadSuccess records a successful submit.
func (c *Collector) IncUploadSuccess() {
	if c == nil {
		return
	}
	c.add(&c.uploadSuccess, 1)
}

// IncUploadFailure records a failed submit.
func (c *Collector) IncUploadFailure() {
	if c == nil {
		return
	}
	c.add(&c.uploadFailure, 1)
}

// --- Journal ---

// IncJournalWriteSuccess records a successful journal write (per call).
func (c *Collector) IncJournalWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteSuccess, 1)
}

// IncJournalWriteFailure records a failed journal write (per call).
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsSaved:     c.sessionsSaved,
		SessionsFailed:    c.sessionsFailed,
		SessionsCancelled: c.sessionsCancelled,

		DeviceDenied:   c.deviceDenied,
		EngineFailures: c.engineFailures,
		EngineMisuse:   c.engineMisuse,
		ChunksRecorded: c.chunksRecorded,
		BytesRecorded:  c.bytesRecorded,

		UploadSuccess: c.uploadSuccess,
		UploadFailure: c.uploadFailure,

		JournalWriteSuccess: c.journalWriteSuccess,
		JournalWriteFailure: c.journalWriteFailure,

		Device:         c.device,
		Encoder:        c.encoder,
		StorageBackend: c.storageBackend,
	}
}
