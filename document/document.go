// Package document holds the in-memory representation of stored records:
// documents, lazy proxies, lazy collections and the identity map.
package document

import (
	"context"
	"fmt"
	"sync"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// State is the initialization state of a document.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Status is the persistence lifecycle of a document.
type Status int

const (
	StatusTransient Status = iota
	StatusManaged
	StatusRemoved
	StatusDetached
)

func (s Status) String() string {
	switch s {
	case StatusTransient:
		return "transient"
	case StatusManaged:
		return "managed"
	case StatusRemoved:
		return "removed"
	case StatusDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Snapshot is what a Loader returns for a record that exists.
type Snapshot struct {
	Meta    *models.ClassMetadata
	Version int
	Fields  map[string]any
}

// Loader fetches the fields of a proxy. A nil snapshot with a nil error
// means the record does not exist.
type Loader interface {
	Load(ctx context.Context, rid models.RID) (*Snapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rid models.RID) (*Snapshot, error)

func (f LoaderFunc) Load(ctx context.Context, rid models.RID) (*Snapshot, error) {
	return f(ctx, rid)
}

// Document is a mapped record. A proxy is a document created uninitialized:
// only its RID and class are known until the first field access loads it.
// Initialization is serialized per document so concurrent first accesses
// share a single fetch.
type Document struct {
	mu      sync.Mutex
	meta    *models.ClassMetadata
	rid     models.RID
	version int
	fields  map[string]any
	state   State
	status  Status
	missing bool
	loader  Loader
	loading chan struct{}
}

// New returns a transient, initialized document owning fields.
func New(meta *models.ClassMetadata, fields map[string]any) *Document {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Document{
		meta:   meta,
		rid:    models.TransientRID,
		fields: fields,
		state:  StateInitialized,
		status: StatusTransient,
	}
}

// NewLoaded returns a managed document populated from a stored record.
func NewLoaded(meta *models.ClassMetadata, rid models.RID, version int, fields map[string]any) *Document {
	d := New(meta, fields)
	d.rid = rid
	d.version = version
	d.status = StatusManaged
	return d
}

// NewProxy returns an uninitialized document bound to rid. meta may be nil
// when the class is only known once the record is loaded.
func NewProxy(meta *models.ClassMetadata, rid models.RID, loader Loader) *Document {
	return &Document{
		meta:   meta,
		rid:    rid,
		state:  StateUninitialized,
		status: StatusManaged,
		loader: loader,
	}
}

// RID never triggers a fetch.
func (d *Document) RID() models.RID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rid
}

// HasRID reports whether the document is bound to a stored record.
func (d *Document) HasRID() bool {
	return !d.RID().IsTransient()
}

// Class returns the mapped class name, or "" for a proxy whose class is not
// known yet. It never triggers a fetch.
func (d *Document) Class() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.meta == nil {
		return ""
	}
	return d.meta.Name
}

// Meta may be nil for an uninitialized proxy of unknown class.
func (d *Document) Meta() *models.ClassMetadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta
}

func (d *Document) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Document) IsInitialized() bool {
	return d.State() == StateInitialized
}

func (d *Document) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Missing reports whether loading found no record behind the RID.
func (d *Document) Missing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.missing
}

// Activate loads a proxy. It is a no-op on initialized documents. A failed
// load leaves the document uninitialized so a later access retries.
func (d *Document) Activate(ctx context.Context) error {
	for {
		d.mu.Lock()
		switch d.state {
		case StateInitialized:
			d.mu.Unlock()
			return nil
		case StateInitializing:
			wait := d.loading
			d.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if d.loader == nil {
			d.mu.Unlock()
			return fmt.Errorf("document %s has no loader", d.rid)
		}
		d.state = StateInitializing
		d.loading = make(chan struct{})
		loader, rid := d.loader, d.rid
		d.mu.Unlock()

		snap, err := loader.Load(ctx, rid)

		d.mu.Lock()
		if err != nil {
			d.state = StateUninitialized
		} else {
			d.populateLocked(snap)
		}
		close(d.loading)
		d.loading = nil
		d.mu.Unlock()

		if err != nil {
			return fmt.Errorf("failed to load %s: %w", rid, err)
		}
		return nil
	}
}

func (d *Document) populateLocked(snap *Snapshot) {
	if snap == nil {
		d.missing = true
		d.fields = make(map[string]any)
	} else {
		if snap.Meta != nil {
			d.meta = snap.Meta
		}
		d.version = snap.Version
		d.fields = snap.Fields
		if d.fields == nil {
			d.fields = make(map[string]any)
		}
	}
	d.state = StateInitialized
	d.loader = nil
}

// Populate initializes an uninitialized proxy in place with already fetched
// data. It reports false and changes nothing if the document is initialized
// or being loaded.
func (d *Document) Populate(snap *Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateUninitialized {
		return false
	}
	d.populateLocked(snap)
	return true
}

// Get returns a field value, loading the proxy first if needed. Declared
// fields without a value read as nil.
func (d *Document) Get(ctx context.Context, name string) (any, error) {
	if err := d.Activate(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkFieldLocked(name); err != nil {
		return nil, err
	}
	return d.fields[name], nil
}

// Set assigns a field value, loading the proxy first if needed.
func (d *Document) Set(ctx context.Context, name string, value any) error {
	if err := d.Activate(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkFieldLocked(name); err != nil {
		return err
	}
	d.fields[name] = value
	return nil
}

// Unset removes a field value.
func (d *Document) Unset(ctx context.Context, name string) error {
	if err := d.Activate(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fields, name)
	return nil
}

// Fields returns a copy of all field values, loading the proxy first.
func (d *Document) Fields(ctx context.Context) (map[string]any, error) {
	if err := d.Activate(ctx); err != nil {
		return nil, err
	}
	return d.Snapshot(), nil
}

// Snapshot copies the current field values without loading. It returns nil
// for an uninitialized proxy.
func (d *Document) Snapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateInitialized {
		return nil
	}
	out := make(map[string]any, len(d.fields))
	for k, v := range d.fields {
		switch t := v.(type) {
		case []*Document:
			out[k] = append([]*Document(nil), t...)
		default:
			out[k] = models.CloneValue(v)
		}
	}
	return out
}

func (d *Document) checkFieldLocked(name string) error {
	if d.meta == nil || d.missing {
		return nil
	}
	if _, ok := d.meta.Field(name); !ok {
		return fmt.Errorf("%w: %s.%s", models.ErrUnknownField, d.meta.Name, name)
	}
	return nil
}

// Refresh replaces the fields of an initialized stored document in place
// with data fetched again. A nil snapshot means the record is gone. The
// document stays initialized; it reports false and changes nothing for
// transient documents and documents not yet loaded.
func (d *Document) Refresh(snap *Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateInitialized || d.rid.IsTransient() {
		return false
	}
	d.missing = false
	d.populateLocked(snap)
	return true
}

// AssignRID binds a transient document to its newly stored record.
func (d *Document) AssignRID(rid models.RID, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rid = rid
	d.version = version
	d.status = StatusManaged
	d.missing = false
}

// SetVersion records the stored version after an update.
func (d *Document) SetVersion(version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// MarkRemoved flags a document whose record was deleted. The RID is kept.
func (d *Document) MarkRemoved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusRemoved
}

// MarkManaged restores a removed or detached document to managed.
func (d *Document) MarkManaged() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.rid.IsTransient() {
		d.status = StatusManaged
	}
}

// Detach flags a document evicted from its identity map.
func (d *Document) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusDetached
}

func (d *Document) String() string {
	class := d.Class()
	if class == "" {
		class = "?"
	}
	return class + d.RID().String()
}
