package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/felixgeelhaar/statekit"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/observability"
)

// Orchestrator states. The interpreter owns the transitions; the
// orchestrator only sends events and reads the current value.
const (
	StateDisconnected = "disconnected"
	StateOnline       = "online"
	StatePending      = "pending"
	StateSyncing      = "syncing"
	StateOffline      = "offline"
	StateError        = "error"
)

const (
	eventLink        = "LINK"
	eventDisconnect  = "DISCONNECT"
	eventMutate      = "MUTATE"
	eventSyncStart   = "SYNC_START"
	eventSyncOK      = "SYNC_OK"
	eventSyncFail    = "SYNC_FAIL"
	eventWentOffline = "WENT_OFFLINE"
	eventBackOnline  = "BACK_ONLINE"
)

// machineContext is the (empty) context carried by the state machine;
// the orchestrator keeps its own state under its mutex.
type machineContext struct{}

// DataSource is the local dataset the orchestrator keeps in sync.
// Implementations must be safe for concurrent use.
type DataSource interface {
	// Snapshot returns the current local dataset.
	Snapshot(ctx context.Context) (*models.SyncData, error)
	// Apply replaces the local dataset with server-reconciled state.
	Apply(ctx context.Context, data *models.SyncData) error
	// LastModified returns the local modification time in millis.
	LastModified(ctx context.Context) (int64, error)
}

// NotificationKind classifies orchestrator callbacks.
type NotificationKind int

const (
	// NotifyStateChanged fires on every machine transition.
	NotifyStateChanged NotificationKind = iota
	// NotifyMerged fires when server-reconciled data replaced local state.
	NotifyMerged
	// NotifyQueueFlushed fires after offline writes were replayed.
	NotifyQueueFlushed
	// NotifyQueueDropped fires for a queued write the server rejected;
	// the entry is removed because replaying it again cannot succeed.
	NotifyQueueDropped
	// NotifyError fires on a sync failure that gave up retrying.
	NotifyError
)

// Notification is delivered to the orchestrator's callback. Callbacks
// run on orchestrator goroutines and must not block.
type Notification struct {
	Kind    NotificationKind
	State   string
	Data    *models.SyncData
	Flushed int
	Err     error
}

// Config tunes the orchestrator's timing.
type Config struct {
	// Debounce delays a push after a local mutation so rapid edits
	// coalesce into one request.
	Debounce time.Duration
	// PollInterval is the cadence of background pulls while linked
	// and in the foreground.
	PollInterval time.Duration
	// ProbeInterval is the connectivity check cadence while offline.
	ProbeInterval time.Duration
	// MaxAttempts bounds push tries per sync cycle. The waits between
	// tries double from RetryBase, so the default of 5 tries waits
	// 1s, 2s, 4s and 8s before giving up.
	MaxAttempts int
	// RetryBase is the first retry delay; later attempts double it.
	RetryBase time.Duration
}

// DefaultConfig matches the timing of the original client.
func DefaultConfig() Config {
	return Config{
		Debounce:      time.Second,
		PollInterval:  60 * time.Second,
		ProbeInterval: 15 * time.Second,
		MaxAttempts:   5,
		RetryBase:     time.Second,
	}
}

// Orchestrator drives the sync lifecycle: debounced pushes, periodic
// pulls, offline queueing and recovery.
type Orchestrator struct {
	cfg       Config
	transport *Transport
	store     *Store
	identity  *Identity
	source    DataSource
	notify    func(Notification)

	interp  *statekit.Interpreter[machineContext]
	watcher *ConnectivityWatcher

	mu            sync.Mutex
	code          string
	cursor        int64
	foreground    bool
	started       bool
	debounceTimer *time.Timer

	// pushMu and pullMu serialize their operation; at most one push
	// and one pull are in flight at any time.
	pushMu sync.Mutex
	pullMu sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewOrchestrator wires an orchestrator over its collaborators. A nil
// notify callback is allowed. Call Start to begin syncing.
func NewOrchestrator(cfg Config, transport *Transport, store *Store, identity *Identity, source DataSource, notify func(Notification)) (*Orchestrator, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}

	o := &Orchestrator{
		cfg:        cfg,
		transport:  transport,
		store:      store,
		identity:   identity,
		source:     source,
		notify:     notify,
		foreground: true,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}

	interp, err := buildSyncMachine()
	if err != nil {
		return nil, err
	}
	o.interp = interp
	o.watcher = NewConnectivityWatcher(transport, cfg.ProbeInterval, o.onConnectivity)

	return o, nil
}

func buildSyncMachine() (*statekit.Interpreter[machineContext], error) {
	machine, err := statekit.NewMachine[machineContext]("sync-orchestrator").
		WithInitial(StateDisconnected).
		WithContext(machineContext{}).
		State(StateDisconnected).
		On(eventLink).Target(StateOnline).Done().
		State(StateOnline).
		On(eventMutate).Target(StatePending).
		On(eventSyncStart).Target(StateSyncing).
		On(eventWentOffline).Target(StateOffline).
		On(eventDisconnect).Target(StateDisconnected).Done().
		State(StatePending).
		On(eventMutate).Target(StatePending).
		On(eventSyncStart).Target(StateSyncing).
		On(eventWentOffline).Target(StateOffline).
		On(eventDisconnect).Target(StateDisconnected).Done().
		State(StateSyncing).
		On(eventSyncOK).Target(StateOnline).
		On(eventSyncFail).Target(StateError).
		On(eventWentOffline).Target(StateOffline).
		On(eventDisconnect).Target(StateDisconnected).Done().
		State(StateOffline).
		On(eventMutate).Target(StateOffline).
		On(eventBackOnline).Target(StateSyncing).
		On(eventDisconnect).Target(StateDisconnected).Done().
		State(StateError).
		On(eventMutate).Target(StatePending).
		On(eventSyncStart).Target(StateSyncing).
		On(eventWentOffline).Target(StateOffline).
		On(eventDisconnect).Target(StateDisconnected).Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() string {
	return string(o.interp.State().Value)
}

// Code returns the linked account code, empty when disconnected.
func (o *Orchestrator) Code() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code
}

// Start restores the persisted link, starts the interpreter, the
// connectivity watcher and the poll loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	info, err := o.store.EnsureSyncInfo(ctx, o.identity)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.code = info.Code
	o.cursor = info.ServerUpdated
	o.started = true
	o.mu.Unlock()

	o.interp.Start()
	o.watcher.Start()
	go o.pollLoop()

	if info.Code != "" {
		o.send(eventLink)
		go o.syncNow(context.Background())
	}
	return nil
}

// CreateAccount mints a new account, seeds it with the local dataset
// and links this device.
func (o *Orchestrator) CreateAccount(ctx context.Context) (string, error) {
	code, err := o.transport.CreateAccount(ctx)
	if err != nil {
		return "", err
	}

	snapshot, err := o.source.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	if snapshot.HasItems() {
		localUpdated, _ := o.source.LastModified(ctx)
		pushResp, err := o.transport.Push(ctx, code, o.identity, snapshot, localUpdated)
		if err != nil {
			return "", err
		}
		o.setCursor(pushResp.ServerUpdatedAt)
	}

	if _, err := o.transport.Login(ctx, code, o.identity); err != nil {
		return "", err
	}

	if err := o.saveLink(ctx, code); err != nil {
		return "", err
	}
	o.send(eventLink)
	return code, nil
}

// Link joins an existing account. When the server already holds items
// they replace local state; otherwise the local dataset seeds the
// account.
func (o *Orchestrator) Link(ctx context.Context, code string) error {
	code = models.NormalizeCode(code)

	resp, err := o.transport.Login(ctx, code, o.identity)
	if err != nil {
		return err
	}

	if resp.Data != nil && resp.Data.HasItems() {
		if err := o.source.Apply(ctx, resp.Data); err != nil {
			return err
		}
		o.setCursor(resp.Data.UpdatedAt)
		o.emit(Notification{Kind: NotifyMerged, Data: resp.Data})
	} else {
		snapshot, err := o.source.Snapshot(ctx)
		if err != nil {
			return err
		}
		if snapshot.HasItems() {
			localUpdated, _ := o.source.LastModified(ctx)
			pushResp, err := o.transport.Push(ctx, code, o.identity, snapshot, localUpdated)
			if err != nil {
				return err
			}
			o.setCursor(pushResp.ServerUpdatedAt)
		}
	}

	if err := o.saveLink(ctx, code); err != nil {
		return err
	}
	o.send(eventLink)
	return nil
}

// Disconnect unlinks this device locally. When unlinkRemote is set
// the server registration is removed too; a network failure there is
// not fatal, the device just ages out server-side.
func (o *Orchestrator) Disconnect(ctx context.Context, unlinkRemote bool) error {
	o.mu.Lock()
	code := o.code
	o.code = ""
	o.cursor = 0
	o.mu.Unlock()

	if unlinkRemote && code != "" {
		if err := o.transport.Unlink(ctx, code, o.identity.DeviceID); err != nil {
			observability.Warnf("remote unlink failed: %v", err)
		}
	}

	info, err := o.store.EnsureSyncInfo(ctx, o.identity)
	if err != nil {
		return err
	}
	info.Code = ""
	info.ServerUpdated = 0
	if err := o.store.SaveSyncInfo(ctx, info); err != nil {
		return err
	}

	o.send(eventDisconnect)
	return nil
}

// NotifyMutation reports a local edit. Pushes are debounced so bursts
// of edits produce one request.
func (o *Orchestrator) NotifyMutation() {
	if o.Code() == "" {
		return
	}
	o.send(eventMutate)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.cfg.Debounce, func() {
		o.syncNow(context.Background())
	})
}

// SetForeground toggles background mode. Background mode pauses the
// poll loop; pushes still happen. Going to the background with a
// pending debounce flushes it immediately, going back to the
// foreground pulls immediately.
func (o *Orchestrator) SetForeground(fg bool) {
	o.mu.Lock()
	wasBackground := !o.foreground
	o.foreground = fg
	pending := false
	if !fg && o.debounceTimer != nil && o.debounceTimer.Stop() {
		pending = true
		o.debounceTimer = nil
	}
	o.mu.Unlock()

	if o.Code() == "" {
		return
	}

	if !fg && pending {
		go o.syncNow(context.Background())
		return
	}
	if fg && wasBackground {
		go o.pullOnce(context.Background())
	}
}

// Flush pushes any pending local state immediately, bypassing the
// debounce.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if o.Code() == "" {
		return nil
	}
	return o.syncNow(ctx)
}

// Close flushes pending changes with a short deadline and stops all
// background work.
func (o *Orchestrator) Close() error {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		started := o.started
		if o.debounceTimer != nil {
			o.debounceTimer.Stop()
			o.debounceTimer = nil
		}
		o.mu.Unlock()
		if !started {
			return
		}

		if o.Code() != "" && o.State() != StateOffline {
			ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
			if err := o.syncNow(ctx); err != nil {
				observability.Warnf("final flush failed: %v", err)
			}
			cancel()
		}

		close(o.stopChan)
		<-o.doneChan
		o.watcher.Stop()
		o.interp.Stop()
	})
	return nil
}

// syncNow pushes the local snapshot with bounded retries, then drains
// the offline queue if one accumulated.
func (o *Orchestrator) syncNow(ctx context.Context) error {
	o.pushMu.Lock()
	defer o.pushMu.Unlock()

	o.mu.Lock()
	code := o.code
	o.mu.Unlock()
	if code == "" {
		return nil
	}

	o.send(eventSyncStart)

	snapshot, err := o.source.Snapshot(ctx)
	if err != nil {
		o.send(eventSyncFail)
		o.emit(Notification{Kind: NotifyError, Err: err})
		return err
	}
	localUpdated, _ := o.source.LastModified(ctx)

	resp, err := o.pushWithRetry(ctx, code, snapshot, localUpdated)
	if err != nil {
		if IsNetworkError(err) {
			o.enqueuePush(ctx, code, snapshot, localUpdated)
			o.watcher.Report(false)
			o.send(eventWentOffline)
			return err
		}
		o.send(eventSyncFail)
		o.emit(Notification{Kind: NotifyError, Err: err})
		return err
	}

	o.watcher.Report(true)
	o.setCursor(resp.ServerUpdatedAt)
	o.persistSync(ctx)

	if resp.Merged && resp.MergedData != nil {
		if err := o.source.Apply(ctx, resp.MergedData); err != nil {
			o.send(eventSyncFail)
			o.emit(Notification{Kind: NotifyError, Err: err})
			return err
		}
		o.emit(Notification{Kind: NotifyMerged, Data: resp.MergedData})
	}

	o.send(eventSyncOK)
	return nil
}

// pushWithRetry retries transient failures with exponential backoff.
// Network failures and client errors are permanent here: the caller
// decides whether to queue them.
func (o *Orchestrator) pushWithRetry(ctx context.Context, code string, data *models.SyncData, localUpdated int64) (*models.PushResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryBase
	b.Multiplier = 2
	b.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (*models.PushResponse, error) {
		resp, err := o.transport.Push(ctx, code, o.identity, data, localUpdated)
		if err == nil {
			return resp, nil
		}
		if IsRateLimited(err) {
			return nil, err
		}
		if IsNetworkError(err) || IsNotFound(err) || IsDeviceLimit(err) {
			return nil, backoff.Permanent(err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(o.cfg.MaxAttempts)))
}

func (o *Orchestrator) enqueuePush(ctx context.Context, code string, data *models.SyncData, localUpdated int64) {
	body, err := encodePushBody(code, o.identity, data, localUpdated)
	if err != nil {
		observability.Errorf("failed to encode queued push: %v", err)
		return
	}
	if err := o.store.Enqueue(ctx, "/api/sync/push", "POST", body); err != nil {
		observability.Errorf("failed to enqueue push: %v", err)
	}
}

// drainQueue replays queued writes oldest first. An entry is removed
// only after the server accepts it; a network failure stops the drain
// with the remainder intact.
func (o *Orchestrator) drainQueue(ctx context.Context) {
	entries, err := o.store.QueuedEntries(ctx)
	if err != nil {
		observability.Errorf("failed to read offline queue: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	flushed := 0
	for _, entry := range entries {
		if err := o.transport.Replay(ctx, entry); err != nil {
			if IsNetworkError(err) {
				o.watcher.Report(false)
				break
			}
			// the server rejected it; replaying again cannot help
			observability.Warnf("dropping rejected queued request: %v", err)
			if rmErr := o.store.RemoveQueued(ctx, entry.ID); rmErr != nil {
				observability.Errorf("failed to remove queued request: %v", rmErr)
				break
			}
			o.emit(Notification{Kind: NotifyQueueDropped, Err: err})
			continue
		}
		if err := o.store.RemoveQueued(ctx, entry.ID); err != nil {
			observability.Errorf("failed to remove queued request: %v", err)
			break
		}
		flushed++
	}

	if flushed > 0 {
		o.emit(Notification{Kind: NotifyQueueFlushed, Flushed: flushed})
	}
}

// pullOnce fetches server changes past the cursor and applies them.
func (o *Orchestrator) pullOnce(ctx context.Context) {
	o.pullMu.Lock()
	defer o.pullMu.Unlock()

	o.mu.Lock()
	code := o.code
	cursor := o.cursor
	o.mu.Unlock()
	if code == "" {
		return
	}

	resp, err := o.transport.Pull(ctx, code, o.identity, cursor)
	if err != nil {
		if IsNetworkError(err) {
			o.watcher.Report(false)
			o.send(eventWentOffline)
		}
		return
	}
	o.watcher.Report(true)

	if !resp.HasChanges || resp.Data == nil {
		return
	}

	if err := o.source.Apply(ctx, resp.Data); err != nil {
		o.emit(Notification{Kind: NotifyError, Err: err})
		return
	}
	o.setCursor(resp.ServerUpdatedAt)
	o.persistSync(ctx)
	o.emit(Notification{Kind: NotifyMerged, Data: resp.Data})
}

func (o *Orchestrator) pollLoop() {
	defer close(o.doneChan)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			fg := o.foreground
			o.mu.Unlock()

			state := o.State()
			if fg && (state == StateOnline || state == StateError) {
				o.pullOnce(context.Background())
			}
		case <-o.stopChan:
			return
		}
	}
}

// onConnectivity runs on watcher transitions.
func (o *Orchestrator) onConnectivity(online bool) {
	if o.Code() == "" {
		return
	}

	if !online {
		o.send(eventWentOffline)
		return
	}

	o.send(eventBackOnline)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o.drainQueue(ctx)
		// full catch-up: push local state, then pull so the accept-as-is
		// path also picks up other devices' changes
		o.syncNow(ctx)
		o.pullOnce(ctx)
	}()
}

func (o *Orchestrator) send(event string) {
	before := o.State()
	o.interp.Send(statekit.Event{Type: statekit.EventType(event)})
	after := o.State()
	if before != after {
		o.emit(Notification{Kind: NotifyStateChanged, State: after})
	}
}

func (o *Orchestrator) emit(n Notification) {
	if o.notify == nil {
		return
	}
	if n.State == "" {
		n.State = o.State()
	}
	o.notify(n)
}

func (o *Orchestrator) setCursor(serverUpdatedAt int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if serverUpdatedAt > o.cursor {
		o.cursor = serverUpdatedAt
	}
}

func (o *Orchestrator) saveLink(ctx context.Context, code string) error {
	o.mu.Lock()
	o.code = code
	cursor := o.cursor
	o.mu.Unlock()

	info, err := o.store.EnsureSyncInfo(ctx, o.identity)
	if err != nil {
		return err
	}
	info.Code = code
	info.ServerUpdated = cursor
	info.LastSyncedAt = models.NowMillis()
	return o.store.SaveSyncInfo(ctx, info)
}

func encodePushBody(code string, id *Identity, data *models.SyncData, localUpdated int64) ([]byte, error) {
	return json.Marshal(models.PushRequest{
		Code:           code,
		DeviceID:       id.DeviceID,
		DeviceName:     id.DeviceName,
		Data:           data,
		LocalUpdatedAt: localUpdated,
	})
}

func (o *Orchestrator) persistSync(ctx context.Context) {
	o.mu.Lock()
	code := o.code
	cursor := o.cursor
	o.mu.Unlock()

	info, err := o.store.EnsureSyncInfo(ctx, o.identity)
	if err != nil {
		observability.Warnf("failed to load sync info: %v", err)
		return
	}
	info.Code = code
	info.ServerUpdated = cursor
	info.LastSyncedAt = models.NowMillis()
	if err := o.store.SaveSyncInfo(ctx, info); err != nil {
		observability.Warnf("failed to persist sync info: %v", err)
	}
}
