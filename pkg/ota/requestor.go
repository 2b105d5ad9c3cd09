package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Requestor defaults.
const (
	DefaultPeriodicQueryTimeout = 24 * time.Hour
	DefaultBlockSize            = 1024
	DefaultRetryInterval        = time.Second
	DefaultMaxQueryElapsed      = 2 * time.Minute
	DefaultAnnounceJitter       = 10 * time.Minute
	DefaultLocation             = "XX"

	maxBusyRetries = 3
	minBusyDelay   = 10 * time.Millisecond
)

// Requestor errors.
var (
	ErrBusy              = errors.New("ota: requestor busy")
	ErrNoProvider        = errors.New("ota: no provider known")
	ErrNoUpdateAvailable = errors.New("ota: no update available")
	ErrProviderBusy      = errors.New("ota: provider busy")
	ErrConsentDenied     = errors.New("ota: user consent denied")
	ErrNotApplicable     = errors.New("ota: image not applicable")
	ErrNoImage           = errors.New("ota: no image to apply")
	ErrInvalidConfig     = errors.New("ota: invalid requestor config")
)

// ResolveFunc returns the Provider reachable at loc.
type ResolveFunc func(ctx context.Context, loc otarequestor.ProviderLocation) (Provider, error)

// ConsentFunc decides whether an offered image may be downloaded.
type ConsentFunc func(ctx context.Context, resp QueryImageResponse) (bool, error)

// ApplyFunc runs once an image is activated, usually to restart the device.
type ApplyFunc func(ctx context.Context, h *Header) error

// RequestorConfig configures a Requestor.
type RequestorConfig struct {
	VendorID        uint16
	ProductID       uint16
	SoftwareVersion uint32
	HardwareVersion uint16
	Location        string

	Processor *ImageProcessor
	Resolve   ResolveFunc

	DefaultProviders     []otarequestor.ProviderLocation
	PeriodicQueryTimeout time.Duration
	RetryInterval        time.Duration
	MaxQueryElapsed      time.Duration
	AnnounceJitter       time.Duration
	BlockSize            int

	// UserConsent is asked before every download when set. Without it an
	// image that needs consent is refused.
	UserConsent ConsentFunc
	// AutoApply applies a downloaded image without waiting for Apply.
	AutoApply bool
	ApplyHook ApplyFunc

	OnStateChange func(prev, next otarequestor.UpdateState, reason otarequestor.ChangeReason)
	LoggerFactory logging.LoggerFactory
}

func (c *RequestorConfig) applyDefaults() {
	if c.PeriodicQueryTimeout <= 0 {
		c.PeriodicQueryTimeout = DefaultPeriodicQueryTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxQueryElapsed <= 0 {
		c.MaxQueryElapsed = DefaultMaxQueryElapsed
	}
	if c.AnnounceJitter <= 0 {
		c.AnnounceJitter = DefaultAnnounceJitter
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// Requestor runs the OTA query, download and apply state machine. Its
// state is mirrored to an attached OTA Software Update Requestor cluster.
type Requestor struct {
	cfg RequestorConfig
	log logging.LeveledLogger

	mu        sync.Mutex
	state     otarequestor.UpdateState
	defaults  []otarequestor.ProviderLocation
	announced *otarequestor.ProviderLocation
	image     *Header
	cluster   *datamodel.Cluster
	sink      clusters.EventSink

	kick chan time.Duration
}

var _ otarequestor.Requestor = (*Requestor)(nil)

// NewRequestor creates a Requestor in the Idle state.
func NewRequestor(cfg RequestorConfig) (*Requestor, error) {
	if cfg.Processor == nil || cfg.Resolve == nil {
		return nil, fmt.Errorf("%w: processor and resolver are required", ErrInvalidConfig)
	}
	cfg.applyDefaults()
	return &Requestor{
		cfg:      cfg,
		log:      cfg.LoggerFactory.NewLogger("ota"),
		state:    otarequestor.StateIdle,
		defaults: append([]otarequestor.ProviderLocation(nil), cfg.DefaultProviders...),
		kick:     make(chan time.Duration, 1),
	}, nil
}

// Attach mirrors the requestor state into c and sends its events to sink.
// Either may be nil.
func (r *Requestor) Attach(c *datamodel.Cluster, sink clusters.EventSink) error {
	r.mu.Lock()
	r.cluster, r.sink = c, sink
	state := r.state
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	return otarequestor.SetUpdateState(c, state, -1)
}

// State returns the current update state.
func (r *Requestor) State() otarequestor.UpdateState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Image returns the header of the image waiting to be applied, if any.
func (r *Requestor) Image() *Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image
}

// Progress returns the download progress in percent, or -1 when not
// downloading.
func (r *Requestor) Progress() int {
	if r.State() != otarequestor.StateDownloading {
		return -1
	}
	return r.cfg.Processor.Progress()
}

// DefaultProviders implements otarequestor.Requestor.
func (r *Requestor) DefaultProviders() []otarequestor.ProviderLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]otarequestor.ProviderLocation(nil), r.defaults...)
}

// SetDefaultProviders replaces the default provider list. Only one
// provider per fabric is kept.
func (r *Requestor) SetDefaultProviders(providers []otarequestor.ProviderLocation) {
	seen := make(map[datamodel.FabricIndex]bool)
	var out []otarequestor.ProviderLocation
	for _, p := range providers {
		if seen[p.FabricIndex] {
			continue
		}
		seen[p.FabricIndex] = true
		out = append(out, p)
	}
	r.mu.Lock()
	r.defaults = out
	r.mu.Unlock()
}

// AnnounceProvider implements otarequestor.Requestor. The provider is
// remembered for the next query, added as default provider when its fabric
// has none, and a query is scheduled according to the announcement reason.
func (r *Requestor) AnnounceProvider(ctx context.Context, a otarequestor.Announcement) error {
	r.mu.Lock()
	loc := a.Provider
	r.announced = &loc
	known := false
	for _, p := range r.defaults {
		if p.FabricIndex == loc.FabricIndex {
			known = true
			break
		}
	}
	if !known {
		r.defaults = append(r.defaults, loc)
	}
	r.mu.Unlock()

	var delay time.Duration
	switch a.Reason {
	case otarequestor.AnnouncementUrgentUpdate:
	case otarequestor.AnnouncementUpdateAvailable:
		delay = time.Second
	default:
		delay = time.Second + rand.N(r.cfg.AnnounceJitter)
	}
	r.log.Infof("Provider announced: node 0x%016X endpoint %d fabric %d, querying in %s", loc.NodeID, loc.Endpoint, loc.FabricIndex, delay)
	r.schedule(delay)
	return nil
}

func (r *Requestor) schedule(d time.Duration) {
	for {
		select {
		case r.kick <- d:
			return
		default:
		}
		select {
		case <-r.kick:
		default:
		}
	}
}

// Run queries the providers periodically and when an announcement asks for
// it. It returns when ctx is done.
func (r *Requestor) Run(ctx context.Context) error {
	t := time.NewTimer(r.cfg.PeriodicQueryTimeout)
	defer t.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-r.kick:
			t.Reset(d)
			continue
		case <-t.C:
		}
		// No queries while a downloaded image waits for Apply.
		if r.State() == otarequestor.StateDelayedOnApply {
			if !pending {
				if h := r.Image(); h != nil {
					r.log.Infof("Image %s is waiting to be applied, skipping queries", h.SoftwareVersionString)
				}
				pending = true
			}
			t.Reset(r.cfg.PeriodicQueryTimeout)
			continue
		}
		pending = false
		if err := r.TriggerQuery(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, ErrNoUpdateAvailable) {
				r.log.Infof("No update available")
			} else {
				r.log.Warnf("OTA query failed: %v", err)
			}
		}
		t.Reset(r.cfg.PeriodicQueryTimeout)
	}
}

func (r *Requestor) begin() (otarequestor.ProviderLocation, error) {
	r.mu.Lock()
	if r.state != otarequestor.StateIdle {
		state := r.state
		r.mu.Unlock()
		return otarequestor.ProviderLocation{}, fmt.Errorf("%w: %s", ErrBusy, state)
	}
	var loc otarequestor.ProviderLocation
	switch {
	case r.announced != nil:
		loc = *r.announced
	case len(r.defaults) > 0:
		loc = r.defaults[0]
	default:
		r.mu.Unlock()
		return loc, ErrNoProvider
	}
	prev := r.state
	r.state = otarequestor.StateQuerying
	r.mu.Unlock()
	r.notify(prev, otarequestor.StateQuerying, otarequestor.ReasonSuccess, nil)
	return loc, nil
}

func (r *Requestor) setState(next otarequestor.UpdateState, reason otarequestor.ChangeReason, target *uint32) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()
	r.notify(prev, next, reason, target)
}

func (r *Requestor) notify(prev, next otarequestor.UpdateState, reason otarequestor.ChangeReason, target *uint32) {
	r.mu.Lock()
	c, sink := r.cluster, r.sink
	r.mu.Unlock()
	r.log.Infof("OTA state %s -> %s", prev, next)
	if c != nil {
		if err := otarequestor.SetUpdateState(c, next, -1); err != nil {
			r.log.Warnf("Failed to update UpdateState: %v", err)
		}
		if sink != nil {
			ev := otarequestor.StateTransitionEvent{PreviousState: prev, NewState: next, Reason: reason, TargetSoftwareVersion: target}
			if err := otarequestor.EmitStateTransition(sink, c, ev); err != nil {
				r.log.Warnf("Failed to emit StateTransition: %v", err)
			}
		}
	}
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(prev, next, reason)
	}
}

func (r *Requestor) setProgress(p int) {
	r.mu.Lock()
	c := r.cluster
	r.mu.Unlock()
	if c == nil {
		return
	}
	if err := otarequestor.SetUpdateState(c, otarequestor.StateDownloading, p); err != nil {
		r.log.Warnf("Failed to update UpdateStateProgress: %v", err)
	}
}

// TriggerQuery asks the announced or first default provider for an image
// and downloads it when one is offered. Failing queries are retried with
// exponential backoff. With AutoApply the image is applied right away,
// otherwise the requestor waits in DelayedOnApply for Apply.
func (r *Requestor) TriggerQuery(ctx context.Context) error {
	loc, err := r.begin()
	if err != nil {
		return err
	}
	var (
		resp QueryImageResponse
		prov Provider
	)
	for attempt := 0; ; attempt++ {
		resp, prov, err = r.query(ctx, loc)
		if err != nil {
			reason := otarequestor.ReasonFailure
			if errors.Is(err, context.DeadlineExceeded) {
				reason = otarequestor.ReasonTimeOut
			}
			r.setState(otarequestor.StateIdle, reason, nil)
			return err
		}
		if resp.Status != StatusBusy {
			break
		}
		if attempt == maxBusyRetries {
			r.setState(otarequestor.StateIdle, otarequestor.ReasonDelayByProvider, nil)
			return ErrProviderBusy
		}
		delay := max(resp.DelayedActionTime, minBusyDelay)
		r.setState(otarequestor.StateDelayedOnQuery, otarequestor.ReasonDelayByProvider, nil)
		r.log.Infof("Provider busy, retrying in %s", delay)
		if err := sleep(ctx, delay); err != nil {
			r.setState(otarequestor.StateIdle, otarequestor.ReasonFailure, nil)
			return err
		}
		r.setState(otarequestor.StateQuerying, otarequestor.ReasonSuccess, nil)
	}

	if resp.Status != StatusUpdateAvailable {
		r.setState(otarequestor.StateIdle, otarequestor.ReasonSuccess, nil)
		if resp.Status == StatusNotAvailable {
			return ErrNoUpdateAvailable
		}
		return fmt.Errorf("ota: query failed: %s", resp.Status)
	}
	target := resp.SoftwareVersion
	r.log.Infof("Update available: version %d (%s)", resp.SoftwareVersion, resp.SoftwareVersionString)

	if resp.UserConsentNeeded || r.cfg.UserConsent != nil {
		r.setState(otarequestor.StateDelayedOnUserConsent, otarequestor.ReasonSuccess, &target)
		ok, err := r.consent(ctx, resp)
		if err != nil || !ok {
			r.setState(otarequestor.StateIdle, otarequestor.ReasonFailure, &target)
			if err != nil {
				return err
			}
			return ErrConsentDenied
		}
	}

	r.setState(otarequestor.StateDownloading, otarequestor.ReasonSuccess, &target)
	h, err := r.download(ctx, prov, resp)
	if err != nil {
		progress := r.cfg.Processor.Progress()
		written := r.cfg.Processor.BytesWritten()
		if aerr := r.cfg.Processor.Abort(ctx); aerr != nil {
			r.log.Warnf("Abort failed: %v", aerr)
		}
		r.emitDownloadError(target, written, progress)
		r.setState(otarequestor.StateIdle, otarequestor.ReasonFailure, &target)
		return err
	}

	r.mu.Lock()
	r.image = h
	r.mu.Unlock()
	r.setState(otarequestor.StateDelayedOnApply, otarequestor.ReasonSuccess, &target)
	if r.cfg.AutoApply {
		return r.Apply(ctx)
	}
	return nil
}

func (r *Requestor) consent(ctx context.Context, resp QueryImageResponse) (bool, error) {
	if r.cfg.UserConsent == nil {
		return false, nil
	}
	return r.cfg.UserConsent(ctx, resp)
}

func (r *Requestor) query(ctx context.Context, loc otarequestor.ProviderLocation) (QueryImageResponse, Provider, error) {
	req := QueryImageRequest{
		VendorID:            r.cfg.VendorID,
		ProductID:           r.cfg.ProductID,
		SoftwareVersion:     r.cfg.SoftwareVersion,
		HardwareVersion:     r.cfg.HardwareVersion,
		Location:            r.cfg.Location,
		RequestorCanConsent: r.cfg.UserConsent != nil,
	}
	var (
		resp QueryImageResponse
		prov Provider
	)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	b.MaxElapsedTime = r.cfg.MaxQueryElapsed
	op := func() error {
		p, err := r.cfg.Resolve(ctx, loc)
		if err == nil {
			resp, err = p.QueryImage(ctx, req)
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		prov = p
		return nil
	}
	notify := func(err error, d time.Duration) {
		r.log.Warnf("QueryImage to node 0x%016X failed: %v, retrying in %s", loc.NodeID, err, d)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return resp, nil, err
	}
	return resp, prov, nil
}

func (r *Requestor) download(ctx context.Context, prov Provider, resp QueryImageResponse) (*Header, error) {
	proc := r.cfg.Processor
	if err := proc.PrepareDownload(ctx); err != nil {
		return nil, err
	}
	rc, err := prov.Download(ctx, resp.ImageURI)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, r.cfg.BlockSize)
	last := -1
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if perr := proc.ProcessBlock(ctx, buf[:n]); perr != nil {
				return nil, perr
			}
			if p := proc.Progress(); p != last {
				last = p
				r.setProgress(p)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	h, err := proc.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	if h.VendorID != r.cfg.VendorID || h.ProductID != r.cfg.ProductID || !h.Applicable(r.cfg.SoftwareVersion) {
		return nil, fmt.Errorf("%w: 0x%04X:0x%04X version %d", ErrNotApplicable, h.VendorID, h.ProductID, h.SoftwareVersion)
	}
	return h, nil
}

func (r *Requestor) emitDownloadError(version uint32, written uint64, progress int) {
	r.mu.Lock()
	c, sink := r.cluster, r.sink
	r.mu.Unlock()
	if c == nil || sink == nil {
		return
	}
	if err := otarequestor.EmitDownloadError(sink, c, version, written, progress); err != nil {
		r.log.Warnf("Failed to emit DownloadError: %v", err)
	}
}

// Apply activates the downloaded image and calls the apply hook. A failed
// activation rolls back to Idle.
func (r *Requestor) Apply(ctx context.Context) error {
	r.mu.Lock()
	h := r.image
	ready := r.state == otarequestor.StateDelayedOnApply && h != nil
	r.mu.Unlock()
	if !ready {
		return ErrNoImage
	}
	target := h.SoftwareVersion
	r.setState(otarequestor.StateApplying, otarequestor.ReasonSuccess, &target)
	if err := r.cfg.Processor.Apply(ctx); err != nil {
		r.setState(otarequestor.StateRollingBack, otarequestor.ReasonFailure, &target)
		if aerr := r.cfg.Processor.Abort(ctx); aerr != nil {
			r.log.Warnf("Rollback failed: %v", aerr)
		}
		r.mu.Lock()
		r.image = nil
		r.mu.Unlock()
		r.setState(otarequestor.StateIdle, otarequestor.ReasonFailure, &target)
		return err
	}
	r.mu.Lock()
	r.image = nil
	r.mu.Unlock()
	r.setState(otarequestor.StateIdle, otarequestor.ReasonSuccess, &target)
	if r.cfg.ApplyHook != nil {
		return r.cfg.ApplyHook(ctx, h)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
