// Package delegate owns the synthesized Objective-C delegate objects that
// ImageCaptureCore calls back into.
//
// Each live registration has a receiver object, a role and a token. The
// native runtime stores the token (never a Go pointer) inside the receiver,
// and every callback is resolved back through the registry. A callback whose
// token was released is dropped and reported instead of reaching a handler.
package delegate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaban/imagecapture/objc"
)

var (
	ErrRegistrationConflict = errors.New("delegate registration conflict")
	ErrReleased             = errors.New("delegate registration already released")
)

// Role selects which protocol a synthesized class adopts.
type Role int

const (
	RoleBrowser Role = iota
	RoleDeviceSession
)

func (r Role) String() string {
	switch r {
	case RoleBrowser:
		return "browser"
	case RoleDeviceSession:
		return "device-session"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ClassSuffix is appended to the registry prefix to name the role's class.
func (r Role) ClassSuffix() string {
	if r == RoleBrowser {
		return "BrowserDelegate"
	}
	return "CameraDeviceDelegate"
}

// Token identifies one registration for its whole lifetime.
type Token uint64

// Dispatcher resolves a token carried by a native callback.
type Dispatcher interface {
	Resolve(Token) (*Registration, bool)
}

// Runtime is the Objective-C side of the registry.
type Runtime interface {
	ClassExists(name string) bool
	DefineClass(name string, role Role) error
	// NewReceiver instantiates class and binds it to tok so callbacks can
	// be routed back through d.
	NewReceiver(class string, d Dispatcher, tok Token) (objc.ID, error)
	// ReleaseReceiver unbinds and releases a receiver. The object must not
	// route callbacks afterwards.
	ReleaseReceiver(receiver objc.ID)
}

// Drop describes a callback that arrived for a released or mismatched
// registration.
type Drop struct {
	Role     Role
	Token    Token
	Callback string
	Reason   string
}

// Options configure a Registry.
type Options struct {
	ClassPrefix string
	Logger      *slog.Logger
	OnDrop      func(Drop)
}

// classes defined by this process, name -> role. Objective-C classes
// outlive any Registry.
var (
	classesMu sync.Mutex
	classes   = map[string]Role{}
)

// Registry hands out delegate registrations.
type Registry struct {
	rt     Runtime
	prefix string
	log    *slog.Logger
	onDrop func(Drop)

	mu             sync.Mutex
	next           Token
	live           map[Token]*Registration
	browser        *Registration
	browserPending bool
	sessions       map[objc.ID]*Registration
	sessionPending map[objc.ID]bool
}

func NewRegistry(rt Runtime, opts Options) *Registry {
	if opts.ClassPrefix == "" {
		opts.ClassPrefix = "GoICC"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		rt:             rt,
		prefix:         opts.ClassPrefix,
		log:            opts.Logger.With("component", "delegate"),
		onDrop:         opts.OnDrop,
		live:           make(map[Token]*Registration),
		sessions:       make(map[objc.ID]*Registration),
		sessionPending: make(map[objc.ID]bool),
	}
}

// ClassName returns the Objective-C class name used for role.
func (r *Registry) ClassName(role Role) string {
	return r.prefix + role.ClassSuffix()
}

// Define makes sure the class for role exists. Defining twice is a no-op;
// a class of the same name that this process did not define is a conflict.
func (r *Registry) Define(role Role) error {
	name := r.ClassName(role)

	classesMu.Lock()
	defer classesMu.Unlock()
	if have, ok := classes[name]; ok {
		if have != role {
			return fmt.Errorf("%w: class %s already defined for %s", ErrRegistrationConflict, name, have)
		}
		return nil
	}
	if r.rt.ClassExists(name) {
		return fmt.Errorf("%w: foreign class %s", ErrRegistrationConflict, name)
	}
	if err := r.rt.DefineClass(name, role); err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	classes[name] = role
	r.log.Debug("delegate class defined", "class", name, "role", role)
	return nil
}

// RegisterBrowser creates the single browser registration.
func (r *Registry) RegisterBrowser(h BrowserHandlers) (*Registration, error) {
	r.mu.Lock()
	if r.browser != nil || r.browserPending {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: browser delegate already registered", ErrRegistrationConflict)
	}
	r.browserPending = true
	r.next++
	reg := &Registration{reg: r, token: r.next, role: RoleBrowser, browser: h}
	r.mu.Unlock()

	err := r.bind(reg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.browserPending = false
	if err != nil {
		return nil, err
	}
	r.browser = reg
	r.live[reg.token] = reg
	return reg, nil
}

// RegisterSession creates the session registration for one device.
func (r *Registry) RegisterSession(dev objc.ID, h SessionHandlers) (*Registration, error) {
	if dev.IsNil() {
		return nil, fmt.Errorf("%w: nil device", ErrRegistrationConflict)
	}
	r.mu.Lock()
	if r.sessions[dev] != nil || r.sessionPending[dev] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: device %s already has a session delegate", ErrRegistrationConflict, dev)
	}
	r.sessionPending[dev] = true
	r.next++
	reg := &Registration{reg: r, token: r.next, role: RoleDeviceSession, owner: dev, session: h}
	r.mu.Unlock()

	err := r.bind(reg)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessionPending, dev)
	if err != nil {
		return nil, err
	}
	r.sessions[dev] = reg
	r.live[reg.token] = reg
	return reg, nil
}

func (r *Registry) bind(reg *Registration) error {
	if err := r.Define(reg.role); err != nil {
		return err
	}
	recv, err := r.rt.NewReceiver(r.ClassName(reg.role), r, reg.token)
	if err != nil {
		return fmt.Errorf("new %s receiver: %w", reg.role, err)
	}
	reg.receiver = recv
	r.log.Debug("delegate registered", "role", reg.role, "token", reg.token, "receiver", recv)
	return nil
}

// Resolve implements Dispatcher.
func (r *Registry) Resolve(tok Token) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.live[tok]
	return reg, ok
}

// Live reports the number of unreleased registrations.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// ReleaseAll releases every live registration. Registrations released
// earlier are skipped.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	regs := make([]*Registration, 0, len(r.live))
	for _, reg := range r.live {
		regs = append(regs, reg)
	}
	r.mu.Unlock()
	for _, reg := range regs {
		_ = reg.Release()
	}
}

// DropUnknown reports a callback whose token never resolved.
func (r *Registry) DropUnknown(tok Token, callback string) {
	r.drop(Drop{Token: tok, Callback: callback, Reason: "unknown token"})
}

func (r *Registry) release(reg *Registration) {
	r.mu.Lock()
	delete(r.live, reg.token)
	if r.browser == reg {
		r.browser = nil
	}
	if reg.role == RoleDeviceSession && r.sessions[reg.owner] == reg {
		delete(r.sessions, reg.owner)
	}
	r.mu.Unlock()

	if !reg.receiver.IsNil() {
		r.rt.ReleaseReceiver(reg.receiver)
	}
	r.log.Debug("delegate released", "role", reg.role, "token", reg.token)
}

func (r *Registry) drop(d Drop) {
	r.log.Debug("delegate callback dropped",
		"role", d.Role, "token", d.Token, "callback", d.Callback, "reason", d.Reason)
	if r.onDrop != nil {
		r.onDrop(d)
	}
}
